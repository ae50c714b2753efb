package config

import (
	"os"
	"path/filepath"
	"sync"
)

const envHome = "MAESTRO_DEVICE_HOME"

var (
	homeOnce sync.Once
	homeDir  string
)

// GetHome returns the maestro-device home directory, resolved once:
// $MAESTRO_DEVICE_HOME, else the parent of the binary's bin/ directory, else
// the working directory.
func GetHome() string {
	homeOnce.Do(func() {
		homeDir = resolveHome(os.Getenv(envHome), executableDir())
	})
	return homeDir
}

// GetCacheDir returns <home>/cache.
func GetCacheDir() string {
	return filepath.Join(GetHome(), "cache")
}

// GetLogsDir returns <home>/cache/logs, where companion build logs go.
func GetLogsDir() string {
	return filepath.Join(GetCacheDir(), "logs")
}

// GetDriversDir returns <home>/drivers/<platform>.
func GetDriversDir(platform string) string {
	return filepath.Join(GetHome(), "drivers", platform)
}

func executableDir() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	if resolved, err := filepath.EvalSymlinks(execPath); err == nil {
		execPath = resolved
	}
	return filepath.Dir(execPath)
}

func resolveHome(env, binDir string) string {
	if env != "" {
		return env
	}
	if binDir != "" && filepath.Base(binDir) == "bin" {
		return filepath.Dir(binDir)
	}
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}

// ResetHome resets the cached home directory (for testing).
func ResetHome() {
	homeOnce = sync.Once{}
	homeDir = ""
}
