// Package config handles configuration for maestro-device.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the workspace configuration (config.yaml).
type Config struct {
	Platform string `yaml:"platform"` // ios or android
	Device   string `yaml:"device"`   // UDID or serial; empty picks one
	LogFile  string `yaml:"logFile"`
	Verbose  bool   `yaml:"verbose"`

	Transport Transport `yaml:"transport"`
	IOS       IOS       `yaml:"ios"`
	Android   Android   `yaml:"android"`
}

// Transport tunes the companion HTTP client.
type Transport struct {
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	ReadTimeout    time.Duration `yaml:"readTimeout"`
}

// IOS configures the simulator backends.
type IOS struct {
	CompanionPort int           `yaml:"companionPort"` // 0 derives the port from the UDID
	ReadyTimeout  time.Duration `yaml:"readyTimeout"`
	InputDelay    time.Duration `yaml:"inputDelay"`
	RunnerDir     string        `yaml:"runnerDir"` // directory with the companion .xctestrun and build products
	IDB           string        `yaml:"idb"`
	Applesimutils string        `yaml:"applesimutils"`
}

// Android configures the driver service backend.
type Android struct {
	HostPort         int           `yaml:"hostPort"`
	ApksDir          string        `yaml:"apksDir"`
	ReadyTimeout     time.Duration `yaml:"readyTimeout"`
	LocationInterval time.Duration `yaml:"locationInterval"`
}

// Default returns the configuration used when no file sets a value.
func Default() *Config {
	return &Config{
		Platform: "ios",
		Transport: Transport{
			ConnectTimeout: 10 * time.Second,
			ReadTimeout:    30 * time.Second,
		},
		IOS: IOS{
			ReadyTimeout: 30 * time.Second,
			InputDelay:   75 * time.Millisecond,
			RunnerDir:    GetDriversDir("ios"),
			IDB:          "idb",
		},
		Android: Android{
			HostPort:         7001,
			ApksDir:          GetDriversDir("android"),
			ReadyTimeout:     30 * time.Second,
			LocationInterval: 250 * time.Millisecond,
		},
	}
}

// Load loads configuration from a file on top of Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromDir looks for config.yaml or config.yml in the directory and
// applies the environment on top. A .env file in the directory is loaded into
// the process environment first; variables already set win.
func LoadFromDir(dir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	for _, name := range []string{"config.yaml", "config.yml"} {
		configPath := filepath.Join(dir, name)
		if _, err := os.Stat(configPath); err == nil {
			loaded, err := Load(configPath)
			if err != nil {
				return nil, err
			}
			cfg = loaded
			break
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from MAESTRO_* environment variables.
func (c *Config) ApplyEnv() error {
	str := map[string]*string{
		"MAESTRO_PLATFORM":       &c.Platform,
		"MAESTRO_DEVICE":         &c.Device,
		"MAESTRO_LOG_FILE":       &c.LogFile,
		"MAESTRO_IOS_RUNNER_DIR": &c.IOS.RunnerDir,
		"MAESTRO_IDB":            &c.IOS.IDB,
		"MAESTRO_APKS_DIR":       &c.Android.ApksDir,
	}
	for env, field := range str {
		if v := os.Getenv(env); v != "" {
			*field = v
		}
	}

	ints := map[string]*int{
		"MAESTRO_COMPANION_PORT":    &c.IOS.CompanionPort,
		"MAESTRO_ANDROID_HOST_PORT": &c.Android.HostPort,
	}
	for env, field := range ints {
		v := os.Getenv(env)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", env, err)
		}
		*field = n
	}

	if v := os.Getenv("MAESTRO_VERBOSE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MAESTRO_VERBOSE: %w", err)
		}
		c.Verbose = b
	}
	return nil
}
