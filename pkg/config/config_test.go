package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "ios", cfg.Platform)
	assert.Equal(t, 10*time.Second, cfg.Transport.ConnectTimeout)
	assert.Equal(t, 30*time.Second, cfg.Transport.ReadTimeout)
	assert.Equal(t, 75*time.Millisecond, cfg.IOS.InputDelay)
	assert.Equal(t, 7001, cfg.Android.HostPort)
	assert.Equal(t, 250*time.Millisecond, cfg.Android.LocationInterval)
}

func TestLoad_ValidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
platform: android
device: emulator-5554
verbose: true
transport:
  readTimeout: 45s
ios:
  companionPort: 22100
  inputDelay: 100ms
android:
  hostPort: 7010
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "android", cfg.Platform)
	assert.Equal(t, "emulator-5554", cfg.Device)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, 45*time.Second, cfg.Transport.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.Transport.ConnectTimeout, "unset keys keep defaults")
	assert.Equal(t, 22100, cfg.IOS.CompanionPort)
	assert.Equal(t, 100*time.Millisecond, cfg.IOS.InputDelay)
	assert.Equal(t, 7010, cfg.Android.HostPort)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "transport:\n  readTimeout: soon\n")
	_, err = Load(path)
	assert.Error(t, err)
}

func TestLoadFromDir(t *testing.T) {
	t.Run("config.yml", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "config.yml"), "device: ABC\n")
		cfg, err := LoadFromDir(dir)
		require.NoError(t, err)
		assert.Equal(t, "ABC", cfg.Device)
	})

	t.Run("no file", func(t *testing.T) {
		cfg, err := LoadFromDir(t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, Default().Transport, cfg.Transport)
	})
}

func TestLoadFromDir_DotEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.yaml"), "device: from-yaml\nandroid:\n  hostPort: 7001\n")
	writeFile(t, filepath.Join(dir, ".env"), "MAESTRO_DEVICE=from-dotenv\nMAESTRO_ANDROID_HOST_PORT=7005\n")
	t.Setenv("MAESTRO_DEVICE", "")
	t.Setenv("MAESTRO_ANDROID_HOST_PORT", "")
	os.Unsetenv("MAESTRO_DEVICE")
	os.Unsetenv("MAESTRO_ANDROID_HOST_PORT")

	cfg, err := LoadFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Device)
	assert.Equal(t, 7005, cfg.Android.HostPort)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("MAESTRO_PLATFORM", "android")
	t.Setenv("MAESTRO_COMPANION_PORT", "22999")
	t.Setenv("MAESTRO_VERBOSE", "true")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, "android", cfg.Platform)
	assert.Equal(t, 22999, cfg.IOS.CompanionPort)
	assert.True(t, cfg.Verbose)

	t.Setenv("MAESTRO_COMPANION_PORT", "abc")
	assert.ErrorContains(t, cfg.ApplyEnv(), "MAESTRO_COMPANION_PORT")
}
