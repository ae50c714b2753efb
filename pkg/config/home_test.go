package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetHome_EnvVar(t *testing.T) {
	ResetHome()
	t.Cleanup(ResetHome)
	t.Setenv(envHome, "/custom/path")

	assert.Equal(t, "/custom/path", GetHome())
}

func TestGetHome_Cached(t *testing.T) {
	ResetHome()
	t.Cleanup(ResetHome)
	t.Setenv(envHome, "/first")
	first := GetHome()

	t.Setenv(envHome, "/second")
	assert.Equal(t, first, GetHome())
}

func TestResolveHome(t *testing.T) {
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name   string
		env    string
		binDir string
		want   string
	}{
		{"env wins", "/env/home", "/opt/md/bin", "/env/home"},
		{"binary in bin dir", "", "/opt/md/bin", "/opt/md"},
		{"binary elsewhere", "", "/usr/local/libexec", cwd},
		{"no binary", "", "", cwd},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveHome(tt.env, tt.binDir))
		})
	}
}

func TestDirs(t *testing.T) {
	ResetHome()
	t.Cleanup(ResetHome)
	t.Setenv(envHome, "/test/home")

	assert.Equal(t, filepath.Join("/test/home", "cache"), GetCacheDir())
	assert.Equal(t, filepath.Join("/test/home", "cache", "logs"), GetLogsDir())
	assert.Equal(t, filepath.Join("/test/home", "drivers", "ios"), GetDriversDir("ios"))
	assert.Equal(t, filepath.Join("/test/home", "drivers", "android"), GetDriversDir("android"))
}
