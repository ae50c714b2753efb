package logger

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.log")
	require.NoError(t, Init(path))
	defer Close()

	Info("companion on port %d", 22087)
	Warn("slow response")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "companion on port 22087")
	assert.Contains(t, string(data), "level=warning")
}

func TestInitBadPath(t *testing.T) {
	err := Init(filepath.Join(t.TempDir(), "missing", "dir", "x.log"))
	assert.Error(t, err)
}

func TestSetVerbose(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(io.Discard)
	defer SetVerbose(true)

	SetVerbose(false)
	Debug("hidden")
	Info("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	SetVerbose(true)
	Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(io.Discard)

	With(Fields{"udid": "ABC", "op": "tap"}).Info("dispatch")
	assert.Contains(t, buf.String(), "udid=ABC")
	assert.Contains(t, buf.String(), "op=tap")
}

func TestCloseDetachesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.log")
	require.NoError(t, Init(path))
	Close()

	Info("after close")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "after close")
	Close()
}
