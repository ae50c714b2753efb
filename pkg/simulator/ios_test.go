package simulator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/maestro-device/pkg/core"
)

const udid = "A1B2C3D4-E5F6-7890-ABCD-EF1234567890"

func TestFindSimctlBinary(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PATH", dir)

	_, err := FindSimctlBinary()
	assert.ErrorContains(t, err, "xcode-select --install")

	xcrun := filepath.Join(dir, "xcrun")
	require.NoError(t, os.WriteFile(xcrun, []byte("#!/bin/sh\n"), 0o755))
	path, err := FindSimctlBinary()
	require.NoError(t, err)
	assert.Equal(t, xcrun, path)
}

func TestBootStatus_IsReady(t *testing.T) {
	assert.True(t, (&BootStatus{Booted: true}).IsReady())
	assert.False(t, (&BootStatus{Booted: false}).IsReady())
}

func TestExtractOSVersion(t *testing.T) {
	tests := []struct {
		runtime string
		want    string
	}{
		{"com.apple.CoreSimulator.SimRuntime.iOS-17-2", "17.2"},
		{"com.apple.CoreSimulator.SimRuntime.iOS-18-0", "18.0"},
		{"com.apple.CoreSimulator.SimRuntime.watchOS-10-2", "10.2"},
		{"com.apple.CoreSimulator.SimRuntime.tvOS-17-0", "17.0"},
		{"com.apple.CoreSimulator.SimRuntime.xrOS-1-0", "1.0"},
		{"unknown-runtime", ""},
	}

	for _, tt := range tests {
		t.Run(tt.runtime, func(t *testing.T) {
			assert.Equal(t, tt.want, extractOSVersion(tt.runtime))
		})
	}
}

func TestListSimulators_NewestRuntimeFirst(t *testing.T) {
	run := &fakeRunner{handle: func(cmd string) ([]byte, error) {
		return deviceList(map[string][][3]string{
			"com.apple.CoreSimulator.SimRuntime.iOS-16-4":  {{"iPhone 14", "U-164", "Shutdown"}},
			"com.apple.CoreSimulator.SimRuntime.iOS-17-2":  {{"iPhone 15", "U-172", "Booted"}},
			"com.apple.CoreSimulator.SimRuntime.iOS-17-10": {{"iPhone 15", "U-1710", "Shutdown"}},
			"com.apple.CoreSimulator.SimRuntime.weird":     {{"Other", "U-X", "Shutdown"}},
		}), nil
	}}
	c := NewControl(run)

	sims, err := c.ListSimulators(context.Background())
	require.NoError(t, err)
	var order []string
	for _, s := range sims {
		order = append(order, s.UDID)
	}
	assert.Equal(t, []string{"U-1710", "U-172", "U-164", "U-X"}, order)
	assert.Equal(t, []string{"xcrun simctl list devices available -j"}, run.Calls())

	shutdown, err := c.ListShutdownSimulators(context.Background())
	require.NoError(t, err)
	assert.Len(t, shutdown, 3)
}

func TestListSimulators_BadJSON(t *testing.T) {
	c := NewControl(&fakeRunner{handle: func(string) ([]byte, error) { return []byte("nope"), nil }})
	_, err := c.ListSimulators(context.Background())
	assert.Error(t, err)
}

// bootingRunner reports Shutdown until `after` list calls have happened.
func bootingRunner(after int32, finalState string) *fakeRunner {
	var lists int32
	return &fakeRunner{handle: func(cmd string) ([]byte, error) {
		if strings.HasPrefix(cmd, "xcrun simctl list") {
			state := "Shutdown"
			if finalState == "Shutdown" {
				state = "Booted"
			}
			if atomic.AddInt32(&lists, 1) > after {
				state = finalState
			}
			return deviceList(map[string][][3]string{
				"com.apple.CoreSimulator.SimRuntime.iOS-17-2": {{"iPhone 15", udid, state}},
			}), nil
		}
		return nil, nil
	}}
}

func TestBoot_PollsUntilBooted(t *testing.T) {
	run := bootingRunner(2, "Booted")
	c := NewControl(run, WithWaits(time.Second, 10*time.Millisecond))

	require.NoError(t, c.Boot(context.Background(), udid))
	assert.Equal(t, 3, run.count("xcrun simctl list"))
	assert.Equal(t, 1, run.count("xcrun simctl boot "+udid))
	assert.Equal(t, 1, run.count("open -a Simulator"))
}

func TestBoot_Timeout(t *testing.T) {
	run := bootingRunner(1000, "Booted")
	c := NewControl(run, WithWaits(100*time.Millisecond, 20*time.Millisecond))

	start := time.Now()
	err := c.Boot(context.Background(), udid)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrTimeout))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestBoot_AlreadyBooted(t *testing.T) {
	run := &fakeRunner{handle: func(cmd string) ([]byte, error) {
		if strings.HasPrefix(cmd, "xcrun simctl boot") {
			return nil, errCommand("Unable to boot device in current state: Booted")
		}
		return nil, nil
	}}
	c := NewControl(run)
	require.NoError(t, c.Boot(context.Background(), udid))
	assert.Equal(t, 0, run.count("xcrun simctl list"))
}

func TestShutdown_AlreadyShutdown(t *testing.T) {
	run := &fakeRunner{handle: func(cmd string) ([]byte, error) {
		return nil, errCommand("Unable to shutdown device in current state: Shutdown")
	}}
	c := NewControl(run)
	require.NoError(t, c.Shutdown(context.Background(), udid))
}

func TestAddTrustedCertificate_Reboots(t *testing.T) {
	run := bootingRunner(1, "Shutdown")
	c := NewControl(run, WithWaits(time.Second, 10*time.Millisecond))

	// After the shutdown is confirmed the device has to boot again.
	var booted atomic.Bool
	inner := run.handle
	run.handle = func(cmd string) ([]byte, error) {
		if strings.HasPrefix(cmd, "xcrun simctl boot") {
			booted.Store(true)
		}
		if booted.Load() && strings.HasPrefix(cmd, "xcrun simctl list") {
			return deviceList(map[string][][3]string{
				"com.apple.CoreSimulator.SimRuntime.iOS-17-2": {{"iPhone 15", udid, "Booted"}},
			}), nil
		}
		return inner(cmd)
	}

	require.NoError(t, c.AddTrustedCertificate(context.Background(), udid, "/tmp/ca.pem"))
	calls := run.Calls()
	require.NotEmpty(t, calls)
	assert.Equal(t, "xcrun simctl keychain "+udid+" add-root-cert /tmp/ca.pem", calls[0])
	assert.Equal(t, 1, run.count("xcrun simctl shutdown "+udid))
	assert.Equal(t, 1, run.count("xcrun simctl boot "+udid))
}
