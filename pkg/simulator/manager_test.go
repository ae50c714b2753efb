package simulator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_IsStartedByUs(t *testing.T) {
	mgr := NewManager(NewControl(&fakeRunner{}))

	assert.False(t, mgr.IsStartedByUs("fake-udid"))

	mgr.started.Store("test-udid", &SimulatorInstance{UDID: "test-udid", Name: "iPhone 15"})
	assert.True(t, mgr.IsStartedByUs("test-udid"))
}

func TestManager_GetStartedSimulators(t *testing.T) {
	mgr := NewManager(NewControl(&fakeRunner{}))
	assert.Empty(t, mgr.GetStartedSimulators())

	mgr.started.Store("udid-1", &SimulatorInstance{UDID: "udid-1"})
	mgr.started.Store("udid-2", &SimulatorInstance{UDID: "udid-2"})
	assert.ElementsMatch(t, []string{"udid-1", "udid-2"}, mgr.GetStartedSimulators())
}

func TestManager_ShutdownAll_Empty(t *testing.T) {
	mgr := NewManager(NewControl(&fakeRunner{}))
	assert.NoError(t, mgr.ShutdownAll(context.Background()))
}

func TestManager_Shutdown_NotStartedByUs(t *testing.T) {
	run := &fakeRunner{}
	mgr := NewManager(NewControl(run))
	assert.NoError(t, mgr.Shutdown(context.Background(), "unknown-udid"))
	assert.Empty(t, run.Calls())
}

func TestManager_StartByName(t *testing.T) {
	run := bootingRunner(0, "Booted")
	mgr := NewManager(NewControl(run, WithWaits(time.Second, 10*time.Millisecond)))

	got, err := mgr.StartByName(context.Background(), "iphone 15")
	require.NoError(t, err)
	assert.Equal(t, udid, got)
	assert.True(t, mgr.IsStartedByUs(udid))
	// Already booted: no boot command.
	assert.Equal(t, 0, run.count("xcrun simctl boot"))

	_, err = mgr.StartByName(context.Background(), "iPad")
	assert.Error(t, err)
}

func TestManager_ShutdownAll_Parallel(t *testing.T) {
	// Every device reports Shutdown, so each shutdown is confirmed on the first poll.
	run := &fakeRunner{handle: func(cmd string) ([]byte, error) {
		if strings.HasPrefix(cmd, "xcrun simctl shutdown bad") {
			return nil, errors.New("boom")
		}
		if strings.HasPrefix(cmd, "xcrun simctl list") {
			return deviceList(map[string][][3]string{
				"com.apple.CoreSimulator.SimRuntime.iOS-17-2": {{"a", "udid-1", "Shutdown"}, {"b", "udid-2", "Shutdown"}},
			}), nil
		}
		return nil, nil
	}}
	mgr := NewManager(NewControl(run, WithWaits(time.Second, 10*time.Millisecond)))
	mgr.started.Store("udid-1", &SimulatorInstance{UDID: "udid-1", BootStart: time.Now()})
	mgr.started.Store("udid-2", &SimulatorInstance{UDID: "udid-2", BootStart: time.Now()})

	require.NoError(t, mgr.ShutdownAll(context.Background()))
	assert.Empty(t, mgr.GetStartedSimulators())
	assert.Equal(t, 1, run.count("xcrun simctl shutdown udid-1"))
	assert.Equal(t, 1, run.count("xcrun simctl shutdown udid-2"))
}
