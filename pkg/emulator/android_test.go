package emulator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHost answers commands by their joined command line.
type fakeHost struct {
	mu     sync.Mutex
	calls  []string
	answer func(cmd string) (string, error)
}

func (f *fakeHost) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	cmd := strings.Join(append([]string{name}, args...), " ")
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()
	out, err := f.answer(cmd)
	return []byte(out), err
}

func (f *fakeHost) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

var errExit = errors.New("exit status 1")

// bootedHost reports every emulator as fully booted until "emu kill".
func bootedHost() *fakeHost {
	var killed sync.Map
	return &fakeHost{answer: func(cmd string) (string, error) {
		fields := strings.Fields(cmd)
		serial := ""
		if len(fields) > 2 && fields[1] == "-s" {
			serial = fields[2]
		}
		switch {
		case strings.HasSuffix(cmd, "emu kill"):
			killed.Store(serial, true)
			return "", nil
		case strings.HasSuffix(cmd, "get-state"):
			if _, gone := killed.Load(serial); gone {
				return "", errExit
			}
			return "device\n", nil
		case strings.HasSuffix(cmd, "getprop sys.boot_completed"):
			return "1\n", nil
		}
		return "", nil
	}}
}

type fakeProcess struct{ killed bool }

func (p *fakeProcess) Kill() error {
	p.killed = true
	return nil
}

type fakeStarter struct {
	mu    sync.Mutex
	args  [][]string
	procs []*fakeProcess
	err   error
}

func (s *fakeStarter) Start(name string, args ...string) (Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.args = append(s.args, append([]string{name}, args...))
	p := &fakeProcess{}
	s.procs = append(s.procs, p)
	return p, nil
}

func newTestControl(host *fakeHost, starter *fakeStarter) *Control {
	return NewControl(
		WithRunner(host),
		WithStarter(starter.Start),
		WithBinaries("adb", "emulator"),
		WithPollInterval(5*time.Millisecond),
	)
}

func TestIsEmulator(t *testing.T) {
	tests := []struct {
		serial   string
		expected bool
	}{
		{"emulator-5554", true},
		{"emulator-5556", true},
		{"R5CR50ABCDE", false},
		{"", false},
		{"emulator", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, IsEmulator(tt.serial), tt.serial)
	}
}

func TestGetAndroidHome(t *testing.T) {
	t.Setenv("ANDROID_HOME", "/path/to/android")
	t.Setenv("ANDROID_SDK_ROOT", "/other/path")
	t.Setenv("ANDROID_SDK_HOME", "")
	assert.Equal(t, "/path/to/android", getAndroidHome())

	t.Setenv("ANDROID_HOME", "")
	assert.Equal(t, "/other/path", getAndroidHome())

	t.Setenv("ANDROID_SDK_ROOT", "")
	assert.Equal(t, "", getAndroidHome())
}

func TestFindEmulatorBinary(t *testing.T) {
	home := t.TempDir()
	bin := filepath.Join(home, "emulator", "emulator")
	require.NoError(t, os.MkdirAll(filepath.Dir(bin), 0o755))
	require.NoError(t, os.WriteFile(bin, nil, 0o755))
	t.Setenv("ANDROID_HOME", home)

	got, err := FindEmulatorBinary()
	require.NoError(t, err)
	assert.Equal(t, bin, got)
}

func TestBootStatus_IsFullyReady(t *testing.T) {
	assert.True(t, (&BootStatus{true, true, true, true}).IsFullyReady())
	assert.False(t, (&BootStatus{true, true, true, false}).IsFullyReady())
	assert.False(t, (&BootStatus{}).IsFullyReady())
}

func TestListAVDs(t *testing.T) {
	host := &fakeHost{answer: func(cmd string) (string, error) {
		if cmd == "emulator -list-avds" {
			return "Pixel_7_API_33\n\nPixel_Tablet_API_34\n", nil
		}
		return "", errExit
	}}
	avds, err := newTestControl(host, &fakeStarter{}).ListAVDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []AVDInfo{{Name: "Pixel_7_API_33"}, {Name: "Pixel_Tablet_API_34"}}, avds)
}

func TestCheckBootStatus(t *testing.T) {
	ctx := context.Background()

	offline := &fakeHost{answer: func(string) (string, error) { return "", errExit }}
	status := newTestControl(offline, &fakeStarter{}).CheckBootStatus(ctx, "emulator-5554")
	assert.Equal(t, BootStatus{}, status)
	assert.Len(t, offline.Calls(), 1, "later stages are skipped until adb sees the device")

	booting := &fakeHost{answer: func(cmd string) (string, error) {
		if strings.HasSuffix(cmd, "get-state") {
			return "device", nil
		}
		return "0", nil
	}}
	status = newTestControl(booting, &fakeStarter{}).CheckBootStatus(ctx, "emulator-5554")
	assert.True(t, status.StateReady)
	assert.False(t, status.BootCompleted)
	assert.False(t, status.IsFullyReady())
}

func TestStart(t *testing.T) {
	host := bootedHost()
	starter := &fakeStarter{}

	serial, proc, err := newTestControl(host, starter).Start(context.Background(), "Pixel_7_API_33", 5556, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "emulator-5556", serial)
	assert.NotNil(t, proc)
	require.Len(t, starter.args, 1)
	assert.Equal(t, []string{"emulator", "-avd", "Pixel_7_API_33", "-port", "5556",
		"-netdelay", "none", "-netspeed", "full", "-no-boot-anim", "-no-snapshot-load"}, starter.args[0])
	assert.Contains(t, host.Calls(), "adb -s emulator-5556 shell pm get-max-users")
}

func TestStart_ProcessFails(t *testing.T) {
	starter := &fakeStarter{err: errors.New("no such AVD")}
	_, _, err := newTestControl(bootedHost(), starter).Start(context.Background(), "Missing", 5554, time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such AVD")
}

func TestShutdown(t *testing.T) {
	host := bootedHost()
	err := newTestControl(host, &fakeStarter{}).Shutdown(context.Background(), "emulator-5554", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "adb -s emulator-5554 emu kill", host.Calls()[0])
	for _, c := range host.Calls() {
		assert.NotContains(t, c, "pgrep")
	}
}

func TestShutdown_ForceKill(t *testing.T) {
	host := &fakeHost{answer: func(cmd string) (string, error) {
		switch {
		case strings.HasPrefix(cmd, "pgrep"):
			return "123 456\n", nil
		case cmd == "kill -TERM 456":
			return "", errExit
		}
		return "device", nil
	}}
	err := newTestControl(host, &fakeStarter{}).Shutdown(context.Background(), "emulator-5554", 30*time.Millisecond)
	require.NoError(t, err)

	calls := host.Calls()
	assert.Contains(t, calls, "pgrep -f emulator.*-port 5554")
	assert.Contains(t, calls, "kill -TERM 123")
	assert.Contains(t, calls, "kill -KILL 456")
	assert.NotContains(t, calls, "kill -KILL 123")
}

func TestShutdown_ForceKillBadSerial(t *testing.T) {
	host := &fakeHost{answer: func(string) (string, error) { return "device", nil }}
	err := newTestControl(host, &fakeStarter{}).Shutdown(context.Background(), "R5CR50ABCDE", 20*time.Millisecond)
	require.Error(t, err)
}
