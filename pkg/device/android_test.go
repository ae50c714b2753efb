package device

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

	"github.com/devicelab-dev/maestro-device/pkg/core"
)

// fakeADB answers adb invocations by the joined argument string after "-s <serial>".
type fakeADB struct {
	mu      sync.Mutex
	calls   []string
	answers map[string]string
	fail    map[string]bool
}

func (f *fakeADB) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	if len(args) >= 2 && args[0] == "-s" {
		args = args[2:]
	}
	cmd := strings.Join(args, " ")
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()
	if f.fail[cmd] {
		return nil, errors.New("exit status 1: error: device offline")
	}
	return []byte(f.answers[cmd]), nil
}

func (f *fakeADB) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newFake(answers map[string]string) *fakeADB {
	if answers == nil {
		answers = map[string]string{}
	}
	if _, ok := answers["get-state"]; !ok {
		answers["get-state"] = "device\n"
	}
	return &fakeADB{answers: answers, fail: map[string]bool{}}
}

func newDevice(t *testing.T, fake *fakeADB) *AndroidDevice {
	t.Helper()
	d, err := New(context.Background(), "emulator-5554", WithRunner(fake), WithADB("adb"))
	require.NoError(t, err)
	return d
}

func TestNew_AutoDetectSerial(t *testing.T) {
	fake := newFake(map[string]string{
		"devices": "List of devices attached\nR58M12345\toffline\nemulator-5556\tdevice\n\n",
	})
	d, err := New(context.Background(), "", WithRunner(fake), WithADB("adb"))
	require.NoError(t, err)
	assert.Equal(t, "emulator-5556", d.Serial())
}

func TestNew_NoDevices(t *testing.T) {
	fake := newFake(map[string]string{"devices": "List of devices attached\n\n"})
	_, err := New(context.Background(), "", WithRunner(fake), WithADB("adb"))
	assert.ErrorContains(t, err, "no connected devices found")
}

func TestNew_DeviceNeverOnline(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the device timeout")
	}
	fake := newFake(map[string]string{"get-state": "offline\n"})
	start := time.Now()
	_, err := New(context.Background(), "emulator-5554", WithRunner(fake), WithADB("adb"))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Second)
}

func TestList(t *testing.T) {
	fake := newFake(map[string]string{
		"devices": "List of devices attached\nemulator-5554\tdevice\nR58M\toffline\nemulator-5556\tdevice\n",
	})
	serials, err := List(context.Background(), WithRunner(fake), WithADB("adb"))
	require.NoError(t, err)
	assert.Equal(t, []string{"emulator-5554", "emulator-5556"}, serials)
}

func TestShellAndForward(t *testing.T) {
	fake := newFake(map[string]string{"shell echo hi": "hi\n"})
	d := newDevice(t, fake)
	ctx := context.Background()

	out, err := d.Shell(ctx, "echo hi")
	require.NoError(t, err)
	assert.Equal(t, "hi\n", out)

	require.NoError(t, d.Forward(ctx, 7001, DriverServicePort))
	require.NoError(t, d.RemoveForward(ctx, 7001))

	calls := fake.Calls()
	assert.Contains(t, calls, "forward tcp:7001 tcp:7001")
	assert.Contains(t, calls, "forward --remove tcp:7001")
}

func TestAdbError(t *testing.T) {
	fake := newFake(nil)
	fake.fail["uninstall com.example"] = true
	d := newDevice(t, fake)

	err := d.Uninstall(context.Background(), "com.example")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "adb uninstall com.example")
	assert.Contains(t, err.Error(), "device offline")
}

func TestIsInstalled_ExactMatch(t *testing.T) {
	fake := newFake(map[string]string{
		"shell pm list packages dev.mobile.maestro": "package:dev.mobile.maestro\npackage:dev.mobile.maestro.test\n",
		"shell pm list packages com.example":        "package:com.example.other\n",
	})
	d := newDevice(t, fake)
	assert.True(t, d.IsInstalled(context.Background(), "dev.mobile.maestro"))
	assert.False(t, d.IsInstalled(context.Background(), "com.example"))
}

func TestInfo(t *testing.T) {
	fake := newFake(map[string]string{
		"shell getprop ro.product.model":     "Pixel 7\n",
		"shell getprop ro.build.version.sdk": "34\n",
		"shell getprop ro.product.brand":     "google\n",
		"shell getprop ro.kernel.qemu":       "1\n",
	})
	info := newDevice(t, fake).Info(context.Background())
	assert.Equal(t, Info{Serial: "emulator-5554", Model: "Pixel 7", SDK: "34", Brand: "google", IsEmulator: true}, info)
}

func TestStartDriverService(t *testing.T) {
	fake := newFake(map[string]string{
		"shell pm list packages " + DriverServiceApp:  "package:" + DriverServiceApp + "\n",
		"shell pm list packages " + DriverServiceTest: "package:" + DriverServiceTest + "\n",
	})
	d := newDevice(t, fake)
	require.NoError(t, d.StartDriverService(context.Background()))

	calls := fake.Calls()
	last := calls[len(calls)-1]
	assert.Contains(t, last, "am instrument -w -m")
	assert.Contains(t, last, "MaestroDriverService#grpcServer")
	assert.Contains(t, last, DriverServiceTest+"/androidx.test.runner.AndroidJUnitRunner")
	assert.Contains(t, calls, "shell am force-stop "+DriverServiceApp)
}

func TestStartDriverService_NotInstalled(t *testing.T) {
	d := newDevice(t, newFake(nil))
	err := d.StartDriverService(context.Background())
	assert.ErrorContains(t, err, "driver service not installed")
}

func TestInstallDriverService(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "maestro-app.apk"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "maestro-server.apk"), nil, 0o644))

	fake := newFake(map[string]string{
		"shell pm list packages " + DriverServiceApp: "package:" + DriverServiceApp + "\n",
	})
	d := newDevice(t, fake)
	require.NoError(t, d.InstallDriverService(context.Background(), dir))

	calls := fake.Calls()
	assert.Contains(t, calls, "install -r -g "+filepath.Join(dir, "maestro-server.apk"))
	assert.NotContains(t, calls, "install -r -g "+filepath.Join(dir, "maestro-app.apk"))
}

func TestInstallDriverService_MissingAPK(t *testing.T) {
	d := newDevice(t, newFake(nil))
	err := d.InstallDriverService(context.Background(), t.TempDir())
	assert.ErrorContains(t, err, "no APK found matching maestro-app.apk")
}

func TestUninstallDriverService(t *testing.T) {
	fake := newFake(map[string]string{
		"shell pm list packages " + DriverServiceApp:  "package:" + DriverServiceApp + "\n",
		"shell pm list packages " + DriverServiceTest: "package:" + DriverServiceTest + "\n",
	})
	fake.fail["uninstall "+DriverServiceTest] = true
	d := newDevice(t, fake)

	err := d.UninstallDriverService(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), DriverServiceTest)
	assert.Contains(t, fake.Calls(), "uninstall "+DriverServiceApp)
}

func TestFindFreePort(t *testing.T) {
	port, err := FindFreePort()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, port, portRangeStart)
	assert.LessOrEqual(t, port, portRangeEnd)
}
