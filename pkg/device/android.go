// Package device provides Android device management via ADB.
package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/devicelab-dev/maestro-device/pkg/logger"
	"github.com/devicelab-dev/maestro-device/pkg/wait"
)

// Runner runs an external command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands on the host. Stderr is folded into the error.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		errMsg := stderr.String()
		if errMsg == "" {
			errMsg = stdout.String()
		}
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(errMsg))
	}
	return stdout.Bytes(), nil
}

// AndroidDevice manages an Android device connection via ADB.
type AndroidDevice struct {
	serial  string
	adbPath string
	run     Runner
}

// Info contains basic device information.
type Info struct {
	Serial     string
	Model      string
	SDK        string
	Brand      string
	IsEmulator bool
}

// Option configures an AndroidDevice.
type Option func(*AndroidDevice)

// WithRunner replaces the host command runner.
func WithRunner(run Runner) Option {
	return func(d *AndroidDevice) { d.run = run }
}

// WithADB sets the adb binary instead of looking it up in PATH.
func WithADB(path string) Option {
	return func(d *AndroidDevice) { d.adbPath = path }
}

// New creates an AndroidDevice for the given serial. If serial is empty, the
// first connected device is used. The device must be online within 5s.
func New(ctx context.Context, serial string, opts ...Option) (*AndroidDevice, error) {
	d := &AndroidDevice{serial: serial, run: ExecRunner{}}
	for _, opt := range opts {
		opt(d)
	}
	if d.adbPath == "" {
		path, err := findADB()
		if err != nil {
			return nil, err
		}
		d.adbPath = path
	}

	if d.serial == "" {
		serial, err := d.detectDeviceSerial(ctx)
		if err != nil {
			return nil, fmt.Errorf("no device specified and auto-detect failed: %w", err)
		}
		d.serial = serial
	}

	if err := d.WaitForDevice(ctx, 5*time.Second); err != nil {
		return nil, fmt.Errorf("device not found: %w", err)
	}
	return d, nil
}

// detectDeviceSerial finds the first connected device serial.
func (d *AndroidDevice) detectDeviceSerial(ctx context.Context) (string, error) {
	out, err := d.run.Run(ctx, d.adbPath, "devices")
	if err != nil {
		return "", err
	}
	return firstOnline(string(out))
}

func firstOnline(devices string) (string, error) {
	online := onlineSerials(devices)
	if len(online) == 0 {
		return "", errors.New("no connected devices found")
	}
	return online[0], nil
}

func onlineSerials(devices string) []string {
	var serials []string
	for _, line := range strings.Split(devices, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) >= 2 && parts[1] == "device" {
			serials = append(serials, parts[0])
		}
	}
	return serials
}

// List returns the serials of all online devices.
func List(ctx context.Context, opts ...Option) ([]string, error) {
	d := &AndroidDevice{run: ExecRunner{}}
	for _, opt := range opts {
		opt(d)
	}
	if d.adbPath == "" {
		path, err := findADB()
		if err != nil {
			return nil, err
		}
		d.adbPath = path
	}
	out, err := d.run.Run(ctx, d.adbPath, "devices")
	if err != nil {
		return nil, err
	}
	return onlineSerials(string(out)), nil
}

// Serial returns the device serial number.
func (d *AndroidDevice) Serial() string {
	return d.serial
}

// Shell executes a shell command on the device.
func (d *AndroidDevice) Shell(ctx context.Context, cmd string) (string, error) {
	return d.adb(ctx, "shell", cmd)
}

// Install installs an APK, replacing an existing install and granting
// runtime permissions.
func (d *AndroidDevice) Install(ctx context.Context, apkPath string) error {
	_, err := d.adb(ctx, "install", "-r", "-g", apkPath)
	return err
}

// Uninstall removes a package from the device.
func (d *AndroidDevice) Uninstall(ctx context.Context, pkg string) error {
	_, err := d.adb(ctx, "uninstall", pkg)
	return err
}

// IsInstalled checks if a package is installed.
func (d *AndroidDevice) IsInstalled(ctx context.Context, pkg string) bool {
	out, err := d.Shell(ctx, "pm list packages "+pkg)
	if err != nil {
		return false
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "package:"+pkg {
			return true
		}
	}
	return false
}

// Forward creates a port forward from local to device.
func (d *AndroidDevice) Forward(ctx context.Context, localPort, remotePort int) error {
	_, err := d.adb(ctx, "forward", fmt.Sprintf("tcp:%d", localPort), fmt.Sprintf("tcp:%d", remotePort))
	return err
}

// RemoveForward removes a port forward.
func (d *AndroidDevice) RemoveForward(ctx context.Context, localPort int) error {
	_, err := d.adb(ctx, "forward", "--remove", fmt.Sprintf("tcp:%d", localPort))
	return err
}

// Info returns device information. Missing properties are left empty.
func (d *AndroidDevice) Info(ctx context.Context) Info {
	info := Info{Serial: d.serial}
	prop := func(name string) string {
		out, err := d.Shell(ctx, "getprop "+name)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(out)
	}
	info.Model = prop("ro.product.model")
	info.SDK = prop("ro.build.version.sdk")
	info.Brand = prop("ro.product.brand")
	info.IsEmulator = prop("ro.kernel.qemu") == "1"
	return info
}

// adb executes an ADB command against this device.
func (d *AndroidDevice) adb(ctx context.Context, args ...string) (string, error) {
	cmdArgs := make([]string, 0, len(args)+2)
	if d.serial != "" {
		cmdArgs = append(cmdArgs, "-s", d.serial)
	}
	cmdArgs = append(cmdArgs, args...)

	out, err := d.run.Run(ctx, d.adbPath, cmdArgs...)
	if err != nil {
		return "", fmt.Errorf("adb %s: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}

// WaitForDevice waits for the device to report the "device" state.
func (d *AndroidDevice) WaitForDevice(ctx context.Context, timeout time.Duration) error {
	return wait.Until(ctx, "device "+d.serial, timeout, 500*time.Millisecond,
		func(ctx context.Context) (bool, error) {
			return d.isConnected(ctx), nil
		})
}

func (d *AndroidDevice) isConnected(ctx context.Context) bool {
	out, err := d.adb(ctx, "get-state")
	if err != nil {
		logger.Debug("adb get-state %s: %v", d.serial, err)
		return false
	}
	return strings.TrimSpace(out) == "device"
}

// findADB locates the ADB binary.
func findADB() (string, error) {
	if path, err := exec.LookPath("adb"); err == nil {
		return path, nil
	}
	return "", errors.New("adb not found in PATH; ensure Android SDK is installed")
}
