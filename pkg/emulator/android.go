// Package emulator boots and shuts down Android emulators.
package emulator

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/devicelab-dev/maestro-device/pkg/device"
	"github.com/devicelab-dev/maestro-device/pkg/logger"
	"github.com/devicelab-dev/maestro-device/pkg/wait"
)

// Timeouts for the boot and shutdown stages.
const (
	DefaultStateTimeout    = 60 * time.Second
	DefaultBootTimeout     = 180 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	minBootTimeout         = 30 * time.Second
)

// Process is a started emulator process.
type Process interface {
	Kill() error
}

// StartFunc starts a long-running process without waiting for it.
type StartFunc func(name string, args ...string) (Process, error)

func startProcess(name string, args ...string) (Process, error) {
	// Not bound to a context: the emulator outlives the command that booted it.
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd.Process, nil
}

// Control runs emulator and adb commands.
type Control struct {
	run          device.Runner
	start        StartFunc
	adb          string
	emulator     string
	pollInterval time.Duration
	stateTimeout time.Duration
}

// Option configures a Control.
type Option func(*Control)

// WithRunner replaces the host command runner.
func WithRunner(run device.Runner) Option {
	return func(c *Control) { c.run = run }
}

// WithStarter replaces how the emulator process is started.
func WithStarter(start StartFunc) Option {
	return func(c *Control) { c.start = start }
}

// WithBinaries sets the adb and emulator binaries.
func WithBinaries(adb, emulator string) Option {
	return func(c *Control) {
		c.adb = adb
		c.emulator = emulator
	}
}

// WithPollInterval sets the readiness poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(c *Control) { c.pollInterval = d }
}

// NewControl creates a Control. The emulator binary is looked up lazily.
func NewControl(opts ...Option) *Control {
	c := &Control{
		run:          device.ExecRunner{},
		start:        startProcess,
		adb:          "adb",
		pollInterval: time.Second,
		stateTimeout: DefaultStateTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Control) emulatorBinary() (string, error) {
	if c.emulator != "" {
		return c.emulator, nil
	}
	path, err := FindEmulatorBinary()
	if err != nil {
		return "", err
	}
	c.emulator = path
	return path, nil
}

// FindEmulatorBinary locates the Android emulator binary
func FindEmulatorBinary() (string, error) {
	if androidHome := getAndroidHome(); androidHome != "" {
		for _, rel := range []string{"emulator/emulator", "tools/emulator"} {
			p := filepath.Join(androidHome, filepath.FromSlash(rel))
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
	}
	if path, err := exec.LookPath("emulator"); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("emulator binary not found. Set ANDROID_HOME or add emulator to PATH")
}

func getAndroidHome() string {
	for _, env := range []string{"ANDROID_HOME", "ANDROID_SDK_ROOT", "ANDROID_SDK_HOME"} {
		if home := os.Getenv(env); home != "" {
			return home
		}
	}
	return ""
}

// IsEmulator checks if a device serial is an emulator
func IsEmulator(serial string) bool {
	return strings.HasPrefix(serial, "emulator-")
}

// ListAVDs returns all available Android Virtual Devices
func (c *Control) ListAVDs(ctx context.Context) ([]AVDInfo, error) {
	bin, err := c.emulatorBinary()
	if err != nil {
		return nil, err
	}
	out, err := c.run.Run(ctx, bin, "-list-avds")
	if err != nil {
		return nil, fmt.Errorf("failed to list AVDs: %w", err)
	}

	var avds []AVDInfo
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			avds = append(avds, AVDInfo{Name: line})
		}
	}
	logger.Debug("Found %d AVDs", len(avds))
	return avds, nil
}

func (c *Control) adbOK(ctx context.Context, serial string, args ...string) (string, bool) {
	out, err := c.run.Run(ctx, c.adb, append([]string{"-s", serial}, args...)...)
	return strings.TrimSpace(string(out)), err == nil
}

// CheckBootStatus checks the device state, the boot property and the
// settings and package manager services, in that order.
func (c *Control) CheckBootStatus(ctx context.Context, serial string) BootStatus {
	var status BootStatus
	state, ok := c.adbOK(ctx, serial, "get-state")
	status.StateReady = ok && state == "device"
	if !status.StateReady {
		return status
	}
	boot, ok := c.adbOK(ctx, serial, "shell", "getprop", "sys.boot_completed")
	status.BootCompleted = ok && boot == "1"
	_, status.SettingsReady = c.adbOK(ctx, serial, "shell", "settings", "list", "global")
	_, status.PackageManager = c.adbOK(ctx, serial, "shell", "pm", "get-max-users")
	return status
}

// WaitForDeviceState waits for the device to appear in adb.
func (c *Control) WaitForDeviceState(ctx context.Context, serial string, timeout time.Duration) error {
	return wait.Until(ctx, "device state of "+serial, timeout, c.pollInterval, func(ctx context.Context) (bool, error) {
		state, ok := c.adbOK(ctx, serial, "get-state")
		return ok && state == "device", nil
	})
}

// WaitForBootComplete waits until every boot check passes.
func (c *Control) WaitForBootComplete(ctx context.Context, serial string, timeout time.Duration) error {
	logger.Info("Waiting for emulator boot complete: %s", serial)
	return wait.Until(ctx, "boot of "+serial, timeout, c.pollInterval, func(ctx context.Context) (bool, error) {
		status := c.CheckBootStatus(ctx, serial)
		logger.Debug("Boot status for %s: state=%v, boot=%v, settings=%v, pm=%v",
			serial, status.StateReady, status.BootCompleted, status.SettingsReady, status.PackageManager)
		return status.IsFullyReady(), nil
	})
}

// Start boots an AVD on the given console port and waits until it is fully
// booted. The process is killed if it never gets there.
func (c *Control) Start(ctx context.Context, avdName string, consolePort int, timeout time.Duration) (string, Process, error) {
	bin, err := c.emulatorBinary()
	if err != nil {
		return "", nil, err
	}
	logger.Info("Starting emulator: %s on port %d", avdName, consolePort)
	bootStart := time.Now()
	serial := fmt.Sprintf("emulator-%d", consolePort)

	proc, err := c.start(bin,
		"-avd", avdName,
		"-port", strconv.Itoa(consolePort),
		"-netdelay", "none",
		"-netspeed", "full",
		"-no-boot-anim",
		"-no-snapshot-load",
	)
	if err != nil {
		return "", nil, fmt.Errorf("failed to start emulator process: %w", err)
	}

	if err := c.WaitForDeviceState(ctx, serial, c.stateTimeout); err != nil {
		_ = proc.Kill()
		return "", nil, fmt.Errorf("device state check failed: %w", err)
	}

	remaining := timeout - time.Since(bootStart)
	if remaining < minBootTimeout {
		remaining = minBootTimeout
	}
	if err := c.WaitForBootComplete(ctx, serial, remaining); err != nil {
		_ = proc.Kill()
		return "", nil, err
	}

	logger.Info("Emulator boot completed in %v", time.Since(bootStart))
	return serial, proc, nil
}

// Shutdown asks the emulator to exit and waits until adb loses it. If that
// times out the emulator process is killed.
func (c *Control) Shutdown(ctx context.Context, serial string, timeout time.Duration) error {
	logger.Info("Shutting down emulator: %s", serial)
	if _, ok := c.adbOK(ctx, serial, "emu", "kill"); !ok {
		logger.Warn("adb emu kill failed for %s", serial)
	}

	err := wait.Until(ctx, "shutdown of "+serial, timeout, c.pollInterval, func(ctx context.Context) (bool, error) {
		_, ok := c.adbOK(ctx, serial, "get-state")
		return !ok, nil
	})
	if err == nil {
		logger.Info("Emulator shutdown confirmed: %s", serial)
		return nil
	}

	logger.Warn("Emulator shutdown timeout, trying force kill: %s", serial)
	if err := c.forceKill(ctx, serial); err != nil {
		return fmt.Errorf("failed to shutdown emulator after %v: %w", timeout, err)
	}
	return nil
}

func (c *Control) forceKill(ctx context.Context, serial string) error {
	var port int
	if _, err := fmt.Sscanf(serial, "emulator-%d", &port); err != nil {
		return fmt.Errorf("failed to extract port from serial %s: %w", serial, err)
	}

	out, err := c.run.Run(ctx, "pgrep", "-f", fmt.Sprintf("emulator.*-port %d", port))
	if err != nil {
		return fmt.Errorf("could not find emulator process for %s", serial)
	}
	pids := strings.Fields(string(out))
	if len(pids) == 0 {
		return fmt.Errorf("no emulator process found for %s", serial)
	}
	for _, pid := range pids {
		if _, err := c.run.Run(ctx, "kill", "-TERM", pid); err != nil {
			logger.Warn("SIGTERM failed for PID %s, using SIGKILL", pid)
			if _, err := c.run.Run(ctx, "kill", "-KILL", pid); err != nil {
				logger.Error("SIGKILL failed for PID %s: %v", pid, err)
			}
		}
	}
	return nil
}
