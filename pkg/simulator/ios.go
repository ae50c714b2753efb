// Package simulator wraps xcrun simctl for iOS simulator lifecycle and app control.
package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver"

	"github.com/devicelab-dev/maestro-device/pkg/logger"
	"github.com/devicelab-dev/maestro-device/pkg/wait"
)

// Defaults for bounded waits.
const (
	DefaultBootTimeout  = 30 * time.Second
	DefaultPollInterval = time.Second
)

// Control runs simctl commands through a CommandRunner.
type Control struct {
	run           CommandRunner
	home          string
	applesimutils string
	bootTimeout   time.Duration
	pollInterval  time.Duration
	settleDelay   time.Duration
}

// Option configures a Control.
type Option func(*Control)

// WithHome overrides the user home directory used for keychain and tool paths.
func WithHome(home string) Option {
	return func(c *Control) { c.home = home }
}

// WithApplesimutils sets the applesimutils binary used for permission grants.
func WithApplesimutils(path string) Option {
	return func(c *Control) { c.applesimutils = path }
}

// WithWaits overrides the boot/shutdown deadline and poll interval.
func WithWaits(timeout, interval time.Duration) Option {
	return func(c *Control) {
		c.bootTimeout = timeout
		c.pollInterval = interval
	}
}

// WithSettleDelay sets how long ClearAppState waits after terminating the app.
func WithSettleDelay(d time.Duration) Option {
	return func(c *Control) { c.settleDelay = d }
}

// NewControl creates a Control. A nil runner runs commands on the host.
func NewControl(run CommandRunner, opts ...Option) *Control {
	if run == nil {
		run = ExecRunner{}
	}
	home, _ := os.UserHomeDir()
	c := &Control{
		run:          run,
		home:         home,
		bootTimeout:  DefaultBootTimeout,
		pollInterval: DefaultPollInterval,
		settleDelay:  1500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.applesimutils == "" {
		c.applesimutils = c.home + "/.maestro/deps/applesimutils"
	}
	return c
}

// FindSimctlBinary verifies that xcrun/simctl is available.
func FindSimctlBinary() (string, error) {
	path, err := exec.LookPath("xcrun")
	if err != nil {
		return "", fmt.Errorf("xcrun not found; install Xcode Command Line Tools: xcode-select --install")
	}
	return path, nil
}

func (c *Control) simctl(ctx context.Context, args ...string) ([]byte, error) {
	return c.run.Run(ctx, "xcrun", append([]string{"simctl"}, args...)...)
}

// simctlDevicesOutput represents the JSON output from xcrun simctl list devices.
type simctlDevicesOutput struct {
	Devices map[string][]simctlDevice `json:"devices"`
}

type simctlDevice struct {
	Name        string `json:"name"`
	UDID        string `json:"udid"`
	State       string `json:"state"`
	IsAvailable bool   `json:"isAvailable"`
}

// ListSimulators returns all available simulators, newest runtime first.
func (c *Control) ListSimulators(ctx context.Context) ([]SimulatorDevice, error) {
	output, err := c.simctl(ctx, "list", "devices", "available", "-j")
	if err != nil {
		return nil, fmt.Errorf("failed to list simulators: %w", err)
	}

	var data simctlDevicesOutput
	if err := json.Unmarshal(output, &data); err != nil {
		return nil, fmt.Errorf("failed to parse simctl output: %w", err)
	}

	var sims []SimulatorDevice
	for runtime, devices := range data.Devices {
		osVersion := extractOSVersion(runtime)
		for _, dev := range devices {
			if !dev.IsAvailable {
				continue
			}
			sims = append(sims, SimulatorDevice{
				Name:        dev.Name,
				UDID:        dev.UDID,
				Runtime:     runtime,
				OSVersion:   osVersion,
				State:       dev.State,
				IsAvailable: dev.IsAvailable,
			})
		}
	}
	sortNewestFirst(sims)

	logger.Debug("Found %d available simulators", len(sims))
	return sims, nil
}

// sortNewestFirst orders by OS version descending, then by name.
// Unparseable versions sort last.
func sortNewestFirst(sims []SimulatorDevice) {
	versions := make(map[string]*semver.Version)
	for _, s := range sims {
		if _, seen := versions[s.OSVersion]; seen {
			continue
		}
		v, err := semver.NewVersion(s.OSVersion)
		if err != nil {
			v = nil
		}
		versions[s.OSVersion] = v
	}
	sort.SliceStable(sims, func(i, j int) bool {
		vi, vj := versions[sims[i].OSVersion], versions[sims[j].OSVersion]
		switch {
		case vi != nil && vj != nil && !vi.Equal(vj):
			return vi.GreaterThan(vj)
		case vi != nil && vj == nil:
			return true
		case vi == nil && vj != nil:
			return false
		}
		if sims[i].Name != sims[j].Name {
			return sims[i].Name < sims[j].Name
		}
		return sims[i].UDID < sims[j].UDID
	})
}

// ListShutdownSimulators returns available simulators that are currently shut down.
func (c *Control) ListShutdownSimulators(ctx context.Context) ([]SimulatorDevice, error) {
	sims, err := c.ListSimulators(ctx)
	if err != nil {
		return nil, err
	}

	var shutdown []SimulatorDevice
	for _, sim := range sims {
		if sim.State == StateShutdown {
			shutdown = append(shutdown, sim)
		}
	}
	return shutdown, nil
}

// Find returns the simulator with the given UDID.
func (c *Control) Find(ctx context.Context, udid string) (*SimulatorDevice, error) {
	sims, err := c.ListSimulators(ctx)
	if err != nil {
		return nil, err
	}
	for i := range sims {
		if sims[i].UDID == udid {
			return &sims[i], nil
		}
	}
	return nil, fmt.Errorf("simulator not found: %s", udid)
}

// IsSimulator checks if a UDID belongs to a known simulator.
func (c *Control) IsSimulator(ctx context.Context, udid string) bool {
	_, err := c.Find(ctx, udid)
	return err == nil
}

// CheckBootStatus checks if a simulator is booted.
func (c *Control) CheckBootStatus(ctx context.Context, udid string) (*BootStatus, error) {
	sim, err := c.Find(ctx, udid)
	if err != nil {
		return nil, err
	}
	return &BootStatus{Booted: sim.State == StateBooted}, nil
}

// WaitForBoot polls until the simulator reports Booted.
func (c *Control) WaitForBoot(ctx context.Context, udid string) error {
	logger.Info("Waiting for simulator boot: %s", udid)
	return wait.Until(ctx, "simulator "+udid+" to boot", c.bootTimeout, c.pollInterval,
		func(ctx context.Context) (bool, error) {
			status, err := c.CheckBootStatus(ctx, udid)
			if err != nil {
				logger.Debug("Boot check error: %v", err)
				return false, nil
			}
			return status.IsReady(), nil
		})
}

// WaitForShutdown polls until the simulator is no longer Booted.
func (c *Control) WaitForShutdown(ctx context.Context, udid string) error {
	return wait.Until(ctx, "simulator "+udid+" to shut down", c.bootTimeout, c.pollInterval,
		func(ctx context.Context) (bool, error) {
			status, err := c.CheckBootStatus(ctx, udid)
			return err != nil || !status.Booted, nil
		})
}

// Boot boots a simulator and waits for it to be ready.
func (c *Control) Boot(ctx context.Context, udid string) error {
	logger.Info("Booting simulator: %s", udid)

	if _, err := c.simctl(ctx, "boot", udid); err != nil {
		if !alreadyInState(err, StateBooted) {
			return fmt.Errorf("failed to boot simulator: %w", err)
		}
		logger.Info("Simulator already booted: %s", udid)
		return nil
	}

	if err := c.WaitForBoot(ctx, udid); err != nil {
		return err
	}

	// Open the Simulator UI
	if _, err := c.run.Run(ctx, "open", "-a", "Simulator", "--args", "-CurrentDeviceUDID", udid); err != nil {
		logger.Debug("Failed to open Simulator app: %v", err)
	}
	logger.Info("Simulator booted: %s", udid)
	return nil
}

// Shutdown shuts a simulator down and waits until it is confirmed.
func (c *Control) Shutdown(ctx context.Context, udid string) error {
	logger.Info("Shutting down simulator: %s", udid)

	if _, err := c.simctl(ctx, "shutdown", udid); err != nil {
		if alreadyInState(err, StateShutdown) {
			logger.Info("Simulator already shutdown: %s", udid)
			return nil
		}
		logger.Warn("simctl shutdown failed for %s: %v", udid, err)
	}

	if err := c.WaitForShutdown(ctx, udid); err != nil {
		return err
	}
	logger.Info("Simulator shutdown confirmed: %s", udid)
	return nil
}

// Reboot shuts the simulator down and boots it again.
func (c *Control) Reboot(ctx context.Context, udid string) error {
	if err := c.Shutdown(ctx, udid); err != nil {
		return err
	}
	if _, err := c.simctl(ctx, "boot", udid); err != nil {
		return fmt.Errorf("failed to boot simulator: %w", err)
	}
	return c.WaitForBoot(ctx, udid)
}

// AddTrustedCertificate installs a root certificate. The keychain only picks
// it up after a reboot, so this reboots the simulator.
func (c *Control) AddTrustedCertificate(ctx context.Context, udid, certPath string) error {
	if _, err := c.simctl(ctx, "keychain", udid, "add-root-cert", certPath); err != nil {
		return fmt.Errorf("failed to add root certificate: %w", err)
	}
	return c.Reboot(ctx, udid)
}

func alreadyInState(err error, state string) bool {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return strings.Contains(cmdErr.Output, "current state: "+state)
	}
	return strings.Contains(err.Error(), "current state: "+state)
}

// extractOSVersion extracts version from runtime string.
// e.g., "com.apple.CoreSimulator.SimRuntime.iOS-17-2" -> "17.2"
func extractOSVersion(runtime string) string {
	for _, prefix := range []string{"iOS-", "watchOS-", "tvOS-", "xrOS-"} {
		if idx := strings.LastIndex(runtime, prefix); idx != -1 {
			return strings.ReplaceAll(runtime[idx+len(prefix):], "-", ".")
		}
	}
	return ""
}
