package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/devicelab-dev/maestro-device/pkg/config"
	"github.com/devicelab-dev/maestro-device/pkg/core"
	"github.com/devicelab-dev/maestro-device/pkg/driver/composite"
	"github.com/devicelab-dev/maestro-device/pkg/driver/idb"
	"github.com/devicelab-dev/maestro-device/pkg/driver/simctl"
	"github.com/devicelab-dev/maestro-device/pkg/driver/xctest"
	"github.com/devicelab-dev/maestro-device/pkg/logger"
	"github.com/devicelab-dev/maestro-device/pkg/simulator"
	"github.com/devicelab-dev/maestro-device/pkg/transport"
)

// runnerBundleID is the bundle id of the installed companion runner.
const runnerBundleID = "dev.mobile.maestro-driver-iosUITests.xctrunner"

var errNoBootedSimulator = errors.New("no booted simulator found")

func newControl(cfg *config.Config) *simulator.Control {
	return simulator.NewControl(simulator.ExecRunner{}, simulator.WithApplesimutils(cfg.IOS.Applesimutils))
}

// newIOSDevice assembles the composite simulator device: the XCTest companion
// for UI calls, idb and simctl for the rest.
func newIOSDevice(ctx context.Context, cfg *config.Config) (core.Device, error) {
	if _, err := simulator.FindSimctlBinary(); err != nil {
		return nil, err
	}
	ctl := newControl(cfg)

	udid := cfg.Device
	if udid == "" {
		logger.Info("Auto-detecting booted simulator...")
		found, err := findBootedSimulator(ctx, ctl)
		if err != nil {
			return nil, fmt.Errorf("%w\nHint: boot one with `maestro-device start-device --name <name>` or pass --device <UDID>", err)
		}
		udid = found
	} else if !ctl.IsSimulator(ctx, udid) {
		return nil, fmt.Errorf("%s is not an available simulator", udid)
	}

	runnerApp, xctestrun, err := findRunner(cfg.IOS.RunnerDir)
	if err != nil {
		return nil, err
	}

	installer := xctest.NewLocalInstaller(xctest.LocalInstallerConfig{
		DeviceUDID: udid,
		BundleID:   runnerBundleID,
		RunnerApp:  runnerApp,
		XCTestRun:  xctestrun,
		LogDir:     config.GetLogsDir(),
		Port:       cfg.IOS.CompanionPort,
	}, ctl)
	logger.Info("Using simulator %s (companion port %d)", udid, installer.Port())

	xc := xctest.New(xctest.Config{
		DeviceID:  udid,
		Port:      installer.Port(),
		Installer: installer,
		InstalledApps: func(ctx context.Context) ([]string, error) {
			return ctl.InstalledApps(ctx, udid)
		},
		InputDelay:   cfg.IOS.InputDelay,
		ReadyTimeout: cfg.IOS.ReadyTimeout,
		TransportOptions: []transport.Option{
			transport.WithTimeouts(cfg.Transport.ConnectTimeout, cfg.Transport.ReadTimeout),
		},
	})
	ib := idb.New(idb.Config{UDID: udid, Binary: cfg.IOS.IDB})
	sc := simctl.New(udid, ctl)
	return composite.New(udid, xc, ib, sc), nil
}

// findBootedSimulator returns the first booted simulator, newest runtime first.
func findBootedSimulator(ctx context.Context, ctl *simulator.Control) (string, error) {
	sims, err := ctl.ListSimulators(ctx)
	if err != nil {
		return "", err
	}
	for _, sim := range sims {
		if sim.State == simulator.StateBooted {
			logger.Info("Found booted simulator: %s (%s)", sim.Name, sim.UDID)
			return sim.UDID, nil
		}
	}
	return "", errNoBootedSimulator
}

// findRunner locates the companion build products in dir.
func findRunner(dir string) (runnerApp, xctestrun string, err error) {
	apps, _ := filepath.Glob(filepath.Join(dir, "*-Runner.app"))
	runs, _ := filepath.Glob(filepath.Join(dir, "*.xctestrun"))
	if len(apps) == 0 || len(runs) == 0 {
		return "", "", fmt.Errorf("companion runner not found in %s (need *-Runner.app and *.xctestrun)\n"+
			"Hint: set ios.runnerDir in config.yaml or MAESTRO_IOS_RUNNER_DIR", dir)
	}
	return apps[0], runs[0], nil
}
