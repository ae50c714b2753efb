package xctest

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"howett.net/plist"

	"github.com/devicelab-dev/maestro-device/pkg/logger"
	"github.com/devicelab-dev/maestro-device/pkg/transport"
)

const (
	companionPortRange = 1000
	portEnvVar         = "PORT"
)

// SimulatorApps is the slice of simulator control the installer needs.
type SimulatorApps interface {
	Terminate(ctx context.Context, udid, bundleID string) error
	Uninstall(ctx context.Context, udid, bundleID string) error
	Install(ctx context.Context, udid, appPath string) error
}

// LocalInstaller manages the companion on a local simulator: it installs the
// UI-test runner bundle with simctl and starts it with xcodebuild.
type LocalInstaller struct {
	deviceUDID string
	bundleID   string // runner bundle id, e.g. dev.mobile.maestro-driver-iosUITests.xctrunner
	runnerApp  string // path to the *-Runner.app bundle
	xctestrun  string // path to the .xctestrun file
	logDir     string
	port       int
	sim        SimulatorApps
	probe      *transport.Client

	cmd     *exec.Cmd
	logFile *os.File
}

// LocalInstallerConfig configures a LocalInstaller.
type LocalInstallerConfig struct {
	DeviceUDID string
	BundleID   string
	RunnerApp  string
	XCTestRun  string
	LogDir     string
	Port       int // 0 derives the port from the UDID
}

// NewLocalInstaller creates an installer for one simulator.
func NewLocalInstaller(cfg LocalInstallerConfig, sim SimulatorApps) *LocalInstaller {
	port := cfg.Port
	if port == 0 {
		port = PortFromUDID(cfg.DeviceUDID)
	}
	return &LocalInstaller{
		deviceUDID: cfg.DeviceUDID,
		bundleID:   cfg.BundleID,
		runnerApp:  cfg.RunnerApp,
		xctestrun:  cfg.XCTestRun,
		logDir:     cfg.LogDir,
		port:       port,
		sim:        sim,
		probe: transport.New(fmt.Sprintf("http://localhost:%d", port),
			transport.WithoutNetworkInterceptor(),
			transport.WithTimeouts(time.Second, 2*time.Second)),
	}
}

// Port returns the companion port for this device.
func (i *LocalInstaller) Port() int {
	return i.port
}

// PortFromUDID derives a deterministic companion port from a device UDID.
// Uses the last UUID segment parsed as hex, mod 1000, added to the default
// port. Range: 22087-23086.
func PortFromUDID(udid string) int {
	seg := udid
	if idx := strings.LastIndex(udid, "-"); idx >= 0 {
		seg = udid[idx+1:]
	}
	val, err := strconv.ParseUint(seg, 16, 64)
	if err != nil {
		return DefaultPort
	}
	return DefaultPort + int(val%companionPortRange)
}

// Kill stops the runner process and terminates the runner app.
func (i *LocalInstaller) Kill(ctx context.Context) error {
	i.stopProcess()
	if err := i.sim.Terminate(ctx, i.deviceUDID, i.bundleID); err != nil {
		// Terminating an app that is not running fails; that is the normal case.
		logger.Debug("terminate %s on %s: %v", i.bundleID, i.deviceUDID, err)
	}
	return nil
}

func (i *LocalInstaller) Uninstall(ctx context.Context) error {
	return i.sim.Uninstall(ctx, i.deviceUDID, i.bundleID)
}

func (i *LocalInstaller) Install(ctx context.Context) error {
	if _, err := os.Stat(i.runnerApp); err != nil {
		return fmt.Errorf("runner app not found: %w", err)
	}
	return i.sim.Install(ctx, i.deviceUDID, i.runnerApp)
}

// Launch starts the UI-test runner with xcodebuild. The process keeps running
// until Kill or Close.
func (i *LocalInstaller) Launch(ctx context.Context) error {
	if err := InjectPort(i.xctestrun, i.port); err != nil {
		return fmt.Errorf("failed to set companion port in xctestrun: %w", err)
	}

	if err := os.MkdirAll(i.logDir, 0o755); err != nil {
		return fmt.Errorf("failed to create log dir: %w", err)
	}
	logPath := filepath.Join(i.logDir, fmt.Sprintf("xctest-runner-%s.log", i.deviceUDID))
	logFile, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	// Not bound to ctx: the runner outlives the Open call that started it.
	cmd := exec.Command("xcodebuild",
		"test-without-building",
		"-xctestrun", i.xctestrun,
		"-destination", "id="+i.deviceUDID,
	)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if err := cmd.Start(); err != nil {
		logFile.Close()
		return fmt.Errorf("failed to start companion runner: %w", err)
	}

	i.cmd = cmd
	i.logFile = logFile
	logger.Info("companion runner started on %s (port %d, log %s)", i.deviceUDID, i.port, logPath)
	return nil
}

// IsChannelAlive reports whether anything answers HTTP on the companion port.
func (i *LocalInstaller) IsChannelAlive(ctx context.Context) bool {
	return i.probe.Get(ctx, "/status", nil).IsOk()
}

// Close stops the runner process and releases the log file.
func (i *LocalInstaller) Close() error {
	i.stopProcess()
	i.probe.Close()
	return nil
}

func (i *LocalInstaller) stopProcess() {
	if i.cmd != nil && i.cmd.Process != nil {
		_ = i.cmd.Process.Kill()
		_ = i.cmd.Wait()
		i.cmd = nil
	}
	if i.logFile != nil {
		i.logFile.Close()
		i.logFile = nil
	}
}

// InjectPort writes the companion port into every test target's
// EnvironmentVariables in an .xctestrun plist. Environment set on xcodebuild
// itself does not reach the runner.
func InjectPort(xctestrunPath string, port int) error {
	data, err := os.ReadFile(xctestrunPath)
	if err != nil {
		return fmt.Errorf("failed to read xctestrun: %w", err)
	}

	var doc map[string]interface{}
	if _, err := plist.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse xctestrun: %w", err)
	}

	portStr := strconv.Itoa(port)
	// Format version 2 nests targets under TestConfigurations
	if configs, ok := doc["TestConfigurations"].([]interface{}); ok {
		for _, cfg := range configs {
			cfgMap, _ := cfg.(map[string]interface{})
			if cfgMap == nil {
				continue
			}
			targets, _ := cfgMap["TestTargets"].([]interface{})
			for _, tgt := range targets {
				setPortEnv(tgt, portStr)
			}
		}
	} else {
		for key, val := range doc {
			if key == "__xctestrun_metadata__" {
				continue
			}
			setPortEnv(val, portStr)
		}
	}

	out, err := plist.MarshalIndent(doc, plist.XMLFormat, "\t")
	if err != nil {
		return fmt.Errorf("failed to serialize xctestrun: %w", err)
	}
	if err := os.WriteFile(xctestrunPath, out, 0o644); err != nil {
		return fmt.Errorf("failed to write xctestrun: %w", err)
	}
	return nil
}

func setPortEnv(target interface{}, port string) {
	tgtMap, ok := target.(map[string]interface{})
	if !ok {
		return
	}
	env, ok := tgtMap["EnvironmentVariables"].(map[string]interface{})
	if !ok {
		env = make(map[string]interface{})
		tgtMap["EnvironmentVariables"] = env
	}
	env[portEnvVar] = port
}

var _ Installer = (*LocalInstaller)(nil)
