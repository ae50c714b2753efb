package device

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"strings"

	"github.com/devicelab-dev/maestro-device/pkg/logger"
)

// Driver service packages.
const (
	DriverServiceApp  = "dev.mobile.maestro"
	DriverServiceTest = "dev.mobile.maestro.test"
)

// DriverServicePort is the on-device gRPC port of the driver service.
const DriverServicePort = 7001

// Host ports tried by FindFreePort.
const (
	portRangeStart = 7001
	portRangeEnd   = 7128
)

// StartDriverService launches the driver service instrumentation in the
// background. Any running instance is stopped first.
func (d *AndroidDevice) StartDriverService(ctx context.Context) error {
	if !d.IsInstalled(ctx, DriverServiceApp) {
		return fmt.Errorf("driver service not installed: %s", DriverServiceApp)
	}
	if !d.IsInstalled(ctx, DriverServiceTest) {
		return fmt.Errorf("driver service test APK not installed: %s", DriverServiceTest)
	}

	d.StopDriverService(ctx)

	// nohup with redirected output so the shell returns immediately
	instrumentCmd := fmt.Sprintf(
		"nohup am instrument -w -m -e debug false "+
			"-e class 'dev.mobile.maestro.MaestroDriverService#grpcServer' "+
			"%s/androidx.test.runner.AndroidJUnitRunner "+
			"> /dev/null 2>&1 &",
		DriverServiceTest,
	)
	if _, err := d.Shell(ctx, instrumentCmd); err != nil {
		return fmt.Errorf("failed to start instrumentation: %w", err)
	}
	logger.Info("driver service instrumentation started on %s", d.serial)
	return nil
}

// StopDriverService force-stops both driver service packages.
func (d *AndroidDevice) StopDriverService(ctx context.Context) {
	for _, pkg := range []string{DriverServiceApp, DriverServiceTest} {
		if _, err := d.Shell(ctx, "am force-stop "+pkg); err != nil {
			logger.Debug("force-stop %s: %v", pkg, err)
		}
	}
}

// InstallDriverService installs the driver service APKs found in apksDir.
// Packages that are already installed are skipped.
func (d *AndroidDevice) InstallDriverService(ctx context.Context, apksDir string) error {
	apks := []struct {
		pkg     string
		pattern string
	}{
		{DriverServiceApp, "maestro-app.apk"},
		{DriverServiceTest, "maestro-server.apk"},
	}

	for _, apk := range apks {
		if d.IsInstalled(ctx, apk.pkg) {
			continue
		}
		apkPath, err := findAPK(apksDir, apk.pattern)
		if err != nil {
			return fmt.Errorf("failed to find APK for %s: %w", apk.pkg, err)
		}
		if err := d.Install(ctx, apkPath); err != nil {
			return fmt.Errorf("failed to install %s: %w", apk.pkg, err)
		}
	}
	return nil
}

// UninstallDriverService removes the driver service packages.
func (d *AndroidDevice) UninstallDriverService(ctx context.Context) error {
	var errs []string
	for _, pkg := range []string{DriverServiceApp, DriverServiceTest} {
		if d.IsInstalled(ctx, pkg) {
			if err := d.Uninstall(ctx, pkg); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", pkg, err))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("uninstall errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// findAPK finds an APK file matching the pattern in the given directory.
func findAPK(dir, pattern string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no APK found matching %s", pattern)
	}
	return matches[0], nil
}

// FindFreePort finds a free local TCP port for forwarding the driver service.
func FindFreePort() (int, error) {
	for port := portRangeStart; port <= portRangeEnd; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			ln.Close()
			return port, nil
		}
	}
	return 0, fmt.Errorf("no free port found in range %d-%d", portRangeStart, portRangeEnd)
}
