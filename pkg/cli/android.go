package cli

import (
	"context"
	"fmt"

	"github.com/devicelab-dev/maestro-device/pkg/config"
	"github.com/devicelab-dev/maestro-device/pkg/core"
	"github.com/devicelab-dev/maestro-device/pkg/device"
	"github.com/devicelab-dev/maestro-device/pkg/driver/android"
	"github.com/devicelab-dev/maestro-device/pkg/logger"
)

// newAndroidDevice connects over adb, installs the driver service when it is
// missing and returns the driver. The service starts on Open.
func newAndroidDevice(ctx context.Context, cfg *config.Config) (core.Device, error) {
	adb, err := device.New(ctx, cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("%w\nHint: start an emulator or connect a device, or pass --device <serial>", err)
	}
	logger.Info("Using Android device %s", adb.Serial())

	if !adb.IsInstalled(ctx, device.DriverServiceApp) || !adb.IsInstalled(ctx, device.DriverServiceTest) {
		logger.Info("Installing driver service from %s", cfg.Android.ApksDir)
		if err := adb.InstallDriverService(ctx, cfg.Android.ApksDir); err != nil {
			return nil, fmt.Errorf("install driver service: %w", err)
		}
	}

	return android.New(adb, android.Config{
		HostPort:         cfg.Android.HostPort,
		ReadyTimeout:     cfg.Android.ReadyTimeout,
		LocationInterval: cfg.Android.LocationInterval,
	}), nil
}
