package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/maestro-device/pkg/config"
	"github.com/devicelab-dev/maestro-device/pkg/core"
	"github.com/devicelab-dev/maestro-device/pkg/session"
	"github.com/devicelab-dev/maestro-device/pkg/transport"
)

// deviceFactory builds the device for the configured platform. Tests replace it.
var deviceFactory = newDevice

func newDevice(ctx context.Context, cfg *config.Config) (core.Device, error) {
	if cfg.Platform == "android" {
		return newAndroidDevice(ctx, cfg)
	}
	return newIOSDevice(ctx, cfg)
}

// withSession opens a session on the configured device, runs fn against it
// and closes the session. An interrupt cancels fn's context and marks the
// process as shutting down before the session closes.
func withSession(c *cli.Context, fn func(ctx context.Context, d core.Device) error) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := configFrom(c)
	w := c.App.ErrWriter
	printSetupStep(w, fmt.Sprintf("Connecting to %s device...", cfg.Platform))
	dev, err := deviceFactory(ctx, cfg)
	if err != nil {
		return err
	}

	s, err := session.Open(ctx, dev)
	if err != nil {
		if f := core.AsFailure(err); f != nil {
			printFailure(w, f)
		}
		return fmt.Errorf("open session on %s: %w", dev.ID(), err)
	}
	defer s.Close()
	printSetupSuccess(w, fmt.Sprintf("Session %s on %s", s.ID(), s.DeviceID()))

	err = fn(ctx, s.Device())
	if ctx.Err() != nil && c.Context.Err() == nil {
		transport.MarkShuttingDown()
	}
	if err != nil {
		if f := core.AsFailure(err); f != nil {
			printFailure(w, f)
		}
	}
	return err
}
