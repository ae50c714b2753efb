package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/maestro-device/pkg/device"
	"github.com/devicelab-dev/maestro-device/pkg/emulator"
	"github.com/devicelab-dev/maestro-device/pkg/logger"
	"github.com/devicelab-dev/maestro-device/pkg/simulator"
)

var deviceCommands = []*cli.Command{
	devicesCommand,
	startDeviceCommand,
	shutdownCommand,
}

var devicesCommand = &cli.Command{
	Name:  "devices",
	Usage: "List available simulators, or Android devices and AVDs",
	Description: `Lists simulators (newest runtime first) for --platform ios, or online
adb serials and available AVDs for --platform android.

Examples:
  maestro-device devices
  maestro-device -p android devices`,
	Action: runDevices,
}

var startDeviceCommand = &cli.Command{
	Name:  "start-device",
	Usage: "Boot an iOS Simulator or Android Emulator",
	Description: `Boots a simulator (by name or UDID) or an emulator (by AVD name) and waits
until it is ready. Among several simulators with the same name the newest
runtime wins. With --hold the command keeps running and shuts the device down
again on interrupt.

Examples:
  maestro-device start-device --name "iPhone 15"
  maestro-device -p android start-device --name Pixel_7_API_33 --hold`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "name",
			Usage:    "Simulator name or UDID, or AVD name",
			Required: true,
		},
		&cli.BoolFlag{
			Name:  "hold",
			Usage: "Keep running and shut the device down on interrupt",
		},
		&cli.DurationFlag{
			Name:  "boot-timeout",
			Usage: "Emulator boot timeout",
			Value: emulator.DefaultBootTimeout,
		},
	},
	Action: runStartDevice,
}

var shutdownCommand = &cli.Command{
	Name:      "shutdown",
	Usage:     "Shut down an iOS Simulator or Android Emulator",
	ArgsUsage: "<udid|serial>",
	Action:    runShutdown,
}

func runDevices(c *cli.Context) error {
	cfg := configFrom(c)
	tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	if cfg.Platform == "android" {
		serials, err := device.List(c.Context)
		if err != nil {
			return err
		}
		fmt.Fprintln(tw, "SERIAL\tTYPE")
		for _, s := range serials {
			kind := "device"
			if emulator.IsEmulator(s) {
				kind = "emulator"
			}
			fmt.Fprintf(tw, "%s\t%s\n", s, kind)
		}
		avds, err := emulator.NewControl().ListAVDs(c.Context)
		if err != nil {
			logger.Debug("list AVDs: %v", err)
			return nil
		}
		fmt.Fprintln(tw, "\nAVD")
		for _, avd := range avds {
			fmt.Fprintln(tw, avd.Name)
		}
		return nil
	}

	sims, err := newControl(cfg).ListSimulators(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintln(tw, "NAME\tOS\tSTATE\tUDID")
	for _, s := range sims {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Name, s.OSVersion, s.State, s.UDID)
	}
	return nil
}

// shutdownManager is the part of the simulator and emulator managers that
// --hold needs.
type shutdownManager interface {
	ShutdownAll(ctx context.Context) error
}

func runStartDevice(c *cli.Context) error {
	cfg := configFrom(c)
	name := c.String("name")
	w := c.App.ErrWriter

	var (
		id  string
		mgr shutdownManager
		err error
	)
	if cfg.Platform == "android" {
		em := emulator.NewManager(emulator.NewControl())
		printSetupStep(w, fmt.Sprintf("Booting emulator %s...", name))
		id, err = em.Start(c.Context, name, c.Duration("boot-timeout"))
		mgr = em
	} else {
		sm := simulator.NewManager(newControl(cfg))
		printSetupStep(w, fmt.Sprintf("Booting simulator %s...", name))
		id, err = sm.StartByName(c.Context, name)
		mgr = sm
	}
	if err != nil {
		return err
	}
	printSetupSuccess(w, "Device ready")
	fmt.Fprintln(c.App.Writer, id)

	if !c.Bool("hold") {
		return nil
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	// The parent context is gone; give the shutdown its own.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*emulator.DefaultShutdownTimeout)
	defer cancel()
	return mgr.ShutdownAll(shutdownCtx)
}

func runShutdown(c *cli.Context) error {
	if c.NArg() != 1 {
		_ = cli.ShowSubcommandHelp(c)
		return fmt.Errorf("shutdown: expected 1 argument, got %d", c.NArg())
	}
	cfg := configFrom(c)
	id := c.Args().First()

	var err error
	if cfg.Platform == "android" {
		err = emulator.NewControl().Shutdown(c.Context, id, emulator.DefaultShutdownTimeout)
	} else {
		err = newControl(cfg).Shutdown(c.Context, id)
	}
	if err != nil {
		return err
	}
	printSetupSuccess(c.App.ErrWriter, "Device shut down")
	return nil
}
