package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/maestro-device/pkg/core"
)

// defaultEraseCount is how many characters erase-text deletes without a count.
const defaultEraseCount = 50

var interactionCommands = []*cli.Command{
	{
		Name:  "info",
		Usage: "Print device and screen details",
		Action: deviceAction(0, func(c *cli.Context, ctx context.Context, d core.Device) error {
			info, err := d.DeviceInfo(ctx).Get()
			if err != nil {
				return err
			}
			return printJSON(c.App.Writer, info)
		}),
	},
	{
		Name:  "hierarchy",
		Usage: "Print the view hierarchy of the device",
		Description: `Captures a fresh view hierarchy and prints it as JSON, or as CSV with --compact.

Examples:
  maestro-device hierarchy
  maestro-device hierarchy --compact`,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "compact", Usage: "Output in CSV format"},
		},
		Action: deviceAction(0, func(c *cli.Context, ctx context.Context, d core.Device) error {
			root, err := d.ContentDescriptor(ctx).Get()
			if err != nil {
				return err
			}
			if c.Bool("compact") {
				return printHierarchyCSV(c.App.Writer, root)
			}
			return printJSON(c.App.Writer, root)
		}),
	},
	{
		Name:      "tap",
		Usage:     "Tap a screen point",
		ArgsUsage: "<x> <y>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "long", Usage: "Long press instead of tap"},
		},
		Action: deviceAction(2, func(c *cli.Context, ctx context.Context, d core.Device) error {
			x, y, err := intArgs2(c)
			if err != nil {
				return err
			}
			if c.Bool("long") {
				return d.LongPress(ctx, x, y).Err()
			}
			return d.Tap(ctx, x, y).Err()
		}),
	},
	{
		Name:      "swipe",
		Usage:     "Swipe between two screen points",
		ArgsUsage: "<x1> <y1> <x2> <y2>",
		Flags: []cli.Flag{
			&cli.Float64Flag{Name: "duration", Value: 0.5, Usage: "Swipe duration in seconds"},
		},
		Action: deviceAction(4, func(c *cli.Context, ctx context.Context, d core.Device) error {
			var p [4]float64
			for i := range p {
				v, err := strconv.ParseFloat(c.Args().Get(i), 64)
				if err != nil {
					return fmt.Errorf("invalid coordinate %q: %w", c.Args().Get(i), err)
				}
				p[i] = v
			}
			return d.Scroll(ctx, p[0], p[1], p[2], p[3], c.Float64("duration")).Err()
		}),
	},
	{
		Name:      "input",
		Usage:     "Type text into the focused field",
		ArgsUsage: "<text>",
		Action: deviceAction(1, func(c *cli.Context, ctx context.Context, d core.Device) error {
			return d.Input(ctx, strings.Join(c.Args().Slice(), " ")).Err()
		}),
	},
	{
		Name:      "erase-text",
		Usage:     "Delete characters from the focused field (Android)",
		ArgsUsage: "[count]",
		Action: deviceAction(0, func(c *cli.Context, ctx context.Context, d core.Device) error {
			eraser, ok := d.(core.TextEraser)
			if !ok {
				return core.Unsupported(core.OpEraseText)
			}
			n := defaultEraseCount
			if c.NArg() > 0 {
				var err error
				if n, err = intArg(c, 0); err != nil {
					return err
				}
			}
			return eraser.EraseText(ctx, n).Err()
		}),
	},
	{
		Name:      "press-key",
		Usage:     "Press a key by code",
		ArgsUsage: "<code>",
		Action: deviceAction(1, func(c *cli.Context, ctx context.Context, d core.Device) error {
			code, err := intArg(c, 0)
			if err != nil {
				return err
			}
			return d.PressKey(ctx, code).Err()
		}),
	},
	{
		Name:      "press-button",
		Usage:     "Press a hardware button by code",
		ArgsUsage: "<code>",
		Action: deviceAction(1, func(c *cli.Context, ctx context.Context, d core.Device) error {
			code, err := intArg(c, 0)
			if err != nil {
				return err
			}
			return d.PressButton(ctx, code).Err()
		}),
	},
	{
		Name:      "install",
		Usage:     "Install an app archive",
		ArgsUsage: "<path>",
		Action: deviceAction(1, func(c *cli.Context, ctx context.Context, d core.Device) error {
			f, err := os.Open(c.Args().First())
			if err != nil {
				return err
			}
			defer f.Close()
			return d.Install(ctx, f).Err()
		}),
	},
	appCommand("uninstall", "Uninstall an app", core.Device.Uninstall),
	appCommand("launch", "Launch an app", core.Device.Launch),
	appCommand("stop", "Stop an app", core.Device.Stop),
	appCommand("clear-state", "Clear an app's data", core.Device.ClearAppState),
	{
		Name:      "pull-state",
		Usage:     "Copy an app's data container to a local directory",
		ArgsUsage: "<app-id> <dest>",
		Action: deviceAction(2, func(c *cli.Context, ctx context.Context, d core.Device) error {
			return d.PullAppState(ctx, core.AppID(c.Args().Get(0)), c.Args().Get(1)).Err()
		}),
	},
	{
		Name:      "push-state",
		Usage:     "Copy a local directory into an app's data container",
		ArgsUsage: "<app-id> <src>",
		Action: deviceAction(2, func(c *cli.Context, ctx context.Context, d core.Device) error {
			return d.PushAppState(ctx, core.AppID(c.Args().Get(0)), c.Args().Get(1)).Err()
		}),
	},
	{
		Name:  "clear-keychain",
		Usage: "Remove all keychain items",
		Action: deviceAction(0, func(c *cli.Context, ctx context.Context, d core.Device) error {
			return d.ClearKeychain(ctx).Err()
		}),
	},
	{
		Name:      "open-link",
		Usage:     "Open a URL or deep link",
		ArgsUsage: "<url>",
		Action: deviceAction(1, func(c *cli.Context, ctx context.Context, d core.Device) error {
			return d.OpenLink(ctx, c.Args().First()).Err()
		}),
	},
	{
		Name:      "permissions",
		Usage:     "Set app permissions",
		ArgsUsage: "<app-id> [name=value ...]",
		Description: `Grants or denies permissions. Without name=value pairs every known
permission is granted.

Examples:
  maestro-device permissions com.example.app camera=allow photos=deny`,
		Action: deviceAction(1, func(c *cli.Context, ctx context.Context, d core.Device) error {
			perms, err := parsePermissions(c.Args().Tail())
			if err != nil {
				return err
			}
			return d.SetPermissions(ctx, core.AppID(c.Args().First()), perms).Err()
		}),
	},
	{
		Name:      "set-location",
		Usage:     "Mock the device location",
		ArgsUsage: "<latitude> <longitude>",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "hold", Usage: "Keep the session (and the mocked location) alive this long; 0 returns immediately"},
		},
		Action: deviceAction(2, func(c *cli.Context, ctx context.Context, d core.Device) error {
			lat, lon, err := parseLocation(c.Args().Get(0), c.Args().Get(1))
			if err != nil {
				return err
			}
			if err := d.SetLocation(ctx, lat, lon).Err(); err != nil {
				return err
			}
			_ = sleep(ctx, c.Duration("hold"))
			return nil
		}),
	},
	{
		Name:      "screenshot",
		Usage:     "Save a screenshot",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "compressed", Usage: "Request a compressed image"},
		},
		Action: deviceAction(1, func(c *cli.Context, ctx context.Context, d core.Device) error {
			f, err := os.Create(c.Args().First())
			if err != nil {
				return err
			}
			defer f.Close()
			return d.TakeScreenshot(ctx, f, c.Bool("compressed")).Err()
		}),
	},
	{
		Name:      "record",
		Usage:     "Record the screen to a file",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "duration", Value: 10 * time.Second, Usage: "Recording length (interrupt stops early)"},
		},
		Action: deviceAction(1, func(c *cli.Context, ctx context.Context, d core.Device) error {
			f, err := os.Create(c.Args().First())
			if err != nil {
				return err
			}
			defer f.Close()
			rec, err := d.StartScreenRecording(ctx, f).Get()
			if err != nil {
				return err
			}
			_ = sleep(ctx, c.Duration("duration"))
			return rec.Close()
		}),
	},
	{
		Name:  "is-static",
		Usage: "Report whether the screen is currently static",
		Action: deviceAction(0, func(c *cli.Context, ctx context.Context, d core.Device) error {
			static, err := d.IsScreenStatic(ctx).Get()
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, static)
			return nil
		}),
	},
}

// deviceAction checks the argument count and runs fn inside a session.
func deviceAction(nargs int, fn func(c *cli.Context, ctx context.Context, d core.Device) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.NArg() < nargs {
			_ = cli.ShowSubcommandHelp(c)
			return fmt.Errorf("%s: expected %d argument(s), got %d", c.Command.Name, nargs, c.NArg())
		}
		return withSession(c, func(ctx context.Context, d core.Device) error {
			return fn(c, ctx, d)
		})
	}
}

func appCommand(name, usage string, op func(core.Device, context.Context, core.AppID) core.Result[core.Unit]) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<app-id>",
		Action: deviceAction(1, func(c *cli.Context, ctx context.Context, d core.Device) error {
			return op(d, ctx, core.AppID(c.Args().First())).Err()
		}),
	}
}

func intArg(c *cli.Context, i int) (int, error) {
	s := c.Args().Get(i)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return n, nil
}

func intArgs2(c *cli.Context) (int, int, error) {
	x, err := intArg(c, 0)
	if err != nil {
		return 0, 0, err
	}
	y, err := intArg(c, 1)
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

func parseLocation(latStr, lonStr string) (float64, float64, error) {
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil || lat < -90 || lat > 90 {
		return 0, 0, fmt.Errorf("invalid latitude %q", latStr)
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil || lon < -180 || lon > 180 {
		return 0, 0, fmt.Errorf("invalid longitude %q", lonStr)
	}
	return lat, lon, nil
}

func parsePermissions(pairs []string) (map[string]string, error) {
	perms := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" || value == "" {
			return nil, fmt.Errorf("invalid permission %q (want name=value)", p)
		}
		perms[name] = value
	}
	return perms, nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
