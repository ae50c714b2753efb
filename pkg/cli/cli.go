// Package cli provides the command-line interface for maestro-device.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/maestro-device/pkg/config"
	"github.com/devicelab-dev/maestro-device/pkg/logger"
)

// Version is set at build time.
var Version = "dev"

const configKey = "config"

// GlobalFlags are available to all commands. Unset flags fall back to the
// workspace config and MAESTRO_* environment variables.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "platform",
		Aliases: []string{"p"},
		Usage:   "Platform to drive (ios, android)",
	},
	&cli.StringFlag{
		Name:    "device",
		Aliases: []string{"udid", "serial"},
		Usage:   "Simulator UDID or Android serial (default: first booted/online device)",
	},
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Config file, or directory containing config.yaml (default: current directory)",
	},
	&cli.BoolFlag{
		Name:  "verbose",
		Usage: "Enable verbose logging",
	},
	&cli.StringFlag{
		Name:  "log-file",
		Usage: "Write logs to this file",
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

// NewApp builds the command tree.
func NewApp() *cli.App {
	return &cli.App{
		Name:    "maestro-device",
		Usage:   "Drive iOS simulators and Android devices through one capability contract",
		Version: Version,
		Description: `maestro-device opens a session on a device and issues single capability
calls against it: hierarchy capture, gestures, text input, app management,
media capture and location.

Examples:
  maestro-device hierarchy
  maestro-device -p android --device emulator-5554 tap 540 1200
  maestro-device -p ios start-device --name "iPhone 15"`,
		Flags:    GlobalFlags,
		Metadata: map[string]interface{}{},
		Before:   setup,
		After:    teardown,
		Commands: append(deviceCommands, interactionCommands...),
	}
}

// Execute runs the CLI.
func Execute() {
	if err := NewApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setup(c *cli.Context) error {
	if c.Bool("no-ansi") {
		colorsEnabled = false
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.LogFile != "" {
		if err := logger.Init(cfg.LogFile); err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
	}
	logger.SetVerbose(cfg.Verbose)
	c.App.Metadata[configKey] = cfg
	return nil
}

func teardown(*cli.Context) error {
	logger.Close()
	return nil
}

// loadConfig resolves the workspace config and applies global flags on top.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	var (
		cfg *config.Config
		err error
	)
	switch {
	case path == "":
		cfg, err = config.LoadFromDir(".")
	case isDir(path):
		cfg, err = config.LoadFromDir(path)
	default:
		cfg, err = config.Load(path)
		if err == nil {
			err = cfg.ApplyEnv()
		}
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if c.IsSet("platform") {
		cfg.Platform = c.String("platform")
	}
	if c.IsSet("device") {
		cfg.Device = c.String("device")
	}
	if c.IsSet("verbose") {
		cfg.Verbose = c.Bool("verbose")
	}
	if c.IsSet("log-file") {
		cfg.LogFile = c.String("log-file")
	}

	cfg.Platform = strings.ToLower(cfg.Platform)
	switch cfg.Platform {
	case "ios", "android":
	default:
		return nil, fmt.Errorf("unsupported platform %q (ios or android)", cfg.Platform)
	}
	return cfg, nil
}

func configFrom(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata[configKey].(*config.Config); ok {
		return cfg
	}
	return config.Default()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
