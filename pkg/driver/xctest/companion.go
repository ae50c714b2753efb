package xctest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/devicelab-dev/maestro-device/pkg/logger"
	"github.com/devicelab-dev/maestro-device/pkg/wait"
)

// Installer pushes, launches and kills the companion bundle.
type Installer interface {
	Kill(ctx context.Context) error
	Uninstall(ctx context.Context) error
	Install(ctx context.Context) error
	Launch(ctx context.Context) error
	// IsChannelAlive reports whether the companion answers on its port
	IsChannelAlive(ctx context.Context) bool
	Close() error
}

// State is the companion process lifecycle state.
type State int

const (
	NotInstalled State = iota
	Installed
	Running
	Crashed
	Stopped
)

func (s State) String() string {
	switch s {
	case NotInstalled:
		return "not_installed"
	case Installed:
		return "installed"
	case Running:
		return "running"
	case Crashed:
		return "crashed"
	case Stopped:
		return "stopped"
	default:
		return "invalid"
	}
}

// ErrInvalidTransition is returned for transitions the lifecycle does not allow.
var ErrInvalidTransition = errors.New("invalid companion state transition")

var transitions = map[State][]State{
	NotInstalled: {Installed, Stopped},
	Installed:    {Running, NotInstalled, Stopped},
	Running:      {Crashed, NotInstalled, Stopped},
	Crashed:      {NotInstalled, Stopped},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Companion owns the companion process lifecycle on one device.
// Not safe for concurrent use; calls on a session are sequential.
type Companion struct {
	deviceID      string
	installer     Installer
	state         State
	readyTimeout  time.Duration
	readyInterval time.Duration
}

// NewCompanion creates a lifecycle in the NotInstalled state.
func NewCompanion(deviceID string, installer Installer, readyTimeout, readyInterval time.Duration) *Companion {
	return &Companion{
		deviceID:      deviceID,
		installer:     installer,
		state:         NotInstalled,
		readyTimeout:  readyTimeout,
		readyInterval: readyInterval,
	}
}

// State returns the current state.
func (c *Companion) State() State {
	return c.state
}

func (c *Companion) transition(to State) error {
	if !canTransition(c.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.state, to)
	}
	logger.Debug("companion %s: %s -> %s", c.deviceID, c.state, to)
	c.state = to
	return nil
}

// Restart runs the full kill, uninstall, install, launch sequence and waits
// until the companion is reachable. It is the only way out of Crashed.
func (c *Companion) Restart(ctx context.Context) error {
	if c.state == Stopped {
		return fmt.Errorf("%w: companion on %s is stopped", ErrInvalidTransition, c.deviceID)
	}

	logger.Info("[Start] Uninstalling xctest ui runner app on %s", c.deviceID)
	if err := c.installer.Kill(ctx); err != nil {
		return fmt.Errorf("kill companion: %w", err)
	}
	if err := c.installer.Uninstall(ctx); err != nil {
		return fmt.Errorf("uninstall companion: %w", err)
	}
	if c.state != NotInstalled {
		if err := c.transition(NotInstalled); err != nil {
			return err
		}
	}
	logger.Info("[Done] Uninstalling xctest ui runner app on %s", c.deviceID)

	if err := c.installer.Install(ctx); err != nil {
		return fmt.Errorf("install companion: %w", err)
	}
	if err := c.transition(Installed); err != nil {
		return err
	}

	if err := c.installer.Launch(ctx); err != nil {
		return fmt.Errorf("launch companion: %w", err)
	}
	err := wait.Until(ctx, "companion on "+c.deviceID+" to become reachable", c.readyTimeout, c.readyInterval,
		func(ctx context.Context) (bool, error) {
			return c.installer.IsChannelAlive(ctx), nil
		})
	if err != nil {
		return err
	}
	return c.transition(Running)
}

// MarkCrashed records an unexpected loss of a running companion.
func (c *Companion) MarkCrashed() {
	if c.state != Running {
		return
	}
	logger.Warn("companion on %s is unreachable, marking crashed", c.deviceID)
	_ = c.transition(Crashed)
}

// Stop kills the companion and moves to the terminal state. Errors are logged.
func (c *Companion) Stop(ctx context.Context) {
	if c.state == Stopped {
		return
	}
	if err := c.installer.Kill(ctx); err != nil {
		logger.Warn("kill companion on %s: %v", c.deviceID, err)
	}
	if err := c.installer.Close(); err != nil {
		logger.Warn("close installer for %s: %v", c.deviceID, err)
	}
	_ = c.transition(Stopped)
}

// Alive reports whether the companion answers, regardless of state.
func (c *Companion) Alive(ctx context.Context) bool {
	return c.installer.IsChannelAlive(ctx)
}
