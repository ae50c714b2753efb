package simulator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/devicelab-dev/maestro-device/pkg/logger"
)

// NewManager creates a new simulator manager.
func NewManager(ctl *Control) *Manager {
	return &Manager{ctl: ctl}
}

// Start boots a simulator by UDID and tracks it.
func (m *Manager) Start(ctx context.Context, udid string) (string, error) {
	bootStart := time.Now()

	if err := m.ctl.Boot(ctx, udid); err != nil {
		return "", fmt.Errorf("failed to boot simulator %s: %w", udid, err)
	}

	bootDuration := time.Since(bootStart)

	// Look up name for tracking
	name := udid
	if sim, err := m.ctl.Find(ctx, udid); err == nil {
		name = sim.Name
	}

	m.started.Store(udid, &SimulatorInstance{
		UDID:         udid,
		Name:         name,
		BootStart:    bootStart,
		BootDuration: bootDuration,
	})

	logger.Info("Simulator started and tracked: %s (%s, boot time: %v)", name, udid, bootDuration)
	return udid, nil
}

// StartByName finds a simulator by name (or UDID) and boots it. Among several
// simulators with the same name the newest runtime wins. Returns the UDID.
func (m *Manager) StartByName(ctx context.Context, name string) (string, error) {
	sims, err := m.ctl.ListSimulators(ctx)
	if err != nil {
		return "", err
	}

	for _, sim := range sims {
		if strings.EqualFold(sim.Name, name) || sim.UDID == name {
			if sim.State == StateBooted {
				logger.Info("Simulator already booted: %s (%s)", sim.Name, sim.UDID)
				m.started.Store(sim.UDID, &SimulatorInstance{
					UDID:      sim.UDID,
					Name:      sim.Name,
					BootStart: time.Now(),
				})
				return sim.UDID, nil
			}
			return m.Start(ctx, sim.UDID)
		}
	}

	return "", fmt.Errorf("simulator not found: %s", name)
}

// Shutdown shuts down a simulator if we started it.
func (m *Manager) Shutdown(ctx context.Context, udid string) error {
	instance, exists := m.started.Load(udid)
	if !exists {
		logger.Debug("Simulator %s not started by us, skipping shutdown", udid)
		return nil
	}

	if err := m.ctl.Shutdown(ctx, udid); err != nil {
		logger.Error("Failed to shutdown simulator %s: %v", udid, err)
		return err
	}

	m.started.Delete(udid)

	if inst, ok := instance.(*SimulatorInstance); ok {
		logger.Debug("Simulator %s ran for %v", udid, time.Since(inst.BootStart))
	}
	return nil
}

// ShutdownAll shuts down all simulators started by us, in parallel. Every
// shutdown runs to completion; the first error is returned.
func (m *Manager) ShutdownAll(ctx context.Context) error {
	udids := m.GetStartedSimulators()
	if len(udids) == 0 {
		return nil
	}
	logger.Info("Shutting down %d tracked simulators", len(udids))

	var g errgroup.Group
	for _, udid := range udids {
		udid := udid
		g.Go(func() error {
			return m.Shutdown(ctx, udid)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("errors during simulator shutdown: %w", err)
	}
	return nil
}

// IsStartedByUs checks if we started this simulator.
func (m *Manager) IsStartedByUs(udid string) bool {
	_, exists := m.started.Load(udid)
	return exists
}

// GetStartedSimulators returns list of all simulators we started.
func (m *Manager) GetStartedSimulators() []string {
	var udids []string
	m.started.Range(func(key, _ interface{}) bool {
		udids = append(udids, key.(string))
		return true
	})
	return udids
}
