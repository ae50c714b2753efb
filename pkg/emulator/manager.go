package emulator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/devicelab-dev/maestro-device/pkg/logger"
)

const startingPort = 5554

// NewManager creates a new emulator manager
func NewManager(ctl *Control) *Manager {
	return &Manager{ctl: ctl, portMap: make(map[string]int)}
}

// Start boots an AVD on the next free console port and tracks it.
func (m *Manager) Start(ctx context.Context, avdName string, timeout time.Duration) (string, error) {
	port := m.AllocatePort(avdName)
	bootStart := time.Now()

	serial, proc, err := m.ctl.Start(ctx, avdName, port, timeout)
	if err != nil {
		m.releasePort(avdName)
		return "", fmt.Errorf("failed to start emulator %s: %w", avdName, err)
	}

	m.started.Store(serial, &Instance{
		AVDName:      avdName,
		Serial:       serial,
		ConsolePort:  port,
		Process:      proc,
		BootStart:    bootStart,
		BootDuration: time.Since(bootStart),
	})
	logger.Info("Emulator started and tracked: %s (%s)", avdName, serial)
	return serial, nil
}

// AllocatePort returns the console port for an AVD: the one it already has,
// else the lowest even port from 5554 that no other AVD holds.
func (m *Manager) AllocatePort(avdName string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if port, exists := m.portMap[avdName]; exists {
		return port
	}
	used := make(map[int]bool, len(m.portMap))
	for _, port := range m.portMap {
		used[port] = true
	}
	next := startingPort
	for used[next] {
		next += 2
	}
	m.portMap[avdName] = next
	logger.Debug("Allocated port %d for AVD %s", next, avdName)
	return next
}

func (m *Manager) releasePort(avdName string) {
	m.mu.Lock()
	delete(m.portMap, avdName)
	m.mu.Unlock()
}

// Shutdown shuts down an emulator if we started it.
func (m *Manager) Shutdown(ctx context.Context, serial string) error {
	v, exists := m.started.Load(serial)
	if !exists {
		logger.Debug("Emulator %s not started by us, skipping shutdown", serial)
		return nil
	}
	if err := m.ctl.Shutdown(ctx, serial, DefaultShutdownTimeout); err != nil {
		logger.Error("Failed to shutdown emulator %s: %v", serial, err)
		return err
	}
	m.started.Delete(serial)
	inst := v.(*Instance)
	m.releasePort(inst.AVDName)
	logger.Debug("Emulator %s ran for %v", serial, time.Since(inst.BootStart))
	return nil
}

// ShutdownAll shuts down all emulators started by us, in parallel.
func (m *Manager) ShutdownAll(ctx context.Context) error {
	serials := m.GetStartedEmulators()
	if len(serials) == 0 {
		return nil
	}
	logger.Info("Shutting down %d tracked emulators", len(serials))

	var g errgroup.Group
	for _, serial := range serials {
		serial := serial
		g.Go(func() error {
			return m.Shutdown(ctx, serial)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("errors during emulator shutdown: %w", err)
	}
	return nil
}

// IsStartedByUs checks if we started this emulator
func (m *Manager) IsStartedByUs(serial string) bool {
	_, exists := m.started.Load(serial)
	return exists
}

// GetStartedEmulators returns the serials of all emulators we started
func (m *Manager) GetStartedEmulators() []string {
	var serials []string
	m.started.Range(func(key, _ interface{}) bool {
		serials = append(serials, key.(string))
		return true
	})
	return serials
}
