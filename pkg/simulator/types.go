package simulator

import (
	"sync"
	"time"
)

// Simulator states reported by simctl.
const (
	StateBooted   = "Booted"
	StateShutdown = "Shutdown"
)

// SimulatorDevice represents an available iOS simulator from simctl list.
type SimulatorDevice struct {
	Name        string // e.g., "iPhone 15 Pro"
	UDID        string // e.g., "A1B2C3D4-E5F6-..."
	Runtime     string // e.g., "com.apple.CoreSimulator.SimRuntime.iOS-17-2"
	OSVersion   string // e.g., "17.2" (extracted from Runtime)
	State       string // "Shutdown", "Booted", etc.
	IsAvailable bool
}

// SimulatorInstance tracks a simulator booted by this process.
type SimulatorInstance struct {
	UDID         string
	Name         string
	BootStart    time.Time
	BootDuration time.Duration
}

// BootStatus represents simulator boot state.
type BootStatus struct {
	Booted bool // state == "Booted" from simctl list
}

// IsReady returns true if the simulator is fully booted.
func (bs *BootStatus) IsReady() bool {
	return bs.Booted
}

// Manager manages iOS simulator lifecycle and tracks started simulators.
type Manager struct {
	ctl     *Control
	started sync.Map // UDID -> *SimulatorInstance
}
