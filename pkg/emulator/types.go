package emulator

import (
	"sync"
	"time"
)

// AVDInfo represents an Android Virtual Device
type AVDInfo struct {
	Name string // AVD name (e.g., "Pixel_7_API_33")
}

// Instance tracks a running emulator started by this process
type Instance struct {
	AVDName      string
	Serial       string // e.g., "emulator-5554"
	ConsolePort  int    // even: 5554, 5556, ...
	Process      Process
	BootStart    time.Time
	BootDuration time.Duration
}

// Manager manages emulator lifecycle and tracks started emulators
type Manager struct {
	ctl     *Control
	started sync.Map       // serial -> *Instance
	portMap map[string]int // AVD name -> console port
	mu      sync.Mutex     // protects portMap
}

// BootStatus represents emulator boot state
type BootStatus struct {
	StateReady     bool // adb get-state == "device"
	BootCompleted  bool // sys.boot_completed == "1"
	SettingsReady  bool // settings list global succeeds
	PackageManager bool // pm get-max-users succeeds
}

// IsFullyReady returns true if all boot checks passed
func (bs *BootStatus) IsFullyReady() bool {
	return bs.StateReady && bs.BootCompleted && bs.SettingsReady && bs.PackageManager
}
