package composite

import "github.com/devicelab-dev/maestro-device/pkg/core"

// Backend names one of the drivers a Device routes to.
type Backend int

const (
	XCTest Backend = iota
	IDB
	Simctl
)

// String returns the string representation of Backend
func (b Backend) String() string {
	switch b {
	case XCTest:
		return "xctest"
	case IDB:
		return "idb"
	case Simctl:
		return "simctl"
	default:
		return "unknown"
	}
}

// backends is the fan-out order for Open, Close and IsShutdown.
var backends = []Backend{IDB, XCTest, Simctl}

// Routes maps every operation to the one backend that handles it.
// ContentDescriptor additionally falls back to IDB on a snapshot failure.
var Routes = map[core.Operation]Backend{
	core.OpDeviceInfo:           IDB,
	core.OpContentDescriptor:    XCTest,
	core.OpTap:                  XCTest,
	core.OpLongPress:            IDB,
	core.OpPressKey:             IDB,
	core.OpPressButton:          IDB,
	core.OpScroll:               XCTest,
	core.OpInput:                XCTest,
	core.OpInstall:              IDB,
	core.OpUninstall:            Simctl,
	core.OpPullAppState:         IDB,
	core.OpPushAppState:         IDB,
	core.OpClearAppState:        Simctl,
	core.OpClearKeychain:        Simctl,
	core.OpLaunch:               Simctl,
	core.OpStop:                 Simctl,
	core.OpOpenLink:             Simctl,
	core.OpTakeScreenshot:       XCTest,
	core.OpStartScreenRecording: IDB,
	core.OpSetLocation:          Simctl,
	core.OpSetPermissions:       Simctl,
	core.OpIsScreenStatic:       XCTest,
}
