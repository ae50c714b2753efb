package core

// FailureKind classifies why a capability call did not succeed.
// The set is closed; callers switch on it to decide between fallback,
// abandoning the session, or surfacing the error.
type FailureKind int

const (
	KindUnsupported FailureKind = iota // Backend cannot perform the operation at all
	KindUnreachable                    // Transport could not reach the companion process
	KindRemoteError                    // Companion ran and reported a structured failure
	KindTimeout                        // A bounded wait exceeded its deadline
	KindUnknown                        // Unstructured failure body
)

// String returns the string representation of FailureKind
func (k FailureKind) String() string {
	switch k {
	case KindUnsupported:
		return "unsupported"
	case KindUnreachable:
		return "unreachable"
	case KindRemoteError:
		return "remote_error"
	case KindTimeout:
		return "timeout"
	case KindUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Operation names a capability of the device contract.
type Operation string

// Operations of the capability contract.
const (
	OpOpen                 Operation = "open"
	OpDeviceInfo           Operation = "deviceInfo"
	OpContentDescriptor    Operation = "contentDescriptor"
	OpTap                  Operation = "tap"
	OpLongPress            Operation = "longPress"
	OpPressKey             Operation = "pressKey"
	OpPressButton          Operation = "pressButton"
	OpScroll               Operation = "scroll"
	OpInput                Operation = "input"
	OpInstall              Operation = "install"
	OpUninstall            Operation = "uninstall"
	OpPullAppState         Operation = "pullAppState"
	OpPushAppState         Operation = "pushAppState"
	OpClearAppState        Operation = "clearAppState"
	OpClearKeychain        Operation = "clearKeychain"
	OpLaunch               Operation = "launch"
	OpStop                 Operation = "stop"
	OpOpenLink             Operation = "openLink"
	OpTakeScreenshot       Operation = "takeScreenshot"
	OpStartScreenRecording Operation = "startScreenRecording"
	OpSetLocation          Operation = "setLocation"
	OpSetPermissions       Operation = "setPermissions"
	OpIsScreenStatic       Operation = "isScreenStatic"
	OpEraseText            Operation = "eraseText" // Android only, see TextEraser
)

// Operations lists every routed operation of the contract, in declaration order.
// Open, IsShutdown and Close fan out and are not part of it.
var Operations = []Operation{
	OpDeviceInfo, OpContentDescriptor, OpTap, OpLongPress, OpPressKey,
	OpPressButton, OpScroll, OpInput, OpInstall, OpUninstall, OpPullAppState,
	OpPushAppState, OpClearAppState, OpClearKeychain, OpLaunch, OpStop,
	OpOpenLink, OpTakeScreenshot, OpStartScreenRecording, OpSetLocation,
	OpSetPermissions, OpIsScreenStatic,
}
