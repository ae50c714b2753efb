package core

import (
	"errors"
	"fmt"
	"time"
)

// SnapshotFailureCode is the companion error code for a view-hierarchy
// capture that the accessibility layer refused (kAXErrorIllegalArgument).
// It is the only remote code that makes a call eligible for fallback.
const SnapshotFailureCode = "illegal-argument-snapshot-failure"

// Failure is the single failure value carried by a Result.
// Which fields are meaningful depends on Kind:
//   - KindRemoteError: Code, Message
//   - KindTimeout: Awaited, Waited
//   - KindUnknown: Raw
type Failure struct {
	Kind    FailureKind
	Op      Operation // Operation that failed, when known
	Code    string    // Machine-readable remote error code
	Message string    // Human-readable message
	Raw     string    // Unstructured failure body
	Awaited string    // What a timed-out wait was waiting for
	Waited  time.Duration
	Cause   error // Underlying error
}

// Error implements the error interface
func (f *Failure) Error() string {
	var msg string
	switch f.Kind {
	case KindRemoteError:
		msg = fmt.Sprintf("remote error %s: %s", f.Code, f.Message)
	case KindTimeout:
		msg = fmt.Sprintf("timed out after %v waiting for %s", f.Waited, f.Awaited)
	case KindUnknown:
		msg = "unknown failure: " + f.Raw
	case KindUnsupported:
		msg = "operation not supported"
	default:
		msg = f.Kind.String()
		if f.Message != "" {
			msg = f.Message
		}
	}
	if f.Op != "" {
		msg = string(f.Op) + ": " + msg
	}
	if f.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, f.Cause)
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As support
func (f *Failure) Unwrap() error {
	return f.Cause
}

// Is matches sentinel failures by kind, and by code when the target has one.
func (f *Failure) Is(target error) bool {
	t, ok := target.(*Failure)
	if !ok {
		return false
	}
	if t.Kind != f.Kind {
		return false
	}
	return t.Code == "" || t.Code == f.Code
}

// IsSnapshotFailure reports whether this is the recoverable view-hierarchy
// capture failure. Matching is on the exact code string.
func (f *Failure) IsSnapshotFailure() bool {
	return f != nil && f.Kind == KindRemoteError && f.Code == SnapshotFailureCode
}

// WithOp returns a copy of the failure attributed to the given operation
func (f *Failure) WithOp(op Operation) *Failure {
	c := *f
	c.Op = op
	return &c
}

// WithCause returns a copy of the failure with the given cause
func (f *Failure) WithCause(cause error) *Failure {
	c := *f
	c.Cause = cause
	return &c
}

// Sentinels for errors.Is.
var (
	ErrUnsupported     = &Failure{Kind: KindUnsupported}
	ErrUnreachable     = &Failure{Kind: KindUnreachable}
	ErrRemote          = &Failure{Kind: KindRemoteError}
	ErrTimeout         = &Failure{Kind: KindTimeout}
	ErrUnknown         = &Failure{Kind: KindUnknown}
	ErrSnapshotFailure = &Failure{Kind: KindRemoteError, Code: SnapshotFailureCode}
)

// Unsupported creates a failure for an operation the backend cannot perform.
func Unsupported(op Operation) *Failure {
	return &Failure{Kind: KindUnsupported, Op: op}
}

// Unreachable creates a failure for a companion that could not be reached.
func Unreachable(message string, cause error) *Failure {
	return &Failure{Kind: KindUnreachable, Message: message, Cause: cause}
}

// RemoteError creates a failure for a structured error reported by the companion.
func RemoteError(code, message string) *Failure {
	return &Failure{Kind: KindRemoteError, Code: code, Message: message}
}

// SnapshotFailure creates the recoverable view-hierarchy capture failure.
func SnapshotFailure(message string) *Failure {
	if message == "" {
		message = "failed to capture view hierarchy due to kAXErrorIllegalArgument"
	}
	return RemoteError(SnapshotFailureCode, message)
}

// Timeout creates a failure for a bounded wait that exceeded its deadline.
func Timeout(awaited string, waited time.Duration) *Failure {
	return &Failure{Kind: KindTimeout, Awaited: awaited, Waited: waited}
}

// Unknown creates a failure for an unstructured failure body.
func Unknown(raw string) *Failure {
	return &Failure{Kind: KindUnknown, Raw: raw}
}

// Abort stops the program on an operation the backend structurally cannot
// perform. This is a routing bug in the caller, not a runtime condition, so
// it never actually returns; the Result type only lets backends write
// `return core.Abort[T](...)`.
func Abort[T any](backend string, op Operation) Result[T] {
	panic(Unsupported(op).WithCause(fmt.Errorf("%s backend does not implement %s", backend, op)))
}

// AsFailure converts any error into a Failure. Errors that are not already a
// Failure become KindUnknown with the error text as the raw body.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return Unknown(err.Error()).WithCause(err)
}
