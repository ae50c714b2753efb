package transport

import "fmt"

// UnreachableError means the companion could not be reached and the single
// restore attempt either failed or was already spent. It is distinct from
// generic I/O errors so callers can decide to abandon the session.
type UnreachableError struct {
	Target string
	Cause  error
}

func (e *UnreachableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to reach %s: %v", e.Target, e.Cause)
	}
	return "failed to reach " + e.Target
}

func (e *UnreachableError) Unwrap() error {
	return e.Cause
}
