package core

// Unit is the payload of capabilities that only report success.
type Unit struct{}

// Result holds either a success payload or exactly one Failure.
// The zero value is a success carrying the zero T.
type Result[T any] struct {
	value   T
	failure *Failure
}

// Ok wraps a success payload.
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Done is the successful Result of a capability with no payload.
func Done() Result[Unit] {
	return Result[Unit]{}
}

// Fail wraps a failure. A nil failure is a programming error.
func Fail[T any](f *Failure) Result[T] {
	if f == nil {
		panic("core.Fail called with nil failure")
	}
	return Result[T]{failure: f}
}

// IsOk returns true if the result holds a success payload
func (r Result[T]) IsOk() bool {
	return r.failure == nil
}

// Value returns the payload (the zero T on failure)
func (r Result[T]) Value() T {
	return r.value
}

// Failure returns the failure, or nil on success
func (r Result[T]) Failure() *Failure {
	return r.failure
}

// Get returns the payload and an error that is either nil or a *Failure.
func (r Result[T]) Get() (T, error) {
	if r.failure != nil {
		return r.value, r.failure
	}
	return r.value, nil
}

// Err returns the failure as an error, or a nil interface on success.
func (r Result[T]) Err() error {
	if r.failure == nil {
		return nil
	}
	return r.failure
}
