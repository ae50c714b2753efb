// Package wait implements bounded poll-with-timeout waits.
package wait

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/devicelab-dev/maestro-device/pkg/core"
)

// Condition reports whether the awaited state has been reached. A non-nil
// error aborts the wait immediately.
type Condition func(ctx context.Context) (bool, error)

var errNotYet = errors.New("condition not met")

// Until polls cond every interval until it returns true or timeout elapses.
// If the condition never holds, Until returns a Timeout failure naming what
// was awaited, and never before the deadline.
func Until(ctx context.Context, what string, timeout, interval time.Duration, cond Condition) error {
	start := time.Now()
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b := backoff.WithContext(backoff.NewConstantBackOff(interval), dctx)
	err := backoff.Retry(func() error {
		ok, err := cond(dctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errNotYet
		}
		return nil
	}, b)
	if err == nil {
		return nil
	}
	if !errors.Is(err, errNotYet) {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}
		return err
	}

	// Retry gives up as soon as the next sleep would overrun the deadline.
	<-dctx.Done()
	return core.Timeout(what, time.Since(start).Round(time.Millisecond))
}
