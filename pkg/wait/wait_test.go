package wait

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/maestro-device/pkg/core"
)

func TestUntil_ImmediateSuccess(t *testing.T) {
	var calls int32
	err := Until(context.Background(), "ready", time.Second, 10*time.Millisecond, func(context.Context) (bool, error) {
		atomic.AddInt32(&calls, 1)
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestUntil_EventualSuccess(t *testing.T) {
	var calls int32
	err := Until(context.Background(), "ready", 2*time.Second, 10*time.Millisecond, func(context.Context) (bool, error) {
		return atomic.AddInt32(&calls, 1) >= 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestUntil_TimeoutNotBeforeDeadline(t *testing.T) {
	timeout := 200 * time.Millisecond
	start := time.Now()
	err := Until(context.Background(), "simulator boot", timeout, 70*time.Millisecond, func(context.Context) (bool, error) {
		return false, nil
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrTimeout))
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+500*time.Millisecond)

	f := core.AsFailure(err)
	assert.Equal(t, "simulator boot", f.Awaited)
	assert.GreaterOrEqual(t, f.Waited, timeout)
}

func TestUntil_ConditionErrorStopsImmediately(t *testing.T) {
	boom := errors.New("simctl exited 1")
	var calls int32
	err := Until(context.Background(), "ready", time.Second, 10*time.Millisecond, func(context.Context) (bool, error) {
		atomic.AddInt32(&calls, 1)
		return false, boom
	})
	assert.Equal(t, boom, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestUntil_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	err := Until(ctx, "ready", 10*time.Second, 10*time.Millisecond, func(context.Context) (bool, error) {
		return false, nil
	})
	assert.True(t, errors.Is(err, core.ErrTimeout))
	assert.Less(t, time.Since(start), 5*time.Second)
}
