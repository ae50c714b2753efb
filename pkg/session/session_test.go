package session

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/maestro-device/pkg/core"
	devmock "github.com/devicelab-dev/maestro-device/pkg/driver/mock"
)

func TestOpen(t *testing.T) {
	dev := devmock.New("sim-1")
	dev.Test(t)
	dev.On("Open", mock.Anything).Return(core.Done()).Once()
	dev.On("IsShutdown").Return(false)

	s, err := Open(context.Background(), dev)
	require.NoError(t, err)

	_, err = uuid.Parse(s.ID())
	assert.NoError(t, err)
	assert.Equal(t, "sim-1", s.DeviceID())
	assert.Same(t, dev, s.Device())
	assert.False(t, s.IsShutdown())
	dev.AssertExpectations(t)
}

func TestOpen_FailureClosesDevice(t *testing.T) {
	dev := devmock.New("sim-1")
	dev.Test(t)
	want := core.Timeout("companion to respond", 0)
	dev.On("Open", mock.Anything).Return(core.Fail[core.Unit](want)).Once()
	dev.On("Close").Once()

	s, err := Open(context.Background(), dev)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, core.ErrTimeout)
	dev.AssertExpectations(t)
}

func TestClose(t *testing.T) {
	dev := devmock.New("sim-1")
	dev.Test(t)
	dev.On("Open", mock.Anything).Return(core.Done())
	dev.On("Close").Once()

	s, err := Open(context.Background(), dev)
	require.NoError(t, err)

	s.Close()
	s.Close()
	dev.AssertNumberOfCalls(t, "Close", 1)

	assert.True(t, s.IsShutdown())
	assert.Equal(t, "sim-1", s.DeviceID())
	assert.NotEmpty(t, s.ID())
	assert.PanicsWithValue(t, ErrClosed, func() { s.Device() })
}

func TestSessionsHaveDistinctIDs(t *testing.T) {
	a := devmock.New("sim-1")
	a.On("Open", mock.Anything).Return(core.Done())
	s1, err := Open(context.Background(), a)
	require.NoError(t, err)
	s2, err := Open(context.Background(), a)
	require.NoError(t, err)
	assert.NotEqual(t, s1.ID(), s2.ID())
}
