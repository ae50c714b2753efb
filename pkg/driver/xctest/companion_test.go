package xctest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompanionTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		allowed  bool
	}{
		{NotInstalled, Installed, true},
		{Installed, Running, true},
		{Running, Crashed, true},
		{Running, NotInstalled, true},
		{Crashed, NotInstalled, true},
		{Installed, NotInstalled, true},
		{NotInstalled, Stopped, true},
		{Crashed, Stopped, true},
		{NotInstalled, Running, false},
		{Crashed, Running, false},
		{Crashed, Installed, false},
		{Installed, Crashed, false},
		{Stopped, NotInstalled, false},
		{Stopped, Running, false},
		{Stopped, Stopped, false},
	}

	for _, tt := range tests {
		c := &Companion{state: tt.from}
		err := c.transition(tt.to)
		if tt.allowed {
			assert.NoError(t, err, "%s -> %s", tt.from, tt.to)
			assert.Equal(t, tt.to, c.State())
		} else {
			assert.True(t, errors.Is(err, ErrInvalidTransition), "%s -> %s", tt.from, tt.to)
			assert.Equal(t, tt.from, c.State(), "state must not change on a rejected transition")
		}
	}
}

func TestMarkCrashedOnlyFromRunning(t *testing.T) {
	for _, s := range []State{NotInstalled, Installed, Crashed, Stopped} {
		c := &Companion{state: s}
		c.MarkCrashed()
		assert.Equal(t, s, c.State())
	}
	c := &Companion{state: Running}
	c.MarkCrashed()
	assert.Equal(t, Crashed, c.State())
}

func TestRestartFromStoppedIsRejected(t *testing.T) {
	inst := &fakeInstaller{}
	c := NewCompanion("SIM-1", inst, 0, 0)
	c.state = Stopped
	err := c.Restart(context.Background())
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Empty(t, inst.Calls())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "crashed", Crashed.String())
	assert.Equal(t, "invalid", State(42).String())
}
