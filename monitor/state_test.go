package monitor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateHoming, "homing"},
		{StateMoving, "moving"},
		{StateStalled, "stalled"},
		{StateTimedOut, "timed-out"},
		{StateCancelled, "cancelled"},
		{StateRecovering, "recovering"},
		{StateFailed, "failed"},
		{StateDone, "done"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestStateIsTerminal(t *testing.T) {
	assert.True(t, StateDone.IsTerminal())
	assert.True(t, StateFailed.IsTerminal())
	assert.True(t, StateCancelled.IsTerminal())

	assert.False(t, StateIdle.IsTerminal())
	assert.False(t, StateMoving.IsTerminal())
	assert.False(t, StateStalled.IsTerminal())
	assert.False(t, StateRecovering.IsTerminal())
}

func TestStatusSerializesStateName(t *testing.T) {
	pos := uint16(1554)
	st := Status{State: StateStalled, Position: 1554, Load: -700, StallPosition: &pos}

	data, err := json.Marshal(st)
	require.NoError(t, err)

	assert.Contains(t, string(data), `"state":"stalled"`)
	assert.Contains(t, string(data), `"stall_position":1554`)
}
