package monitor

// State represents the stage of a stall-monitor session.
type State uint32

// Session states. A session advances
// Idle → Homing → Moving → {Stalled, TimedOut, Cancelled} → Recovering → Done,
// with Failed reachable from any motion-critical write failure and
// Cancelled skipping recovery.
const (
	// StateIdle indicates the session has not started yet.
	StateIdle State = iota
	// StateHoming indicates the actuator is moving to its safe start position.
	StateHoming
	// StateMoving indicates the primary motion command is active and the
	// loop is polling position and load.
	StateMoving
	// StateStalled indicates the load magnitude exceeded the stall threshold.
	StateStalled
	// StateTimedOut indicates the run-duration bound elapsed without a stall.
	StateTimedOut
	// StateCancelled indicates the session was cancelled externally.
	StateCancelled
	// StateRecovering indicates the corrective move has been issued and
	// the loop is waiting out the settle time.
	StateRecovering
	// StateFailed indicates the actuator became unreachable during a
	// motion-critical write (homing or recovery).
	StateFailed
	// StateDone indicates the session completed, including any recovery.
	StateDone
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHoming:
		return "homing"
	case StateMoving:
		return "moving"
	case StateStalled:
		return "stalled"
	case StateTimedOut:
		return "timed-out"
	case StateCancelled:
		return "cancelled"
	case StateRecovering:
		return "recovering"
	case StateFailed:
		return "failed"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// IsTerminal returns true once the session can make no further progress.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

// MarshalText renders the state name, so status snapshots serialize
// readably.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
