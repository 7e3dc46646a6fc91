package monitor

import "time"

// Status is an immutable snapshot of a running session, published
// atomically once per poll tick. Foreground readers (CLI, GUI, telemetry)
// only ever observe a complete snapshot; there is no field-level locking.
type Status struct {
	State    State         `json:"state"`
	Position uint16        `json:"position"`
	Load     int           `json:"load"`
	Elapsed  time.Duration `json:"elapsed"`

	// StallPosition is set once a stall has been detected.
	StallPosition *uint16 `json:"stall_position,omitempty"`
}

// Publisher receives each published status snapshot, e.g. for pushing
// telemetry to a broker. Implementations must not block the control
// loop; publish failures are logged and dropped.
type Publisher interface {
	Publish(st Status) error
}

// Result describes how a session ended.
type Result struct {
	// Stalled is true when the loop detected a mechanical stall.
	Stalled bool

	// StallPosition is the position observed at stall detection.
	// Only meaningful when Stalled is true.
	StallPosition uint16

	// Final is the terminal session state.
	Final State

	// Elapsed is the total moving time before the loop exited.
	Elapsed time.Duration
}
