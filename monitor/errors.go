package monitor

import "errors"

// Sentinel errors for the stall monitor.
var (
	ErrActuatorUnreachable = errors.New("monitor: actuator unreachable during motion-critical write")
	ErrSessionActive       = errors.New("monitor: session already running")
	ErrSessionNotStarted   = errors.New("monitor: session not started")
	ErrUnknownHandle       = errors.New("monitor: unknown actuator handle")
)
