package stservo

import "errors"

// Sentinel errors for the servo protocol.
var (
	// Link-level errors.
	ErrConnection       = errors.New("stservo: failed to open serial connection")
	ErrClosed           = errors.New("stservo: transport closed")
	ErrTimeout          = errors.New("stservo: timeout waiting for packet header")
	ErrShortRead        = errors.New("stservo: short read while receiving packet")
	ErrChecksumMismatch = errors.New("stservo: response checksum mismatch")
	ErrInvalidLength    = errors.New("stservo: invalid response length byte")

	// Driver-level errors.
	ErrNoReply      = errors.New("stservo: no valid reply, retries exhausted")
	ErrWriteFailure = errors.New("stservo: write failed after retries")
	ErrWheelMode    = errors.New("stservo: position write refused while in wheel mode")
)
