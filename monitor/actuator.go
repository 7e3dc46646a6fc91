package monitor

import (
	"context"

	"github.com/roverton/go-stservo/stservo"
)

// Actuator is the device capability a session drives. It is satisfied by
// *stservo.Driver and by fakes in tests.
//
// Read failures are expected to be transient ("feedback unavailable this
// tick"); write failures indicate the actuator could not be commanded.
type Actuator interface {
	ReadPosition(ctx context.Context, id byte) (uint16, error)
	ReadLoad(ctx context.Context, id byte) (int, error)
	WritePosition(ctx context.Context, id byte, position, speed, moveTime uint16) error
	SetMode(ctx context.Context, id byte, mode stservo.Mode) error
	WriteSpeed(ctx context.Context, id byte, speed int) error
}

var _ Actuator = (*stservo.Driver)(nil)
