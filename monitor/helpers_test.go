package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/roverton/go-stservo/stservo"
)

var errFakeLink = errors.New("fake link down")

// positionWrite records one WritePosition call.
type positionWrite struct {
	position uint16
	speed    uint16
	moveTime uint16
}

// fakeActuator scripts per-tick feedback for session tests.
//
// The first ReadPosition call returns start (the homing capture); each
// later ReadPosition/ReadLoad pair serves one poll tick from the
// positions/loads scripts, repeating the final entry once exhausted.
// Ticks listed in failTicks fail both reads.
type fakeActuator struct {
	mu sync.Mutex

	start     uint16
	startErr  error
	positions []uint16
	loads     []int
	failTicks map[int]bool

	// failWritesAfter fails every WritePosition once this many have
	// succeeded. Negative means never fail.
	failWritesAfter int

	posCalls  int
	loadCalls int

	writes []positionWrite
	modes  []stservo.Mode
	speeds []int
}

func newFakeActuator(start uint16, positions []uint16, loads []int) *fakeActuator {
	return &fakeActuator{
		start:           start,
		positions:       positions,
		loads:           loads,
		failTicks:       map[int]bool{},
		failWritesAfter: -1,
	}
}

func scriptAt[T any](script []T, i int) T {
	if i < len(script) {
		return script[i]
	}

	return script[len(script)-1]
}

func (f *fakeActuator) ReadPosition(ctx context.Context, id byte) (uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := f.posCalls
	f.posCalls++

	if n == 0 {
		return f.start, f.startErr
	}

	tick := n - 1
	if f.failTicks[tick] {
		return 0, errFakeLink
	}

	return scriptAt(f.positions, tick), nil
}

func (f *fakeActuator) ReadLoad(ctx context.Context, id byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	tick := f.loadCalls
	f.loadCalls++

	if f.failTicks[tick] {
		return 0, errFakeLink
	}

	return scriptAt(f.loads, tick), nil
}

func (f *fakeActuator) WritePosition(ctx context.Context, id byte, position, speed, moveTime uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWritesAfter >= 0 && len(f.writes) >= f.failWritesAfter {
		return stservo.ErrWriteFailure
	}

	f.writes = append(f.writes, positionWrite{position, speed, moveTime})

	return nil
}

func (f *fakeActuator) SetMode(ctx context.Context, id byte, mode stservo.Mode) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.modes = append(f.modes, mode)

	return nil
}

func (f *fakeActuator) WriteSpeed(ctx context.Context, id byte, speed int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.speeds = append(f.speeds, speed)

	return nil
}

func (f *fakeActuator) Close() error { return nil }

func (f *fakeActuator) positionWrites() []positionWrite {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]positionWrite(nil), f.writes...)
}

// fastConfig returns a session config with all waits shrunk for tests.
func fastConfig(opts ...Option) (*Config, error) {
	base := []Option{
		WithHomeSettle(0),
		WithRecoverySettle(0),
		WithPollInterval(MinPollInterval),
		WithRunDuration(time.Second),
	}

	return NewConfig(3500, 1000, append(base, opts...)...)
}
