// Package monitor implements the stall-monitor control loop: it commands
// a move, polls position and load on a fixed cadence, classifies stall
// conditions by load magnitude, and issues a corrective reposition.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/roverton/go-stservo/internal/pool"
	"github.com/roverton/go-stservo/logger"
	"github.com/roverton/go-stservo/stservo"
)

// Session is one monitored move of a single actuator. It owns the
// control loop; foreground code interacts only through Cancel and the
// published status snapshots.
//
// A session runs at most once. The loop is synchronous and blocking on
// each device read with a bounded per-call timeout; cancellation is
// cooperative and observed at poll-tick boundaries, never mid-exchange.
type Session struct {
	act    Actuator
	id     byte
	cfg    *Config
	logger logger.Logger

	snapshot  atomic.Pointer[Status]
	cancelled atomic.Bool
	started   atomic.Bool

	done   chan struct{}
	result Result
	runErr error
}

// NewSession creates a session driving the servo with the given id
// through act.
func NewSession(act Actuator, servoID byte, cfg *Config) (*Session, error) {
	if act == nil {
		return nil, errors.New("monitor: actuator is nil")
	}
	if cfg == nil {
		return nil, errors.New("monitor: config is nil")
	}

	s := &Session{
		act:    act,
		id:     servoID,
		cfg:    cfg,
		logger: cfg.logger.With("servoID", servoID),
		done:   make(chan struct{}),
	}
	s.snapshot.Store(&Status{State: StateIdle})

	return s, nil
}

// Run executes the session to completion: homing, the primary move, the
// polling loop and, after a stall or timeout, the corrective move. It
// returns the session result, or ErrActuatorUnreachable when a
// motion-critical write fails.
//
// Run may be called once; later calls return ErrSessionActive. It is
// typically invoked on its own goroutine so a foreground interface can
// keep polling Status.
func (s *Session) Run(ctx context.Context) (Result, error) {
	if !s.started.CompareAndSwap(false, true) {
		return Result{}, ErrSessionActive
	}

	res, err := s.run(ctx)
	s.result, s.runErr = res, err
	close(s.done)

	return res, err
}

// Cancel requests cooperative cancellation. The loop halts at the next
// poll boundary without issuing a corrective move.
func (s *Session) Cancel() {
	s.cancelled.Store(true)
}

// Status returns the latest published snapshot.
func (s *Session) Status() Status {
	return *s.snapshot.Load()
}

// Done is closed when the session has finished.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Result returns the outcome once the session has finished.
func (s *Session) Result() (Result, error) {
	if !s.started.Load() {
		return Result{}, ErrSessionNotStarted
	}

	select {
	case <-s.done:
		return s.result, s.runErr
	default:
		return Result{}, ErrSessionActive
	}
}

// --- Control loop ---

func (s *Session) run(ctx context.Context) (Result, error) {
	// Homing: command a safe known position at conservative speed, then
	// wait out the settle time open-loop. Failing to command motion here
	// means the mechanical state is unknown, so it is fatal.
	s.publish(Status{State: StateHoming})
	s.logger.Info("monitor: homing",
		"position", s.cfg.homePosition,
		"speed", s.cfg.homeSpeed,
	)

	if err := s.act.SetMode(ctx, s.id, stservo.ModePosition); err != nil {
		return s.fail("set position mode", err)
	}
	if err := s.act.WritePosition(ctx, s.id, s.cfg.homePosition, s.cfg.homeSpeed, 0); err != nil {
		return s.fail("homing write", err)
	}
	if err := pool.Wait(ctx, s.cfg.homeSettle); err != nil {
		return s.cancelResult(0), nil
	}
	if s.cancelled.Load() {
		return s.cancelResult(0), nil
	}

	// Capture the reference position for corrective-target computation.
	start, err := s.act.ReadPosition(ctx, s.id)
	if err != nil {
		s.logger.Warn("monitor: start position unreadable, assuming 0", "error", err)
		start = 0
	}

	if err := s.commandPrimaryMove(ctx); err != nil {
		return s.fail("primary move", err)
	}

	startTime := time.Now()
	lastPos, lastLoad := start, 0
	var stallPos *uint16

	s.publish(Status{State: StateMoving, Position: lastPos})

	outcome := StateMoving
	for outcome == StateMoving {
		switch {
		case s.cancelled.Load() || ctx.Err() != nil:
			outcome = StateCancelled

		case time.Since(startTime) > s.cfg.runDuration:
			outcome = StateTimedOut

		default:
			pos, perr := s.act.ReadPosition(ctx, s.id)
			load, lerr := s.act.ReadLoad(ctx, s.id)
			if perr == nil {
				lastPos = pos
			}
			if lerr == nil {
				lastLoad = load
			}

			if perr != nil || lerr != nil {
				// Transient read failure: telemetry is stale for one
				// tick, stall evaluation is skipped, polling continues.
				s.logger.Debug("monitor: feedback unavailable this tick",
					"positionErr", perr,
					"loadErr", lerr,
				)
			} else if abs(load) > s.cfg.stallThreshold {
				p := pos
				stallPos = &p
				outcome = StateStalled

				s.logger.Warn("monitor: stall detected",
					"load", load,
					"threshold", s.cfg.stallThreshold,
					"position", pos,
				)
			}

			s.publish(Status{
				State:         outcome,
				Position:      lastPos,
				Load:          lastLoad,
				Elapsed:       time.Since(startTime),
				StallPosition: stallPos,
			})

			if outcome == StateMoving {
				if err := pool.Wait(ctx, s.cfg.pollInterval); err != nil {
					outcome = StateCancelled
				}
			}
		}
	}

	elapsed := time.Since(startTime)
	result := Result{Final: outcome, Elapsed: elapsed}
	if outcome == StateStalled {
		result.Stalled = true
		result.StallPosition = *stallPos
	}

	if outcome == StateCancelled {
		// Cancellation skips recovery: the actuator is left in place
		// rather than commanded again.
		s.logger.Info("monitor: session cancelled", "elapsed", elapsed)
		s.publish(Status{State: StateCancelled, Position: lastPos, Load: lastLoad, Elapsed: elapsed})

		return result, nil
	}

	s.publish(Status{State: outcome, Position: lastPos, Load: lastLoad, Elapsed: elapsed, StallPosition: stallPos})

	if err := s.recover(ctx, start, lastPos, lastLoad, elapsed, stallPos); err != nil {
		return s.fail("corrective move", err)
	}

	result.Final = StateDone
	s.publish(Status{State: StateDone, Position: lastPos, Load: lastLoad, Elapsed: elapsed, StallPosition: stallPos})
	s.logger.Info("monitor: session done",
		"stalled", result.Stalled,
		"elapsed", elapsed,
	)

	return result, nil
}

// commandPrimaryMove issues the monitored motion: an absolute target in
// position mode, or a continuous speed in wheel mode.
func (s *Session) commandPrimaryMove(ctx context.Context) error {
	if s.cfg.wheelMode {
		s.logger.Info("monitor: starting wheel move", "speed", s.cfg.wheelSpeed)

		if err := s.act.SetMode(ctx, s.id, stservo.ModeWheel); err != nil {
			return err
		}

		return s.act.WriteSpeed(ctx, s.id, s.cfg.wheelSpeed)
	}

	s.logger.Info("monitor: starting move",
		"target", s.cfg.target,
		"speed", s.cfg.speed,
	)

	return s.act.WritePosition(ctx, s.id, s.cfg.target, s.cfg.speed, s.cfg.moveTime)
}

// recover issues the corrective reposition after a stall or timeout and
// waits out the settle time open-loop, without position confirmation.
func (s *Session) recover(ctx context.Context, start, lastPos uint16, lastLoad int, elapsed time.Duration, stallPos *uint16) error {
	s.publish(Status{State: StateRecovering, Position: lastPos, Load: lastLoad, Elapsed: elapsed, StallPosition: stallPos})

	if s.cfg.wheelMode {
		// Stop the continuous rotation before a position-mode write; the
		// goal-position registers are undefined in wheel mode.
		if err := s.act.WriteSpeed(ctx, s.id, 0); err != nil {
			return err
		}
		if err := s.act.SetMode(ctx, s.id, stservo.ModePosition); err != nil {
			return err
		}
	}

	reference := lastPos
	if stallPos != nil {
		reference = *stallPos
	}

	target := correctiveTarget(start, reference, s.cfg.offsetPolicy)
	s.logger.Info("monitor: corrective move",
		"start", start,
		"reference", reference,
		"target", target,
		"speed", s.cfg.recoverySpeed,
	)

	if err := s.act.WritePosition(ctx, s.id, target, s.cfg.recoverySpeed, 0); err != nil {
		return err
	}

	_ = pool.Wait(ctx, s.cfg.recoverySettle)

	return nil
}

// fail marks the session Failed after a motion-critical write error.
func (s *Session) fail(op string, err error) (Result, error) {
	s.logger.Error("monitor: actuator unreachable", "op", op, "error", err)
	s.publish(Status{State: StateFailed})

	return Result{Final: StateFailed}, fmt.Errorf("%w: %s: %w", ErrActuatorUnreachable, op, err)
}

// cancelResult records cancellation before the moving phase started.
func (s *Session) cancelResult(elapsed time.Duration) Result {
	s.logger.Info("monitor: session cancelled", "elapsed", elapsed)
	s.publish(Status{State: StateCancelled, Elapsed: elapsed})

	return Result{Final: StateCancelled, Elapsed: elapsed}
}

// publish stores the snapshot atomically and forwards it to the
// telemetry publisher, if any. Publish errors never stop the loop.
func (s *Session) publish(st Status) {
	s.snapshot.Store(&st)

	if s.cfg.publisher != nil {
		if err := s.cfg.publisher.Publish(st); err != nil {
			s.logger.Debug("monitor: telemetry publish failed", "error", err)
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}

	return v
}
