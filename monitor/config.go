package monitor

import (
	"fmt"
	"time"

	"github.com/roverton/go-stservo/logger"
	"github.com/roverton/go-stservo/stservo"
)

// Default monitor tuning values.
const (
	// DefaultHomePosition is the safe known position commanded before the
	// primary move.
	DefaultHomePosition uint16 = 1024

	// DefaultHomeSpeed is the conservative homing speed.
	DefaultHomeSpeed uint16 = 500

	// DefaultHomeSettle is the open-loop wait after the homing command.
	DefaultHomeSettle = 2 * time.Second

	// DefaultPollInterval is the cadence of position/load polling.
	DefaultPollInterval = 50 * time.Millisecond

	// DefaultStallThreshold is the load magnitude above which the loop
	// declares a stall.
	DefaultStallThreshold = 600

	// DefaultRunDuration bounds how long the primary move may run.
	DefaultRunDuration = 10 * time.Second

	// DefaultRecoverySettle is the open-loop wait after the corrective move.
	DefaultRecoverySettle = 1500 * time.Millisecond

	// MinRecoverySpeed floors the derived recovery speed.
	MinRecoverySpeed uint16 = 100
)

// Poll interval limits.
const (
	MinPollInterval = 10 * time.Millisecond
	MaxPollInterval = time.Second
)

// Config holds the tuning of a stall-monitor session.
type Config struct {
	target   uint16
	speed    uint16
	moveTime uint16

	// Wheel mode: rotate continuously at wheelSpeed instead of seeking target.
	wheelMode  bool
	wheelSpeed int

	homePosition uint16
	homeSpeed    uint16
	homeSettle   time.Duration

	pollInterval   time.Duration
	stallThreshold int
	runDuration    time.Duration

	recoverySpeed  uint16
	recoverySettle time.Duration
	offsetPolicy   OffsetPolicy

	publisher Publisher
	logger    logger.Logger
}

// NewConfig creates a session configuration for a position-mode move to
// target at the given speed, applying options in order.
func NewConfig(target, speed uint16, opts ...Option) (*Config, error) {
	cfg := &Config{
		target:         target,
		speed:          speed,
		homePosition:   DefaultHomePosition,
		homeSpeed:      DefaultHomeSpeed,
		homeSettle:     DefaultHomeSettle,
		pollInterval:   DefaultPollInterval,
		stallThreshold: DefaultStallThreshold,
		runDuration:    DefaultRunDuration,
		recoverySettle: DefaultRecoverySettle,
		offsetPolicy:   OffsetRound,
		logger:         logger.GetLogger(),
	}

	if target >= stservo.StepsPerRevolution {
		return nil, fmt.Errorf("monitor: target %d out of range [0, %d)", target, stservo.StepsPerRevolution)
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	// The corrective move runs at reduced speed; derive it when not set.
	if cfg.recoverySpeed == 0 {
		cfg.recoverySpeed = cfg.speed / 2
		if cfg.recoverySpeed < MinRecoverySpeed {
			cfg.recoverySpeed = MinRecoverySpeed
		}
	}

	return cfg, nil
}

// Target returns the primary move target position.
func (cfg *Config) Target() uint16 { return cfg.target }

// Speed returns the primary move speed.
func (cfg *Config) Speed() uint16 { return cfg.speed }

// WheelMode returns true when the primary command is a continuous
// rotation instead of a position seek.
func (cfg *Config) WheelMode() bool { return cfg.wheelMode }

// StallThreshold returns the load magnitude threshold.
func (cfg *Config) StallThreshold() int { return cfg.stallThreshold }

// PollInterval returns the polling cadence.
func (cfg *Config) PollInterval() time.Duration { return cfg.pollInterval }

// RunDuration returns the moving-phase time bound.
func (cfg *Config) RunDuration() time.Duration { return cfg.runDuration }

// Option is a functional option for configuring a session.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithMoveTime sets the optional move time (milliseconds) of the primary
// position command.
func WithMoveTime(ms uint16) Option {
	return optFunc(func(cfg *Config) error {
		cfg.moveTime = ms
		return nil
	})
}

// WithWheelMode switches the primary command to continuous rotation at
// the given signed speed.
func WithWheelMode(speed int) Option {
	return optFunc(func(cfg *Config) error {
		if speed == 0 {
			return fmt.Errorf("monitor: wheel speed must be non-zero")
		}
		cfg.wheelMode = true
		cfg.wheelSpeed = speed

		return nil
	})
}

// WithHomePosition sets the safe position commanded before the primary move.
func WithHomePosition(position uint16) Option {
	return optFunc(func(cfg *Config) error {
		if position >= stservo.StepsPerRevolution {
			return fmt.Errorf("monitor: home position %d out of range [0, %d)", position, stservo.StepsPerRevolution)
		}
		cfg.homePosition = position

		return nil
	})
}

// WithHomeSpeed sets the homing speed.
func WithHomeSpeed(speed uint16) Option {
	return optFunc(func(cfg *Config) error {
		cfg.homeSpeed = speed
		return nil
	})
}

// WithHomeSettle sets the open-loop wait after the homing command.
func WithHomeSettle(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 {
			return fmt.Errorf("monitor: home settle %v is negative", d)
		}
		cfg.homeSettle = d

		return nil
	})
}

// WithPollInterval sets the polling cadence.
func WithPollInterval(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinPollInterval || d > MaxPollInterval {
			return fmt.Errorf("monitor: poll interval %v out of range [%v, %v]", d, MinPollInterval, MaxPollInterval)
		}
		cfg.pollInterval = d

		return nil
	})
}

// WithStallThreshold sets the load magnitude above which the loop
// declares a stall.
func WithStallThreshold(threshold int) Option {
	return optFunc(func(cfg *Config) error {
		if threshold <= 0 {
			return fmt.Errorf("monitor: stall threshold %d must be positive", threshold)
		}
		cfg.stallThreshold = threshold

		return nil
	})
}

// WithRunDuration bounds how long the primary move may run before the
// session times out.
func WithRunDuration(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return fmt.Errorf("monitor: run duration %v must be positive", d)
		}
		cfg.runDuration = d

		return nil
	})
}

// WithRecoverySpeed sets the speed of the corrective move. When unset it
// defaults to half the primary speed, floored at MinRecoverySpeed.
func WithRecoverySpeed(speed uint16) Option {
	return optFunc(func(cfg *Config) error {
		if speed == 0 {
			return fmt.Errorf("monitor: recovery speed must be non-zero")
		}
		cfg.recoverySpeed = speed

		return nil
	})
}

// WithRecoverySettle sets the open-loop wait after the corrective move.
func WithRecoverySettle(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 {
			return fmt.Errorf("monitor: recovery settle %v is negative", d)
		}
		cfg.recoverySettle = d

		return nil
	})
}

// WithOffsetPolicy selects the corrective-offset rounding policy.
func WithOffsetPolicy(policy OffsetPolicy) Option {
	return optFunc(func(cfg *Config) error {
		switch policy {
		case OffsetRound, OffsetFloor, OffsetFloorNoBias:
			cfg.offsetPolicy = policy
			return nil
		default:
			return fmt.Errorf("monitor: unknown offset policy %d", policy)
		}
	})
}

// WithPublisher attaches a telemetry publisher receiving each status
// snapshot.
func WithPublisher(p Publisher) Option {
	return optFunc(func(cfg *Config) error {
		if p == nil {
			return fmt.Errorf("monitor: publisher is nil")
		}
		cfg.publisher = p

		return nil
	})
}

// WithSessionLogger sets the logger used by the session.
func WithSessionLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return fmt.Errorf("monitor: logger is nil")
		}
		cfg.logger = l

		return nil
	})
}
