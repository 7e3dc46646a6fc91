package stservo

import (
	"fmt"
	"time"

	"github.com/roverton/go-stservo/logger"
)

// Default driver tuning values.
const (
	// DefaultTimeout is the per-attempt response timeout.
	DefaultTimeout = 200 * time.Millisecond

	// DefaultRetryLimit is the number of attempts per operation.
	DefaultRetryLimit = 3

	// DefaultRetryBackoff is the base backoff between attempts; the
	// actual delay grows linearly with the attempt count.
	DefaultRetryBackoff = 5 * time.Millisecond

	// DefaultInterByteDelay is the pause after transmitting a packet,
	// giving the servo time to turn the half-duplex line around.
	DefaultInterByteDelay = 50 * time.Microsecond

	// DefaultLoadSignBit is the direction bit index of the load register.
	DefaultLoadSignBit = 10
)

// Tuning range limits.
const (
	MinTimeout    = 10 * time.Millisecond
	MaxTimeout    = 5 * time.Second
	MaxRetryLimit = 31
)

// DriverConfig holds the tuning of a Driver.
type DriverConfig struct {
	timeout        time.Duration
	retryLimit     int
	retryBackoff   time.Duration
	interByteDelay time.Duration
	loadSignBit    int
	logger         logger.Logger
}

// NewDriverConfig creates a driver configuration with defaults, applying
// the given options in order.
func NewDriverConfig(opts ...DriverOption) (*DriverConfig, error) {
	cfg := &DriverConfig{
		timeout:        DefaultTimeout,
		retryLimit:     DefaultRetryLimit,
		retryBackoff:   DefaultRetryBackoff,
		interByteDelay: DefaultInterByteDelay,
		loadSignBit:    DefaultLoadSignBit,
		logger:         logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Timeout returns the per-attempt response timeout.
func (cfg *DriverConfig) Timeout() time.Duration { return cfg.timeout }

// RetryLimit returns the number of attempts per operation.
func (cfg *DriverConfig) RetryLimit() int { return cfg.retryLimit }

// RetryBackoff returns the base backoff between attempts.
func (cfg *DriverConfig) RetryBackoff() time.Duration { return cfg.retryBackoff }

// InterByteDelay returns the post-transmit line turnaround pause.
func (cfg *DriverConfig) InterByteDelay() time.Duration { return cfg.interByteDelay }

// LoadSignBit returns the direction bit index used to decode the load
// register.
func (cfg *DriverConfig) LoadSignBit() int { return cfg.loadSignBit }

// GetLogger returns the configured logger.
func (cfg *DriverConfig) GetLogger() logger.Logger { return cfg.logger }

// DriverOption is a functional option for configuring a Driver.
type DriverOption interface {
	apply(*DriverConfig) error
}

type driverOptFunc func(*DriverConfig) error

func (f driverOptFunc) apply(cfg *DriverConfig) error { return f(cfg) }

// WithTimeout sets the per-attempt response timeout.
func WithTimeout(timeout time.Duration) DriverOption {
	return driverOptFunc(func(cfg *DriverConfig) error {
		if timeout < MinTimeout || timeout > MaxTimeout {
			return fmt.Errorf("stservo: timeout %v out of range [%v, %v]", timeout, MinTimeout, MaxTimeout)
		}
		cfg.timeout = timeout

		return nil
	})
}

// WithRetryLimit sets the number of attempts per operation.
func WithRetryLimit(limit int) DriverOption {
	return driverOptFunc(func(cfg *DriverConfig) error {
		if limit < 1 || limit > MaxRetryLimit {
			return fmt.Errorf("stservo: retry limit %d out of range [1, %d]", limit, MaxRetryLimit)
		}
		cfg.retryLimit = limit

		return nil
	})
}

// WithRetryBackoff sets the base backoff between attempts.
func WithRetryBackoff(backoff time.Duration) DriverOption {
	return driverOptFunc(func(cfg *DriverConfig) error {
		if backoff < 0 {
			return fmt.Errorf("stservo: retry backoff %v is negative", backoff)
		}
		cfg.retryBackoff = backoff

		return nil
	})
}

// WithInterByteDelay sets the post-transmit line turnaround pause.
func WithInterByteDelay(delay time.Duration) DriverOption {
	return driverOptFunc(func(cfg *DriverConfig) error {
		if delay < 0 {
			return fmt.Errorf("stservo: inter-byte delay %v is negative", delay)
		}
		cfg.interByteDelay = delay

		return nil
	})
}

// WithLoadSignBit sets the direction bit index of the load register.
// Some firmware revisions place the sign at bit 10, others at bit 11.
func WithLoadSignBit(bit int) DriverOption {
	return driverOptFunc(func(cfg *DriverConfig) error {
		if bit < 1 || bit > 15 {
			return fmt.Errorf("stservo: load sign bit %d out of range [1, 15]", bit)
		}
		cfg.loadSignBit = bit

		return nil
	})
}

// WithLogger sets the logger used by the driver.
func WithLogger(l logger.Logger) DriverOption {
	return driverOptFunc(func(cfg *DriverConfig) error {
		if l == nil {
			return fmt.Errorf("stservo: logger is nil")
		}
		cfg.logger = l

		return nil
	})
}
