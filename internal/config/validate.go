package config

import (
	"fmt"

	"github.com/roverton/go-stservo/stservo"
)

// Valid offset policy names.
const (
	PolicyRound       = "round"
	PolicyFloor       = "floor"
	PolicyFloorNoBias = "floor-no-bias"
)

// Valid log level names.
var logLevels = map[string]bool{
	"": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks configuration correctness. It does not mutate the
// configuration; zero values mean "use the package default" and are
// resolved by the caller.
func Validate(cfg *Config) error {
	if cfg.Serial.Port == "" {
		return fmt.Errorf("config: serial.port is required")
	}
	if cfg.Serial.Baud <= 0 {
		return fmt.Errorf("config: serial.baud must be positive, got %d", cfg.Serial.Baud)
	}

	if cfg.Servo.ID > stservo.MaxServoID {
		return fmt.Errorf("config: servo.id %d exceeds maximum %d", cfg.Servo.ID, stservo.MaxServoID)
	}
	if cfg.Servo.SignBit != 0 && (cfg.Servo.SignBit < 1 || cfg.Servo.SignBit > 15) {
		return fmt.Errorf("config: servo.sign_bit %d out of range [1, 15]", cfg.Servo.SignBit)
	}

	if cfg.Move.Wheel {
		if cfg.Move.WheelSpeed == 0 {
			return fmt.Errorf("config: move.wheel_speed must be non-zero in wheel mode")
		}
	} else {
		if cfg.Move.Target >= stservo.StepsPerRevolution {
			return fmt.Errorf("config: move.target %d out of range [0, %d)", cfg.Move.Target, stservo.StepsPerRevolution)
		}
		if cfg.Move.Speed == 0 {
			return fmt.Errorf("config: move.speed must be non-zero")
		}
	}

	if cfg.Monitor.StallThreshold < 0 {
		return fmt.Errorf("config: monitor.stall_threshold must not be negative")
	}
	if cfg.Monitor.PollIntervalMs < 0 {
		return fmt.Errorf("config: monitor.poll_interval_ms must not be negative")
	}
	if cfg.Monitor.RunDurationS < 0 {
		return fmt.Errorf("config: monitor.run_duration_s must not be negative")
	}
	if cfg.Monitor.Home.Position >= stservo.StepsPerRevolution {
		return fmt.Errorf("config: monitor.home.position %d out of range [0, %d)", cfg.Monitor.Home.Position, stservo.StepsPerRevolution)
	}

	switch cfg.Monitor.OffsetPolicy {
	case "", PolicyRound, PolicyFloor, PolicyFloorNoBias:
	default:
		return fmt.Errorf("config: monitor.offset_policy %q is not one of %q, %q, %q",
			cfg.Monitor.OffsetPolicy, PolicyRound, PolicyFloor, PolicyFloorNoBias)
	}

	if cfg.MQTT != nil && cfg.MQTT.Broker == "" {
		return fmt.Errorf("config: mqtt.broker is required when mqtt is set")
	}

	if !logLevels[cfg.Log.Level] {
		return fmt.Errorf("config: log.level %q is not one of debug, info, warn, error", cfg.Log.Level)
	}

	return nil
}
