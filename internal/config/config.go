// Package config loads and validates the yaml configuration consumed by
// cmd/stallmon. The monitor and driver packages never read files; the
// values here are translated into their options by the CLI.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Serial  SerialConfig  `yaml:"serial"`
	Servo   ServoConfig   `yaml:"servo"`
	Move    MoveConfig    `yaml:"move"`
	Monitor MonitorConfig `yaml:"monitor"`

	// MQTT telemetry is opt-in; nil means no publishing.
	MQTT *MQTTConfig `yaml:"mqtt"`

	Log LogConfig `yaml:"log"`
}

// ---- SERIAL ----

type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// ---- SERVO ----

type ServoConfig struct {
	ID byte `yaml:"id"`

	// SignBit is the direction bit of the load register. Zero means the
	// driver default.
	SignBit int `yaml:"sign_bit"`
}

// ---- MOVE ----

type MoveConfig struct {
	Target     uint16 `yaml:"target"`
	Speed      uint16 `yaml:"speed"`
	MoveTimeMs uint16 `yaml:"move_time_ms"`

	// Wheel switches the primary command to continuous rotation at
	// WheelSpeed instead of a position seek.
	Wheel      bool `yaml:"wheel"`
	WheelSpeed int  `yaml:"wheel_speed"`
}

// ---- MONITOR ----

type MonitorConfig struct {
	StallThreshold int        `yaml:"stall_threshold"`
	PollIntervalMs int        `yaml:"poll_interval_ms"`
	RunDurationS   int        `yaml:"run_duration_s"`
	Home           HomeConfig `yaml:"home"`

	// OffsetPolicy is one of "round", "floor", "floor-no-bias".
	// Empty means "round".
	OffsetPolicy string `yaml:"offset_policy"`

	RecoverySpeed   uint16 `yaml:"recovery_speed"`
	RecoverySettleS int    `yaml:"recovery_settle_s"`
}

type HomeConfig struct {
	Position uint16 `yaml:"position"`
	Speed    uint16 `yaml:"speed"`
	SettleMs int    `yaml:"settle_ms"`
}

// ---- MQTT ----

type MQTTConfig struct {
	// Broker is a URL of the form scheme://host:port/prefix.
	Broker string `yaml:"broker"`
}

// ---- LOG ----

type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error". Empty means "info".
	Level string `yaml:"level"`

	// Console selects the human-readable handler instead of JSON.
	Console bool `yaml:"console"`
}

// Load reads and parses the yaml file at path. It does not validate;
// call Validate on the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return &cfg, nil
}
