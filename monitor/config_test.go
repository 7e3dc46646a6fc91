package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := NewConfig(3500, 1000)
	require.NoError(t, err)

	assert.Equal(t, uint16(3500), cfg.Target())
	assert.Equal(t, uint16(1000), cfg.Speed())
	assert.False(t, cfg.WheelMode())
	assert.Equal(t, DefaultHomePosition, cfg.homePosition)
	assert.Equal(t, DefaultHomeSpeed, cfg.homeSpeed)
	assert.Equal(t, DefaultHomeSettle, cfg.homeSettle)
	assert.Equal(t, DefaultPollInterval, cfg.PollInterval())
	assert.Equal(t, DefaultStallThreshold, cfg.StallThreshold())
	assert.Equal(t, DefaultRunDuration, cfg.RunDuration())
	assert.Equal(t, OffsetRound, cfg.offsetPolicy)

	// Recovery speed derives from the primary speed.
	assert.Equal(t, uint16(500), cfg.recoverySpeed)
}

func TestNewConfigRecoverySpeedFloor(t *testing.T) {
	cfg, err := NewConfig(2048, 150)
	require.NoError(t, err)

	assert.Equal(t, MinRecoverySpeed, cfg.recoverySpeed)
}

func TestNewConfigOptions(t *testing.T) {
	cfg, err := NewConfig(2048, 800,
		WithMoveTime(250),
		WithHomePosition(512),
		WithHomeSpeed(300),
		WithHomeSettle(time.Second),
		WithPollInterval(20*time.Millisecond),
		WithStallThreshold(450),
		WithRunDuration(5*time.Second),
		WithRecoverySpeed(200),
		WithRecoverySettle(time.Second),
		WithOffsetPolicy(OffsetFloor),
	)
	require.NoError(t, err)

	assert.Equal(t, uint16(250), cfg.moveTime)
	assert.Equal(t, uint16(512), cfg.homePosition)
	assert.Equal(t, uint16(300), cfg.homeSpeed)
	assert.Equal(t, time.Second, cfg.homeSettle)
	assert.Equal(t, 20*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, 450, cfg.StallThreshold())
	assert.Equal(t, 5*time.Second, cfg.RunDuration())
	assert.Equal(t, uint16(200), cfg.recoverySpeed)
	assert.Equal(t, time.Second, cfg.recoverySettle)
	assert.Equal(t, OffsetFloor, cfg.offsetPolicy)
}

func TestNewConfigValidation(t *testing.T) {
	_, err := NewConfig(4096, 1000)
	assert.Error(t, err, "target out of range")

	_, err = NewConfig(2048, 1000, WithHomePosition(5000))
	assert.Error(t, err, "home position out of range")

	_, err = NewConfig(2048, 1000, WithPollInterval(time.Millisecond))
	assert.Error(t, err, "poll interval below minimum")

	_, err = NewConfig(2048, 1000, WithPollInterval(2*time.Second))
	assert.Error(t, err, "poll interval above maximum")

	_, err = NewConfig(2048, 1000, WithStallThreshold(0))
	assert.Error(t, err, "non-positive stall threshold")

	_, err = NewConfig(2048, 1000, WithRunDuration(0))
	assert.Error(t, err, "non-positive run duration")

	_, err = NewConfig(2048, 1000, WithWheelMode(0))
	assert.Error(t, err, "zero wheel speed")

	_, err = NewConfig(2048, 1000, WithRecoverySpeed(0))
	assert.Error(t, err, "zero recovery speed")

	_, err = NewConfig(2048, 1000, WithOffsetPolicy(OffsetPolicy(42)))
	assert.Error(t, err, "unknown offset policy")

	_, err = NewConfig(2048, 1000, WithHomeSettle(-time.Second))
	assert.Error(t, err, "negative home settle")

	_, err = NewConfig(2048, 1000, WithPublisher(nil))
	assert.Error(t, err, "nil publisher")
}

func TestNewConfigWheelMode(t *testing.T) {
	cfg, err := NewConfig(0, 0, WithWheelMode(-800))
	require.NoError(t, err)

	assert.True(t, cfg.WheelMode())
	assert.Equal(t, -800, cfg.wheelSpeed)
}
