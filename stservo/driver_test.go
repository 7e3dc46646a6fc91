package stservo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDriver(t *testing.T, tr Transport) *Driver {
	t.Helper()

	drv, err := NewDriver(tr,
		WithTimeout(MinTimeout),
		WithRetryBackoff(0),
		WithInterByteDelay(0),
	)
	require.NoError(t, err)

	return drv
}

func TestNewDriver_NilTransport(t *testing.T) {
	_, err := NewDriver(nil)
	require.Error(t, err)
}

func TestNewDriver_InvalidOption(t *testing.T) {
	_, err := NewDriver(&scriptTransport{}, WithRetryLimit(0))
	require.Error(t, err)

	_, err = NewDriver(&scriptTransport{}, WithTimeout(time.Hour))
	require.Error(t, err)

	_, err = NewDriver(&scriptTransport{}, WithLoadSignBit(16))
	require.Error(t, err)
}

func TestDriver_Ping(t *testing.T) {
	t.Run("responding servo", func(t *testing.T) {
		tr := &scriptTransport{}
		tr.queue(respPacket(1, 0, nil))
		drv := newTestDriver(t, tr)

		assert.True(t, drv.Ping(context.Background(), 1))
		assert.Equal(t, 1, tr.writeCount(), "first valid reply ends the retry loop")
	})

	t.Run("silent servo never raises", func(t *testing.T) {
		tr := &scriptTransport{}
		drv := newTestDriver(t, tr)

		assert.False(t, drv.Ping(context.Background(), 1))
		assert.Equal(t, DefaultRetryLimit, tr.writeCount())
	})

	t.Run("recovers after corrupt reply", func(t *testing.T) {
		corrupt := respPacket(1, 0, nil)
		corrupt[len(corrupt)-1] ^= 0x01

		tr := &scriptTransport{}
		tr.queue(corrupt, respPacket(1, 0, nil))
		drv := newTestDriver(t, tr)

		assert.True(t, drv.Ping(context.Background(), 1))
		assert.Equal(t, 2, tr.writeCount())
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		tr := &scriptTransport{}
		drv := newTestDriver(t, tr)

		assert.False(t, drv.Ping(ctx, 1))
		assert.Zero(t, tr.writeCount())
	})
}

func TestDriver_ReadPosition(t *testing.T) {
	tr := &scriptTransport{}
	tr.queue(respPacket(1, 0, []byte{0x00, 0x08})) // 2048 little-endian
	drv := newTestDriver(t, tr)

	pos, err := drv.ReadPosition(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, uint16(2048), pos)

	// The read instruction addresses the position register.
	sent := tr.lastWrite()
	require.Len(t, sent, 8)
	assert.Equal(t, InstRead, sent[4])
	assert.Equal(t, RegPosition.Addr, sent[5])
	assert.Equal(t, byte(RegPosition.Size), sent[6])
}

func TestDriver_ReadLoad(t *testing.T) {
	t.Run("positive", func(t *testing.T) {
		tr := &scriptTransport{}
		tr.queue(respPacket(1, 0, []byte{0x10, 0x00})) // raw 0x0010
		drv := newTestDriver(t, tr)

		load, err := drv.ReadLoad(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, 16, load)
	})

	t.Run("negative", func(t *testing.T) {
		tr := &scriptTransport{}
		tr.queue(respPacket(1, 0, []byte{0x05, 0x06})) // raw 0x0605: bit 10 set
		drv := newTestDriver(t, tr)

		load, err := drv.ReadLoad(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, -517, load)
	})
}

func TestDriver_ReadRegister_Exhaustion(t *testing.T) {
	tr := &scriptTransport{}
	drv := newTestDriver(t, tr)

	_, err := drv.ReadRegister(context.Background(), 1, RegLoad)
	require.ErrorIs(t, err, ErrNoReply)
	assert.Equal(t, DefaultRetryLimit, tr.writeCount())
}

func TestDriver_ReadPositionAndLoad(t *testing.T) {
	tr := &scriptTransport{}
	tr.queue(
		respPacket(1, 0, []byte{0x00, 0x04}),
		respPacket(1, 0, []byte{0xBC, 0x02}), // raw 0x02BC = 700
	)
	drv := newTestDriver(t, tr)

	pos, load, err := drv.ReadPositionAndLoad(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, uint16(1024), pos)
	assert.Equal(t, 700, load)
}

func TestDriver_WritePosition(t *testing.T) {
	t.Run("acknowledged", func(t *testing.T) {
		tr := &scriptTransport{}
		tr.queue(respPacket(1, 0, nil))
		drv := newTestDriver(t, tr)

		err := drv.WritePosition(context.Background(), 1, 3500, 1000, 0)
		require.NoError(t, err)

		sent := tr.lastWrite()
		require.Len(t, sent, 13)
		assert.Equal(t, InstWrite, sent[4])
		assert.Equal(t, RegGoalBlock.Addr, sent[5])
		assert.Equal(t, []byte{0xAC, 0x0D}, sent[6:8], "position little-endian")
		assert.Equal(t, []byte{0x00, 0x00}, sent[8:10], "move time little-endian")
		assert.Equal(t, []byte{0xE8, 0x03}, sent[10:12], "speed little-endian")
	})

	t.Run("silent device is accepted", func(t *testing.T) {
		// Some wiring configurations never acknowledge writes; a missing
		// status packet must not fail the command.
		tr := &scriptTransport{}
		drv := newTestDriver(t, tr)

		err := drv.WritePosition(context.Background(), 1, 2048, 100, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, tr.writeCount())
	})

	t.Run("corrupt replies exhaust retries", func(t *testing.T) {
		corrupt := func() []byte {
			p := respPacket(1, 0, nil)
			p[len(p)-1] ^= 0x01
			return p
		}

		tr := &scriptTransport{}
		tr.queue(corrupt(), corrupt(), corrupt())
		drv := newTestDriver(t, tr)

		err := drv.WritePosition(context.Background(), 1, 2048, 100, 0)
		require.ErrorIs(t, err, ErrWriteFailure)
		assert.Equal(t, DefaultRetryLimit, tr.writeCount())
	})

	t.Run("refused in wheel mode", func(t *testing.T) {
		tr := &scriptTransport{}
		drv := newTestDriver(t, tr)

		require.NoError(t, drv.SetMode(context.Background(), 1, ModeWheel))
		writes := tr.writeCount()

		err := drv.WritePosition(context.Background(), 1, 2048, 100, 0)
		require.ErrorIs(t, err, ErrWheelMode)
		assert.Equal(t, writes, tr.writeCount(), "no packet may reach the wire")
	})
}

func TestDriver_SetMode(t *testing.T) {
	tr := &scriptTransport{}
	tr.queue(respPacket(1, 0, nil), respPacket(1, 0, nil))
	drv := newTestDriver(t, tr)

	require.NoError(t, drv.SetMode(context.Background(), 1, ModeWheel))
	assert.Equal(t, ModeWheel, drv.Mode())

	sent := tr.lastWrite()
	assert.Equal(t, RegMode.Addr, sent[5])
	assert.Equal(t, byte(ModeWheel), sent[6])

	require.NoError(t, drv.SetMode(context.Background(), 1, ModePosition))
	assert.Equal(t, ModePosition, drv.Mode())
}

func TestDriver_WriteSpeed(t *testing.T) {
	tr := &scriptTransport{}
	tr.queue(respPacket(1, 0, nil))
	drv := newTestDriver(t, tr)

	require.NoError(t, drv.WriteSpeed(context.Background(), 1, -1000))

	sent := tr.lastWrite()
	assert.Equal(t, RegRunSpeed.Addr, sent[5])
	assert.Equal(t, []byte{0xE8, 0x83}, sent[6:8], "sign carried in bit 15, 15-bit magnitude")
}

func TestDriver_DiscardsStaleInputBeforeEachExchange(t *testing.T) {
	tr := &scriptTransport{}
	tr.queue(respPacket(1, 0, nil))
	drv := newTestDriver(t, tr)

	drv.Ping(context.Background(), 1)
	assert.Equal(t, 1, tr.discards)
}
