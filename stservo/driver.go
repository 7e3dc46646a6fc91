package stservo

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roverton/go-stservo/internal/pool"
	"github.com/roverton/go-stservo/logger"
)

// Driver maps semantic servo operations onto the packet codec and a
// Transport, with a bounded per-operation retry policy.
//
// The servo bus is half-duplex request/response with no multiplexing:
// interleaving two in-flight exchanges corrupts framing. All operations
// on a Driver are therefore serialized under one exclusive lock,
// including their retries, so a Driver is safe for concurrent use.
//
// No operation blocks longer than roughly timeout × retries plus the
// accumulated backoff.
type Driver struct {
	mu        sync.Mutex
	transport Transport
	cfg       *DriverConfig
	logger    logger.Logger

	// mode is the last commanded operating mode, used to refuse
	// goal-position writes while in wheel mode. Guarded by mu.
	mode Mode
}

// NewDriver creates a Driver over an already-open transport.
func NewDriver(t Transport, opts ...DriverOption) (*Driver, error) {
	if t == nil {
		return nil, errors.New("stservo: transport is nil")
	}

	cfg, err := NewDriverConfig(opts...)
	if err != nil {
		return nil, err
	}

	return &Driver{
		transport: t,
		cfg:       cfg,
		logger:    cfg.logger,
		mode:      ModePosition,
	}, nil
}

// Open opens the serial device at path and creates a Driver on it.
func Open(path string, baud int, opts ...DriverOption) (*Driver, error) {
	port, err := OpenSerial(path, baud)
	if err != nil {
		return nil, err
	}

	drv, err := NewDriver(port, opts...)
	if err != nil {
		_ = port.Close()
		return nil, err
	}

	return drv, nil
}

// Close closes the underlying transport.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.transport.Close()
}

// Mode returns the last commanded operating mode.
func (d *Driver) Mode() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.mode
}

// --- Semantic operations ---

// Ping checks whether the servo with the given id answers on the bus.
// It returns true as soon as any attempt yields a checksum-valid
// response, false once retries are exhausted. Ping never returns an
// error.
func (d *Driver) Ping(ctx context.Context, id byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for attempt := 1; attempt <= d.cfg.retryLimit; attempt++ {
		if ctx.Err() != nil {
			return false
		}

		_, err := d.exchange(id, InstPing, nil, 0)
		if err == nil {
			return true
		}

		d.logger.Debug("stservo: ping attempt failed",
			"servoID", id,
			"attempt", attempt,
			"error", err,
		)

		d.backoff(ctx, attempt)
	}

	return false
}

// ReadRegister reads reg.Size bytes at reg.Addr from the servo.
//
// Transient link errors are retried with growing backoff; once retries
// are exhausted it returns ErrNoReply. Callers should interpret
// ErrNoReply as "feedback unavailable right now", not as a fatal
// condition.
func (d *Driver) ReadRegister(ctx context.Context, id byte, reg Register) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.readRegister(ctx, id, reg)
}

// ReadPosition reads the current position: unsigned 16-bit little-endian,
// 0-4095, wrapping per physical revolution.
func (d *Driver) ReadPosition(ctx context.Context, id byte) (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.readPosition(ctx, id)
}

// ReadLoad reads the current load/torque as a signed integer, decoded
// with the configured load sign bit.
func (d *Driver) ReadLoad(ctx context.Context, id byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.readLoad(ctx, id)
}

// ReadPositionAndLoad reads position and load in one bus tenure, so a
// monitor tick observes both without another operation interleaving.
func (d *Driver) ReadPositionAndLoad(ctx context.Context, id byte) (uint16, int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	position, err := d.readPosition(ctx, id)
	if err != nil {
		return 0, 0, err
	}

	load, err := d.readLoad(ctx, id)
	if err != nil {
		return position, 0, err
	}

	return position, load, nil
}

// WritePosition commands a move to the given absolute position at the
// given speed, optionally over moveTime milliseconds. It writes the
// 6-byte goal block (position, time, speed; each little-endian).
//
// A response timeout on a single attempt counts as success, because
// some configurations never acknowledge writes; checksum-invalid
// responses are retried. Exhausting all retries returns ErrWriteFailure:
// silently failing to command motion is unsafe, so this is the one
// operation whose exhaustion surfaces as a hard error.
//
// Returns ErrWheelMode when the last commanded mode is wheel mode, in
// which goal-position writes are undefined.
func (d *Driver) WritePosition(ctx context.Context, id byte, position, speed, moveTime uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.mode == ModeWheel {
		return ErrWheelMode
	}

	params := []byte{
		RegGoalBlock.Addr,
		byte(position), byte(position >> 8),
		byte(moveTime), byte(moveTime >> 8),
		byte(speed), byte(speed >> 8),
	}

	return d.writeRegister(ctx, id, params)
}

// SetMode switches the servo between position and wheel mode and, on
// success, records the mode for the driver's mode discipline.
func (d *Driver) SetMode(ctx context.Context, id byte, mode Mode) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.writeRegister(ctx, id, []byte{RegMode.Addr, byte(mode)}); err != nil {
		return err
	}

	d.mode = mode

	return nil
}

// WriteSpeed commands a continuous rotation speed for wheel mode. The
// sign is carried in bit 15 of the run-speed register over a 15-bit
// magnitude; see EncodeSpeed.
func (d *Driver) WriteSpeed(ctx context.Context, id byte, speed int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	raw := EncodeSpeed(speed)

	return d.writeRegister(ctx, id, []byte{RegRunSpeed.Addr, byte(raw), byte(raw >> 8)})
}

// --- Internals (caller holds mu) ---

func (d *Driver) readPosition(ctx context.Context, id byte) (uint16, error) {
	data, err := d.readRegister(ctx, id, RegPosition)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint16(data), nil
}

func (d *Driver) readLoad(ctx context.Context, id byte) (int, error) {
	data, err := d.readRegister(ctx, id, RegLoad)
	if err != nil {
		return 0, err
	}

	return DecodeLoad(binary.LittleEndian.Uint16(data), d.cfg.loadSignBit), nil
}

func (d *Driver) readRegister(ctx context.Context, id byte, reg Register) ([]byte, error) {
	params := []byte{reg.Addr, byte(reg.Size)}

	for attempt := 1; attempt <= d.cfg.retryLimit; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pkt, err := d.exchange(id, InstRead, params, reg.Size)
		if err == nil {
			if len(pkt.Data) >= reg.Size {
				return pkt.Data[:reg.Size], nil
			}

			err = fmt.Errorf("stservo: truncated reply data: got %d bytes, want %d", len(pkt.Data), reg.Size)
		}

		d.logger.Debug("stservo: read attempt failed",
			"servoID", id,
			"addr", reg.Addr,
			"attempt", attempt,
			"error", err,
		)

		d.backoff(ctx, attempt)
	}

	return nil, fmt.Errorf("%w: read addr 0x%02X", ErrNoReply, reg.Addr)
}

// writeRegister sends a write instruction with bounded retry.
//
// Per attempt: a missing response (ErrTimeout) is accepted as success, a
// corrupted or partial response is retried. Retry exhaustion returns
// ErrWriteFailure.
func (d *Driver) writeRegister(ctx context.Context, id byte, params []byte) error {
	for attempt := 1; attempt <= d.cfg.retryLimit; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		_, err := d.exchange(id, InstWrite, params, 0)
		switch {
		case err == nil:
			return nil

		case errors.Is(err, ErrTimeout):
			// No status packet at all. Broadcast writes and some wiring
			// configurations never acknowledge; the serial write itself
			// succeeded, so accept.
			d.logger.Debug("stservo: no status packet after write, accepting",
				"servoID", id,
				"attempt", attempt,
			)

			return nil

		default:
			d.logger.Debug("stservo: write attempt failed",
				"servoID", id,
				"addr", params[0],
				"attempt", attempt,
				"error", err,
			)
		}

		d.backoff(ctx, attempt)
	}

	return fmt.Errorf("%w: write addr 0x%02X", ErrWriteFailure, params[0])
}

// exchange performs one request/response round trip: clear stale input,
// transmit the instruction packet, then decode the reply before the
// per-attempt deadline.
func (d *Driver) exchange(id byte, instruction byte, params []byte, expectedDataLen int) (*Packet, error) {
	if err := d.transport.DiscardInput(); err != nil {
		d.logger.Debug("stservo: discard input failed", "error", err)
	}

	out := EncodePacket(id, instruction, params)
	if err := d.transport.Write(out); err != nil {
		return nil, err
	}

	if d.cfg.interByteDelay > 0 {
		time.Sleep(d.cfg.interByteDelay)
	}

	return ReadPacket(d.transport, time.Now().Add(d.cfg.timeout), id, expectedDataLen, d.logger)
}

// backoff sleeps between attempts, growing linearly with the attempt
// count. Interrupted early when ctx is cancelled.
func (d *Driver) backoff(ctx context.Context, attempt int) {
	_ = pool.Wait(ctx, d.cfg.retryBackoff*time.Duration(attempt))
}
