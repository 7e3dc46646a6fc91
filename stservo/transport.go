package stservo

import (
	"fmt"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
)

// Transport is the byte-level connection to the servo bus.
//
// Implementations are not required to be goroutine-safe; the Driver
// serializes all access. Retry logic lives in the Driver, never here.
type Transport interface {
	// Write sends all bytes in p.
	Write(p []byte) error

	// Read reads up to len(p) bytes, blocking no later than deadline.
	// It may return fewer bytes than requested (including zero) when the
	// deadline elapses; that is not an error.
	Read(p []byte, deadline time.Time) (int, error)

	// DiscardInput drops any unread bytes buffered on the link. Called
	// before each exchange to clear garbage left over from a prior
	// failed exchange on the half-duplex bus.
	DiscardInput() error

	// Close closes the connection. It is idempotent.
	Close() error
}

// SerialPort is the real serial line Transport.
type SerialPort struct {
	port   serial.Port
	path   string
	closed atomic.Bool
}

var _ Transport = (*SerialPort)(nil)

// OpenSerial opens the serial device at path with the given baud rate
// (8 data bits, no parity, one stop bit). Open failure is wrapped as
// ErrConnection and is never retried.
func OpenSerial(path string, baud int) (*SerialPort, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnection, path, err)
	}

	return &SerialPort{port: port, path: path}, nil
}

// Path returns the serial device path.
func (s *SerialPort) Path() string { return s.path }

// Write sends all bytes in p to the serial line.
func (s *SerialPort) Write(p []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}

	for written := 0; written < len(p); {
		n, err := s.port.Write(p[written:])
		written += n

		if err != nil {
			return fmt.Errorf("stservo: serial write: %w", err)
		}
	}

	return nil
}

// Read reads up to len(p) bytes, waiting no longer than the remaining
// time until deadline. A zero-byte result with nil error indicates the
// deadline elapsed with nothing received.
func (s *SerialPort) Read(p []byte, deadline time.Time) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}

	remaining := time.Until(deadline)
	if remaining <= 0 {
		return 0, nil
	}

	if err := s.port.SetReadTimeout(remaining); err != nil {
		return 0, fmt.Errorf("stservo: set read timeout: %w", err)
	}

	n, err := s.port.Read(p)
	if err != nil {
		return n, fmt.Errorf("stservo: serial read: %w", err)
	}

	return n, nil
}

// DiscardInput drops unread bytes buffered by the serial driver.
func (s *SerialPort) DiscardInput() error {
	if s.closed.Load() {
		return ErrClosed
	}

	return s.port.ResetInputBuffer()
}

// Close closes the serial port. Subsequent calls are no-ops.
func (s *SerialPort) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	return s.port.Close()
}
