package stservo

import (
	"sync"
	"time"
)

// respPacket builds a wire-format response packet for tests.
func respPacket(id byte, status byte, data []byte) []byte {
	length := byte(len(data) + 2)
	buf := []byte{HeaderByte, HeaderByte, id, length, status}
	buf = append(buf, data...)

	sum := id + length + status
	for _, v := range data {
		sum += v
	}
	buf = append(buf, ^sum)

	return buf
}

// byteTransport serves a fixed byte stream one byte per Read call, to
// exercise the decoder's resynchronization and partial-read paths. An
// exhausted stream behaves like a silent line: Read blocks until the
// deadline and returns nothing.
type byteTransport struct {
	buf []byte
}

func (b *byteTransport) Write(p []byte) error { return nil }

func (b *byteTransport) Read(p []byte, deadline time.Time) (int, error) {
	if len(b.buf) == 0 {
		if d := time.Until(deadline); d > 0 {
			time.Sleep(d)
		}
		return 0, nil
	}

	n := copy(p, b.buf[:1])
	b.buf = b.buf[n:]

	return n, nil
}

func (b *byteTransport) DiscardInput() error { return nil }
func (b *byteTransport) Close() error        { return nil }

// scriptTransport is an in-memory Transport fed with one canned reply
// per exchange. A nil reply simulates a device that stays silent.
type scriptTransport struct {
	mu       sync.Mutex
	replies  [][]byte
	writes   [][]byte
	discards int
	pending  []byte
}

func (s *scriptTransport) queue(replies ...[]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, replies...)
}

func (s *scriptTransport) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writes = append(s.writes, append([]byte(nil), p...))

	if len(s.replies) > 0 {
		s.pending = s.replies[0]
		s.replies = s.replies[1:]
	} else {
		s.pending = nil
	}

	return nil
}

func (s *scriptTransport) Read(p []byte, deadline time.Time) (int, error) {
	s.mu.Lock()
	pending := s.pending
	s.mu.Unlock()

	if len(pending) == 0 {
		if d := time.Until(deadline); d > 0 {
			time.Sleep(d)
		}
		return 0, nil
	}

	s.mu.Lock()
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	s.mu.Unlock()

	return n, nil
}

func (s *scriptTransport) DiscardInput() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.discards++

	return nil
}

func (s *scriptTransport) Close() error { return nil }

func (s *scriptTransport) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.writes)
}

func (s *scriptTransport) lastWrite() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.writes) == 0 {
		return nil
	}

	return s.writes[len(s.writes)-1]
}
