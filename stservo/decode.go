package stservo

import (
	"fmt"
	"time"

	"github.com/roverton/go-stservo/logger"
)

// AnyDataLen disables the expected-data-length check in ReadPacket.
const AnyDataLen = -1

// ReadPacket reads and validates a single response packet from t,
// bounded by an overall deadline.
//
// The algorithm:
//
//  1. Scan the stream byte by byte until two consecutive header bytes
//     are seen. This resynchronizes past any garbage left over from a
//     prior failed exchange. ErrTimeout if the deadline elapses first.
//  2. Read the id and length bytes. ErrShortRead on early deadline.
//  3. Read length more bytes (error byte, data, checksum).
//     ErrShortRead on early deadline.
//  4. Recompute the checksum over id, length, error and data and compare
//     with the trailing byte. ErrChecksumMismatch on disagreement.
//
// A reply from a servo other than expectedID is logged as a warning but
// still accepted if the checksum passes: the protocol allows broadcast
// and foreign replies on a shared bus. Likewise a data length differing
// from expectedDataLen (when not AnyDataLen) is a warning, not a
// failure, since hardware occasionally reports unexpected lengths.
// Corrupted payloads are always rejected via the checksum.
func ReadPacket(t Transport, deadline time.Time, expectedID byte, expectedDataLen int, log logger.Logger) (*Packet, error) {
	if log == nil {
		log = logger.GetLogger()
	}

	if err := scanHeader(t, deadline); err != nil {
		return nil, err
	}

	var idLen [2]byte
	if err := readFull(t, idLen[:], deadline); err != nil {
		return nil, fmt.Errorf("%w: reading id and length", ErrShortRead)
	}

	id := idLen[0]
	length := int(idLen[1])

	// A response carries at least the error byte and the checksum.
	if length < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLength, length)
	}

	body := make([]byte, length)
	if err := readFull(t, body, deadline); err != nil {
		return nil, fmt.Errorf("%w: reading packet payload", ErrShortRead)
	}

	sum := id + idLen[1]
	for _, v := range body[:length-1] {
		sum += v
	}

	if ^sum != body[length-1] {
		return nil, fmt.Errorf("%w: wire=0x%02X, computed=0x%02X", ErrChecksumMismatch, body[length-1], ^sum)
	}

	pkt := &Packet{
		ID:    id,
		Error: StatusError(body[0]),
		Data:  body[1 : length-1],
	}

	if id != expectedID {
		log.Warn("stservo: reply from unexpected servo id",
			"gotID", id,
			"expectedID", expectedID,
		)
	}

	if expectedDataLen != AnyDataLen && len(pkt.Data) != expectedDataLen {
		log.Warn("stservo: unexpected reply data length",
			"gotLen", len(pkt.Data),
			"expectedLen", expectedDataLen,
			"servoID", id,
		)
	}

	return pkt, nil
}

// scanHeader consumes the stream until two consecutive header bytes are
// observed or the deadline elapses.
func scanHeader(t Transport, deadline time.Time) error {
	var prev byte
	havePrev := false

	for {
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: header not found", ErrTimeout)
		}

		var b [1]byte
		n, err := t.Read(b[:], deadline)
		if err != nil {
			return fmt.Errorf("%w: scanning for header: %w", ErrShortRead, err)
		}
		if n == 0 {
			continue // deadline elapsed, recheck above
		}

		if havePrev && prev == HeaderByte && b[0] == HeaderByte {
			return nil
		}

		prev = b[0]
		havePrev = true
	}
}

// readFull reads exactly len(buf) bytes from t, bounded by deadline.
func readFull(t Transport, buf []byte, deadline time.Time) error {
	for read := 0; read < len(buf); {
		if !time.Now().Before(deadline) {
			return ErrShortRead
		}

		n, err := t.Read(buf[read:], deadline)
		read += n

		if err != nil {
			return err
		}
	}

	return nil
}
