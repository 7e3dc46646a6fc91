package stservo

import (
	"fmt"
	"strings"
)

// HeaderByte is the packet header marker. Every packet on the wire
// starts with two consecutive header bytes.
const HeaderByte byte = 0xFF

// Instruction opcodes.
const (
	InstPing  byte = 0x01
	InstRead  byte = 0x02
	InstWrite byte = 0x03
)

// Special servo ID values.
const (
	// BroadcastID addresses every servo on the bus. Broadcast
	// instructions are never acknowledged.
	BroadcastID byte = 0xFE

	// MaxServoID is the highest assignable unicast servo ID.
	MaxServoID byte = 0xFD
)

// StatusError is the error/status byte carried in every response packet.
// Each bit flags a hardware fault condition.
type StatusError byte

// Status error flags.
const (
	StatusVoltage     StatusError = 1 << 0
	StatusAngleLimit  StatusError = 1 << 1
	StatusOverheat    StatusError = 1 << 2
	StatusRange       StatusError = 1 << 3
	StatusChecksum    StatusError = 1 << 4
	StatusOverload    StatusError = 1 << 5
	StatusInstruction StatusError = 1 << 6
)

// HasError returns true if any fault flag is set.
func (e StatusError) HasError() bool { return e != 0 }

// Error implements the error interface, rendering the set fault flags.
func (e StatusError) Error() string {
	if e == 0 {
		return "no error"
	}

	flags := []struct {
		bit  StatusError
		name string
	}{
		{StatusVoltage, "voltage"},
		{StatusAngleLimit, "angle limit"},
		{StatusOverheat, "overheat"},
		{StatusRange, "range"},
		{StatusChecksum, "checksum"},
		{StatusOverload, "overload"},
		{StatusInstruction, "instruction"},
	}

	var msgs []string
	for _, f := range flags {
		if e&f.bit != 0 {
			msgs = append(msgs, f.name)
		}
	}

	return fmt.Sprintf("servo status error: %s", strings.Join(msgs, ", "))
}

// Packet is a decoded response packet.
//
// The wire format of a response is:
//
//	0xFF 0xFF id(1) length(1) error(1) data(length-2) checksum(1)
//
// where length = 1 (error) + len(data) + 1 (checksum). Packets are
// ephemeral: constructed per exchange and never cached.
type Packet struct {
	ID    byte
	Error StatusError
	Data  []byte
}

// Checksum computes the protocol checksum over the given bytes:
// the complemented 8-bit sum of all bytes from the servo ID through the
// last data byte inclusive.
func Checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}

	return ^sum
}

// EncodePacket builds the wire form of an instruction packet:
//
//	0xFF 0xFF id(1) length(1) instruction(1) params(n) checksum(1)
//
// where length = len(params) + 2 (instruction and checksum accounted
// implicitly). Pure function, no I/O.
func EncodePacket(id byte, instruction byte, params []byte) []byte {
	buf := make([]byte, 0, 6+len(params))
	buf = append(buf, HeaderByte, HeaderByte)
	buf = append(buf, id)
	buf = append(buf, byte(len(params)+2))
	buf = append(buf, instruction)
	buf = append(buf, params...)
	buf = append(buf, Checksum(buf[2:])) // from ID onwards

	return buf
}
