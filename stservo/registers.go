package stservo

// StepsPerRevolution is the angular resolution of this servo family:
// one full physical revolution spans 4096 addressable steps, and the
// position register wraps per revolution.
const StepsPerRevolution = 4096

// Mode selects the servo operating mode (the Mode register).
type Mode byte

const (
	// ModePosition makes the servo seek and hold an absolute step position.
	ModePosition Mode = 0

	// ModeWheel makes the servo rotate continuously at a commanded speed.
	// Goal-position writes are undefined in this mode and are refused by
	// the Driver's mode discipline.
	ModeWheel Mode = 1
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModePosition:
		return "position"
	case ModeWheel:
		return "wheel"
	default:
		return "unknown"
	}
}

// Register describes one entry of the servo control table: its byte
// offset and width, and, for sign-magnitude encoded values, the index of
// the direction bit (0 means plain unsigned).
type Register struct {
	Addr    byte
	Size    int
	SignBit int
}

// Control table registers used by this driver. The table is a read-only
// constant map from semantic name to (offset, width); it is shared and
// never mutated at runtime.
var (
	// RegMode selects Position (0) or Wheel (1) mode.
	RegMode = Register{Addr: 0x21, Size: 1}

	// RegGoalBlock is the contiguous motion-command block:
	// 2B target position + 2B move time + 2B speed, little-endian.
	RegGoalBlock = Register{Addr: 0x2A, Size: 6}

	// RegRunSpeed is the wheel-mode speed: bit 15 is the direction sign,
	// bits 0-14 the magnitude. Not two's complement.
	RegRunSpeed = Register{Addr: 0x2E, Size: 2, SignBit: 15}

	// RegPosition is the current position, unsigned little-endian.
	RegPosition = Register{Addr: 0x38, Size: 2}

	// RegLoad is the current load/torque, sign-magnitude encoded. The
	// direction bit index varies between firmware revisions; bit 10 is
	// the common default and is configurable via WithLoadSignBit.
	RegLoad = Register{Addr: 0x3C, Size: 2, SignBit: 10}
)

// DecodeLoad splits a raw load register value into a signed integer:
// bits 0..signBit-1 are the magnitude, bit signBit the direction.
func DecodeLoad(raw uint16, signBit int) int {
	magnitude := int(raw) & ((1 << signBit) - 1)
	if raw&(1<<signBit) != 0 {
		return -magnitude
	}

	return magnitude
}

// EncodeSpeed converts a signed speed into the run-speed register
// encoding: a 15-bit magnitude with the sign carried in bit 15. This is
// not two's complement and must be preserved exactly for hardware
// compatibility.
func EncodeSpeed(speed int) uint16 {
	if speed < 0 {
		return uint16(-speed)&0x7FFF | 0x8000
	}

	return uint16(speed) & 0x7FFF
}
