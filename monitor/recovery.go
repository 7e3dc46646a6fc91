package monitor

import (
	"math"

	"github.com/roverton/go-stservo/stservo"
)

// OffsetPolicy selects how the corrective offset is derived from the
// travelled distance. Different firmware generations of the original
// rig used different policies, so the choice is configurable; OffsetRound
// is the canonical one.
type OffsetPolicy int

const (
	// OffsetRound rounds the travelled distance to the nearest 45°
	// increment, snapping an exact-zero result to ±45° in the direction
	// of travel so the corrective move is never a no-op.
	OffsetRound OffsetPolicy = iota

	// OffsetFloor floors the travelled distance to a 45° increment, with
	// the same zero-avoidance snap as OffsetRound.
	OffsetFloor

	// OffsetFloorNoBias floors without zero avoidance; the corrective
	// move may then equal the start position.
	OffsetFloorNoBias
)

// stepsPerIncrement is 45° expressed in steps: 4096 steps per revolution,
// so 512 steps per 45°.
const stepsPerIncrement = stservo.StepsPerRevolution / 8

// correctiveTarget computes the reposition target after a stall or
// timeout: the 45°-increment position nearest (per policy) to the
// distance travelled from start, re-anchored at start and wrapped to one
// revolution.
//
// Rounding is half-away-from-zero via math.Round. With zero avoidance, a
// zero offset snaps to +45° when travel was forward or zero, −45°
// otherwise.
func correctiveTarget(start, current uint16, policy OffsetPolicy) uint16 {
	delta := int(current) - int(start)

	var increments float64
	switch policy {
	case OffsetFloor, OffsetFloorNoBias:
		increments = math.Floor(float64(delta) / stepsPerIncrement)
	default:
		increments = math.Round(float64(delta) / stepsPerIncrement)
	}

	offset := int(increments) * stepsPerIncrement
	if offset == 0 && policy != OffsetFloorNoBias {
		if delta >= 0 {
			offset = stepsPerIncrement
		} else {
			offset = -stepsPerIncrement
		}
	}

	target := (int(start) + offset) % stservo.StepsPerRevolution
	if target < 0 {
		target += stservo.StepsPerRevolution
	}

	return uint16(target)
}
