package signals

import "vehicle-hud/internal/state"

// DecodeEngineSpeed reads bytes 3..4 big-endian; one raw unit is 2 rpm.
func DecodeEngineSpeed(p [8]byte) int32 {
	return (int32(p[3])*256 + int32(p[4])) * 2
}

// DecodeEngagedGear checks the selector byte first: 2 is Reverse and 4 is
// Neutral regardless of byte 0. Otherwise the gear is the high nibble of byte 0.
func DecodeEngagedGear(p [8]byte) int32 {
	switch p[1] {
	case 2:
		return state.GearReverse
	case 4:
		return state.GearNeutral
	default:
		return int32(p[0] >> 4)
	}
}

// DecodeGearboxMode returns the raw selector byte unchanged.
func DecodeGearboxMode(p [8]byte) uint8 {
	return p[1]
}
