// Package state holds the single shared vehicle snapshot handed from the
// acquisition goroutine to its consumers.
package state

import "fmt"

// Special engaged-gear numbers. Forward gears are 1..15.
const (
	GearPark    int32 = -2
	GearReverse int32 = -1
	GearNeutral int32 = 0
)

// GearboxMode is the transmission selector position broadcast by the TCM.
type GearboxMode uint8

// Raw selector bytes as they appear on the bus. Anything else decodes to
// GearboxModeUnknown; the raw byte is kept in VehicleState.GearboxModeRaw.
const (
	GearboxModePark    GearboxMode = 0x00
	GearboxModeReverse GearboxMode = 0x20
	GearboxModeNeutral GearboxMode = 0x40
	GearboxModeDrive   GearboxMode = 0x60
	GearboxModeSport   GearboxMode = 0x80
	GearboxModeUnknown GearboxMode = 0xFF
)

// ParseGearboxMode maps a raw selector byte to a known mode or GearboxModeUnknown.
func ParseGearboxMode(raw uint8) GearboxMode {
	switch m := GearboxMode(raw); m {
	case GearboxModePark, GearboxModeReverse, GearboxModeNeutral, GearboxModeDrive, GearboxModeSport:
		return m
	default:
		return GearboxModeUnknown
	}
}

// Symbol is the single letter shown on a selector indicator.
func (m GearboxMode) Symbol() string {
	switch m {
	case GearboxModePark:
		return "P"
	case GearboxModeReverse:
		return "R"
	case GearboxModeNeutral:
		return "N"
	case GearboxModeDrive:
		return "D"
	case GearboxModeSport:
		return "S"
	default:
		return "?"
	}
}

func (m GearboxMode) String() string {
	switch m {
	case GearboxModePark:
		return "Park"
	case GearboxModeReverse:
		return "Reverse"
	case GearboxModeNeutral:
		return "Neutral"
	case GearboxModeDrive:
		return "Drive"
	case GearboxModeSport:
		return "Sport"
	case GearboxModeUnknown:
		return "Unknown"
	default:
		return fmt.Sprintf("GearboxMode(0x%02X)", uint8(m))
	}
}

// MarshalText encodes the mode by name so JSON snapshots stay readable.
func (m GearboxMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *GearboxMode) UnmarshalText(text []byte) error {
	for _, known := range []GearboxMode{
		GearboxModePark, GearboxModeReverse, GearboxModeNeutral,
		GearboxModeDrive, GearboxModeSport, GearboxModeUnknown,
	} {
		if string(text) == known.String() {
			*m = known
			return nil
		}
	}
	return fmt.Errorf("unknown gearbox mode %q", text)
}

// VehicleState is the latest decoded value of every signal.
type VehicleState struct {
	EngineSpeedRPM int32       `json:"engine_speed_rpm"`
	EngagedGear    int32       `json:"engaged_gear"`
	GearboxMode    GearboxMode `json:"gearbox_mode"`
	GearboxModeRaw uint8       `json:"gearbox_mode_raw"`
}

// EngineRunning reports whether the engine speed is strictly positive.
func (s VehicleState) EngineRunning() bool {
	return s.EngineSpeedRPM > 0
}

// GearName renders EngagedGear for logs.
func GearName(gear int32) string {
	switch {
	case gear == GearPark:
		return "Park"
	case gear == GearReverse:
		return "Reverse"
	case gear == GearNeutral:
		return "Neutral"
	case gear > 0:
		return fmt.Sprintf("%d", gear)
	default:
		return fmt.Sprintf("Gear(%d)", gear)
	}
}
