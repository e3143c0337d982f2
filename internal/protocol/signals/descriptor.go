// Package signals decodes the periodic broadcast frames of the vehicle's
// powertrain modules into VehicleState updates.
//
// Layouts are those of the 2016 Ford Mustang EcoBoost high-speed CAN bus.
package signals

import (
	"fmt"

	"vehicle-hud/internal/state"
)

// Signal enumerates the decoded quantities.
type Signal uint8

const (
	SignalEngagedGear Signal = iota
	SignalEngineSpeed
	SignalGearboxMode
)

func (s Signal) String() string {
	switch s {
	case SignalEngagedGear:
		return "engaged_gear"
	case SignalEngineSpeed:
		return "engine_speed"
	case SignalGearboxMode:
		return "gearbox_mode"
	default:
		return fmt.Sprintf("Signal(%d)", uint8(s))
	}
}

// Broadcast identifiers.
const (
	IDEngagedGear uint32 = 0x230
	IDEngineSpeed uint32 = 0x204
	IDGearboxMode uint32 = 0x171
)

// Descriptor is one row of the decode table. Decode must accept any 8-byte
// payload. Describe is optional and only called in diag builds.
type Descriptor struct {
	Signal   Signal
	Name     string
	ID       uint32
	Decode   func(payload [8]byte) state.Delta
	Describe func(s state.VehicleState) string
}

// Broadcast returns the table of frames decoded by default.
func Broadcast() []Descriptor {
	return []Descriptor{
		{
			Signal:   SignalEngagedGear,
			Name:     "Current Gear",
			ID:       IDEngagedGear,
			Decode:   gearDelta,
			Describe: describeGear,
		},
		{
			Signal:   SignalEngineSpeed,
			Name:     "Engine RPM",
			ID:       IDEngineSpeed,
			Decode:   engineSpeedDelta,
			Describe: describeEngineSpeed,
		},
		{
			Signal:   SignalGearboxMode,
			Name:     "Gearbox Mode",
			ID:       IDGearboxMode,
			Decode:   gearboxModeDelta,
			Describe: describeGearboxMode,
		},
	}
}

func engineSpeedDelta(p [8]byte) state.Delta {
	return state.Delta{
		Fields: state.FieldEngineSpeed,
		Values: state.VehicleState{EngineSpeedRPM: DecodeEngineSpeed(p)},
	}
}

func gearDelta(p [8]byte) state.Delta {
	return state.Delta{
		Fields: state.FieldEngagedGear,
		Values: state.VehicleState{EngagedGear: DecodeEngagedGear(p)},
	}
}

func gearboxModeDelta(p [8]byte) state.Delta {
	raw := DecodeGearboxMode(p)
	return state.Delta{
		Fields: state.FieldGearboxMode,
		Values: state.VehicleState{
			GearboxMode:    state.ParseGearboxMode(raw),
			GearboxModeRaw: raw,
		},
	}
}

func describeEngineSpeed(s state.VehicleState) string {
	return fmt.Sprintf("Engine RPM = %d", s.EngineSpeedRPM)
}

func describeGear(s state.VehicleState) string {
	return fmt.Sprintf("Current Engaged Gear = %s", state.GearName(s.EngagedGear))
}

func describeGearboxMode(s state.VehicleState) string {
	if s.GearboxMode == state.GearboxModeUnknown {
		return fmt.Sprintf("Gearbox Mode: 0x%02X Unknown", s.GearboxModeRaw)
	}
	return fmt.Sprintf("Gearbox Mode: 0x%02X %s", s.GearboxModeRaw, s.GearboxMode.Symbol())
}
