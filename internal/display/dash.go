// Package display turns vehicle state snapshots into the gear and shift-light
// dashboard and drives a Panel with it.
package display

import (
	"strconv"

	"vehicle-hud/internal/state"
)

type Color uint8

const (
	ColorBlack Color = iota
	ColorWhite
	ColorDarkGrey
	ColorBlue
	ColorGreen
	ColorYellow
	ColorRed
)

func (c Color) String() string {
	switch c {
	case ColorBlack:
		return "black"
	case ColorWhite:
		return "white"
	case ColorDarkGrey:
		return "darkgrey"
	case ColorBlue:
		return "blue"
	case ColorGreen:
		return "green"
	case ColorYellow:
		return "yellow"
	case ColorRed:
		return "red"
	default:
		return "color(" + strconv.Itoa(int(c)) + ")"
	}
}

// MaxRPM is the engine speed at which the arc is full.
const MaxRPM = 6000

// ShiftNowRPM is the speed above which the driver should shift up.
const ShiftNowRPM = 4500

// shiftLights is checked top down; the first threshold the speed exceeds
// picks the colour.
var shiftLights = []struct {
	rpm   int32
	color Color
}{
	{ShiftNowRPM, ColorRed},
	{3500, ColorYellow},
	{2500, ColorGreen},
	{1500, ColorBlue},
}

// DisplayGear is the gear to show for s. Neutral while the gearbox reports
// Park is shown as Park.
func DisplayGear(s state.VehicleState) int32 {
	if s.EngagedGear == state.GearNeutral && s.GearboxMode == state.GearboxModePark {
		return state.GearPark
	}
	return s.EngagedGear
}

// GearText is the single glyph for gear.
func GearText(gear int32) string {
	switch {
	case gear > 0 && gear <= 8:
		return strconv.Itoa(int(gear))
	case gear == state.GearPark:
		return "P"
	case gear == state.GearReverse:
		return "R"
	case gear == state.GearNeutral:
		return "N"
	default:
		return "D"
	}
}

func ShiftColor(rpm int32) Color {
	for _, l := range shiftLights {
		if rpm > l.rpm {
			return l.color
		}
	}
	return ColorDarkGrey
}

func GearColor(rpm int32) Color {
	if rpm > ShiftNowRPM {
		return ColorRed
	}
	return ColorWhite
}

// ArcFraction is how much of the RPM arc is lit, in [0, 1].
func ArcFraction(rpm int32) float64 {
	if rpm <= 0 {
		return 0
	}
	if rpm >= MaxRPM {
		return 1
	}
	return float64(rpm) / MaxRPM
}

// View is everything the panel shows for one snapshot.
type View struct {
	Gear       int32
	GearText   string
	GearColor  Color
	ShiftColor Color
	Arc        float64
	RPM        int32
}

func Compose(s state.VehicleState) View {
	gear := DisplayGear(s)
	return View{
		Gear:       gear,
		GearText:   GearText(gear),
		GearColor:  GearColor(s.EngineSpeedRPM),
		ShiftColor: ShiftColor(s.EngineSpeedRPM),
		Arc:        ArcFraction(s.EngineSpeedRPM),
		RPM:        s.EngineSpeedRPM,
	}
}
