package display

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Panel is the output device. Begin powers it up and may fail; the other
// calls are only made after a successful Begin.
type Panel interface {
	Begin() error
	DrawGear(text string, color Color) error
	DrawArc(fraction float64, color Color) error
	// Blank clears the panel and powers it down.
	Blank() error
}

var ErrPanelOff = errors.New("panel is off")

const arcWidth = 30

var palette = map[Color]lipgloss.Color{
	ColorBlack:    lipgloss.Color("0"),
	ColorWhite:    lipgloss.Color("15"),
	ColorDarkGrey: lipgloss.Color("240"),
	ColorBlue:     lipgloss.Color("12"),
	ColorGreen:    lipgloss.Color("10"),
	ColorYellow:   lipgloss.Color("11"),
	ColorRed:      lipgloss.Color("9"),
}

// TerminalPanel renders the dashboard as one status line on a terminal:
// the RPM bar on both sides of the gear glyph, like the round display's
// two arcs.
type TerminalPanel struct {
	mu     sync.Mutex
	out    io.Writer
	mirror bool
	on     bool

	gear     string
	lit      int
	arcColor Color

	gearStyle lipgloss.Style
	boxStyle  lipgloss.Style
}

// NewTerminalPanel writes to out. Mirror is for setups that reflect the
// panel off a windshield.
func NewTerminalPanel(out io.Writer, mirror bool) *TerminalPanel {
	return &TerminalPanel{
		out:       out,
		mirror:    mirror,
		gearStyle: lipgloss.NewStyle().Bold(true).Padding(0, 1),
		boxStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(palette[ColorDarkGrey]).
			Padding(0, 1),
	}
}

func (p *TerminalPanel) Begin() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	// Clear screen and hide the cursor.
	if _, err := io.WriteString(p.out, "\x1b[2J\x1b[H\x1b[?25l"); err != nil {
		return fmt.Errorf("init terminal: %w", err)
	}
	p.on = true
	p.gear = ""
	p.lit = 0
	return nil
}

func (p *TerminalPanel) DrawGear(text string, color Color) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.on {
		return ErrPanelOff
	}
	p.gear = p.gearStyle.Foreground(palette[color]).Render(text)
	return p.flush()
}

func (p *TerminalPanel) DrawArc(fraction float64, color Color) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.on {
		return ErrPanelOff
	}
	p.lit = int(fraction*arcWidth + 0.5)
	p.arcColor = color
	return p.flush()
}

func (p *TerminalPanel) Blank() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.on {
		return nil
	}
	p.on = false
	_, err := io.WriteString(p.out, "\x1b[2J\x1b[H\x1b[?25h")
	return err
}

// flush redraws the whole line. Callers hold p.mu.
func (p *TerminalPanel) flush() error {
	lit := lipgloss.NewStyle().Foreground(palette[p.arcColor]).Render(strings.Repeat("█", p.lit))
	dark := lipgloss.NewStyle().Foreground(palette[ColorDarkGrey]).Render(strings.Repeat("░", arcWidth-p.lit))

	// Both bars grow from the outer edges toward the gear, or outwards from
	// the gear when mirrored.
	left, right := dark+lit, lit+dark
	if p.mirror {
		left, right = lit+dark, dark+lit
	}
	line := lipgloss.JoinHorizontal(lipgloss.Center, left, p.gear, right)
	_, err := io.WriteString(p.out, "\x1b[H"+p.boxStyle.Render(line)+"\n")
	return err
}
