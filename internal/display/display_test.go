package display

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vehicle-hud/internal/state"
)

func TestDisplayGear_ParkOverride(t *testing.T) {
	tests := []struct {
		name string
		in   state.VehicleState
		want int32
	}{
		{"neutral in park", state.VehicleState{EngagedGear: 0, GearboxMode: state.GearboxModePark}, state.GearPark},
		{"neutral in neutral", state.VehicleState{EngagedGear: 0, GearboxMode: state.GearboxModeNeutral}, state.GearNeutral},
		{"neutral unknown mode", state.VehicleState{EngagedGear: 0, GearboxMode: state.GearboxModeUnknown, GearboxModeRaw: 0x61}, state.GearNeutral},
		{"reverse", state.VehicleState{EngagedGear: -1, GearboxMode: state.GearboxModeReverse}, state.GearReverse},
		{"third in drive", state.VehicleState{EngagedGear: 3, GearboxMode: state.GearboxModeDrive}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DisplayGear(tt.in))
		})
	}
}

func TestGearText(t *testing.T) {
	for g := int32(1); g <= 8; g++ {
		assert.Equal(t, string(rune('0'+g)), GearText(g))
	}
	assert.Equal(t, "P", GearText(state.GearPark))
	assert.Equal(t, "R", GearText(state.GearReverse))
	assert.Equal(t, "N", GearText(state.GearNeutral))
	assert.Equal(t, "D", GearText(9))
	assert.Equal(t, "D", GearText(15))
	assert.Equal(t, "D", GearText(-5))
}

func TestShiftColor_Thresholds(t *testing.T) {
	tests := []struct {
		rpm  int32
		want Color
	}{
		{0, ColorDarkGrey},
		{1500, ColorDarkGrey},
		{1501, ColorBlue},
		{2500, ColorBlue},
		{2501, ColorGreen},
		{3501, ColorYellow},
		{4500, ColorYellow},
		{4501, ColorRed},
		{8000, ColorRed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ShiftColor(tt.rpm), "rpm %d", tt.rpm)
	}
	assert.Equal(t, ColorWhite, GearColor(4500))
	assert.Equal(t, ColorRed, GearColor(4501))
}

func TestArcFraction(t *testing.T) {
	assert.Zero(t, ArcFraction(-100))
	assert.Zero(t, ArcFraction(0))
	assert.InDelta(t, 0.5, ArcFraction(3000), 1e-9)
	assert.Equal(t, 1.0, ArcFraction(6000))
	assert.Equal(t, 1.0, ArcFraction(8000))
}

type call struct {
	op    string
	text  string
	color Color
}

type fakePanel struct {
	mu        sync.Mutex
	calls     []call
	beginErrs int
}

func (p *fakePanel) record(c call) {
	p.mu.Lock()
	p.calls = append(p.calls, c)
	p.mu.Unlock()
}

func (p *fakePanel) Begin() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call{op: "begin"})
	if p.beginErrs > 0 {
		p.beginErrs--
		return errors.New("spi timeout")
	}
	return nil
}

func (p *fakePanel) DrawGear(text string, color Color) error {
	p.record(call{op: "gear", text: text, color: color})
	return nil
}

func (p *fakePanel) DrawArc(fraction float64, color Color) error {
	p.record(call{op: "arc", color: color})
	return nil
}

func (p *fakePanel) Blank() error {
	p.record(call{op: "blank"})
	return nil
}

func (p *fakePanel) ops(op string) []call {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []call
	for _, c := range p.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

func TestRenderer_RedrawsGearOnlyOnChange(t *testing.T) {
	panel := &fakePanel{}
	store := state.NewStore()
	r := NewRenderer(panel, store, Options{Refresh: time.Millisecond}, zap.NewNop())
	require.True(t, r.begin(context.Background()))

	store.Publish(state.Delta{Fields: state.FieldAll, Values: state.VehicleState{EngineSpeedRPM: 1200, EngagedGear: 2, GearboxMode: state.GearboxModeDrive}})
	r.draw(Compose(store.Snapshot()))
	r.draw(Compose(store.Snapshot()))

	store.Publish(state.Delta{Fields: state.FieldEngineSpeed, Values: state.VehicleState{EngineSpeedRPM: 4800}})
	r.draw(Compose(store.Snapshot()))
	r.draw(Compose(store.Snapshot()))

	store.Publish(state.Delta{Fields: state.FieldEngagedGear, Values: state.VehicleState{EngagedGear: 3}})
	r.draw(Compose(store.Snapshot()))

	assert.Equal(t, []call{
		{op: "gear", text: "2", color: ColorWhite},
		{op: "gear", text: "2", color: ColorRed},
		{op: "gear", text: "3", color: ColorRed},
	}, panel.ops("gear"))
	assert.Len(t, panel.ops("arc"), 5)
}

func TestRenderer_RetriesBegin(t *testing.T) {
	panel := &fakePanel{beginErrs: 2}
	r := NewRenderer(panel, state.NewStore(), Options{Refresh: time.Millisecond, InitRetry: time.Millisecond}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return len(panel.ops("arc")) > 0 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Len(t, panel.ops("begin"), 3)
}

func TestRenderer_BeginAbandonedOnCancel(t *testing.T) {
	panel := &fakePanel{beginErrs: 1 << 30}
	r := NewRenderer(panel, state.NewStore(), Options{InitRetry: time.Millisecond}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.NoError(t, r.Run(ctx))
	assert.Empty(t, panel.ops("gear"))
}

func TestRenderer_BlankStopsDrawing(t *testing.T) {
	panel := &fakePanel{}
	store := state.NewStore()
	r := NewRenderer(panel, store, Options{}, zap.NewNop())
	require.True(t, r.begin(context.Background()))
	r.draw(Compose(store.Snapshot()))

	require.NoError(t, r.Blank())
	require.NoError(t, r.Blank())
	r.draw(Compose(store.Snapshot()))

	assert.Len(t, panel.ops("blank"), 1)
	assert.Len(t, panel.ops("arc"), 1)
}

func TestTerminalPanel(t *testing.T) {
	var buf bytes.Buffer
	p := NewTerminalPanel(&buf, false)

	assert.ErrorIs(t, p.DrawGear("N", ColorWhite), ErrPanelOff)

	require.NoError(t, p.Begin())
	require.NoError(t, p.DrawGear("4", ColorWhite))
	require.NoError(t, p.DrawArc(0.5, ColorGreen))

	out := buf.String()
	assert.Contains(t, out, "4")
	assert.Equal(t, arcWidth/2*2, strings.Count(out[strings.LastIndex(out, "\x1b[H"):], "█"))

	require.NoError(t, p.Blank())
	assert.True(t, strings.HasSuffix(buf.String(), "\x1b[?25h"))
	assert.ErrorIs(t, p.DrawArc(1, ColorRed), ErrPanelOff)
}
