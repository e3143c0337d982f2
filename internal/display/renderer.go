package display

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"vehicle-hud/internal/state"
)

// Snapshotter exposes the latest vehicle state; *state.Store implements it.
type Snapshotter interface {
	Snapshot() state.VehicleState
}

type Options struct {
	// Refresh is the poll interval for new snapshots.
	Refresh time.Duration
	// InitRetry is the pause between failed panel Begin calls.
	InitRetry time.Duration
}

// Renderer polls the store and draws on a Panel. The gear glyph is only
// redrawn when the gear or its colour changes; the arc on every refresh.
type Renderer struct {
	panel     Panel
	snapshots Snapshotter
	opts      Options
	logger    *zap.Logger

	mu        sync.Mutex
	on        bool
	prevGear  int32
	prevColor Color
}

func NewRenderer(panel Panel, snapshots Snapshotter, opts Options, logger *zap.Logger) *Renderer {
	if opts.Refresh < time.Millisecond {
		opts.Refresh = time.Millisecond
	}
	if opts.InitRetry <= 0 {
		opts.InitRetry = 500 * time.Millisecond
	}
	return &Renderer{
		panel:     panel,
		snapshots: snapshots,
		opts:      opts,
		logger:    logger,
	}
}

// Run turns the panel on and draws until ctx is cancelled.
func (r *Renderer) Run(ctx context.Context) error {
	if !r.begin(ctx) {
		return nil
	}
	r.logger.Info("Display on", zap.Duration("refresh", r.opts.Refresh))

	ticker := time.NewTicker(r.opts.Refresh)
	defer ticker.Stop()

	for {
		r.draw(Compose(r.snapshots.Snapshot()))

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// begin retries panel.Begin every InitRetry. It reports false if ctx ended
// first.
func (r *Renderer) begin(ctx context.Context) bool {
	for {
		r.mu.Lock()
		err := r.panel.Begin()
		if err == nil {
			r.on = true
			// Nothing drawn yet, force the first gear draw.
			r.prevGear = state.GearPark - 10
			r.prevColor = ColorBlack
		}
		r.mu.Unlock()
		if err == nil {
			return true
		}

		r.logger.Warn("Display init failed, retrying", zap.Error(err), zap.Duration("retry", r.opts.InitRetry))
		t := time.NewTimer(r.opts.InitRetry)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}
	}
}

func (r *Renderer) draw(v View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.on {
		return
	}

	if v.Gear != r.prevGear || v.GearColor != r.prevColor {
		if err := r.panel.DrawGear(v.GearText, v.GearColor); err != nil {
			r.logger.Warn("Failed to draw gear", zap.Error(err))
		} else {
			r.prevGear = v.Gear
			r.prevColor = v.GearColor
		}
	}
	if err := r.panel.DrawArc(v.Arc, v.ShiftColor); err != nil {
		r.logger.Warn("Failed to draw shift indicator", zap.Error(err))
	}
}

// Blank turns the panel off. Safe to call while Run is still winding down;
// nothing is drawn afterwards until the next Run.
func (r *Renderer) Blank() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.on {
		return nil
	}
	r.on = false
	r.logger.Info("Display off")
	return r.panel.Blank()
}
