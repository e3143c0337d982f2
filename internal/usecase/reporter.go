package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"vehicle-hud/internal/state"
)

type ReporterOptions struct {
	Device   string
	Interval time.Duration
	// Heartbeat forces a report of an unchanged state after this long.
	Heartbeat time.Duration
	// FlushTimeout bounds how long Blank waits for the engine_off event to
	// reach the producer.
	FlushTimeout time.Duration
}

// Reporter samples the store every Interval and dispatches the snapshot
// when it changed or the heartbeat elapsed. It runs as a consumer next to
// the display, so it only reports while the engine is on.
type Reporter struct {
	snapshots  Snapshotter
	dispatcher Dispatcher
	opts       ReporterOptions
	logger     *zap.Logger
	now        func() time.Time

	mu       sync.Mutex
	reported bool
	last     state.VehicleState
	lastSent time.Time
}

func NewReporter(snapshots Snapshotter, dispatcher Dispatcher, opts ReporterOptions, logger *zap.Logger) *Reporter {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = time.Second
	}
	return &Reporter{
		snapshots:  snapshots,
		dispatcher: dispatcher,
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
}

func (r *Reporter) Run(ctx context.Context) error {
	r.logger.Info("Telemetry reporter started", zap.Duration("interval", r.opts.Interval))
	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.report()
		}
	}
}

func (r *Reporter) report() {
	s := r.snapshots.Snapshot()
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reported && s == r.last {
		if r.opts.Heartbeat <= 0 || now.Sub(r.lastSent) < r.opts.Heartbeat {
			return
		}
	}

	ok := r.dispatcher.Dispatch(r.opts.Device, TelemetryPayload{
		Type:      PayloadVehicleState,
		Device:    r.opts.Device,
		Timestamp: now,
		Data:      s,
	})
	if !ok {
		return
	}
	r.reported = true
	r.last = s
	r.lastSent = now
}

// Blank emits a final engine_off event with the last known state, resets
// change tracking for the next drive and waits up to FlushTimeout for the
// event to be delivered. The controller restarts the process right after.
func (r *Reporter) Blank() error {
	r.mu.Lock()
	ok := r.dispatcher.Dispatch(r.opts.Device, TelemetryPayload{
		Type:      PayloadEngineOff,
		Device:    r.opts.Device,
		Timestamp: r.now(),
		Data:      r.snapshots.Snapshot(),
	})
	r.reported = false
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), r.opts.FlushTimeout)
	defer cancel()
	if err := r.dispatcher.Flush(ctx); err != nil {
		return fmt.Errorf("flush engine_off: %w", err)
	}
	if !ok {
		return fmt.Errorf("engine_off event dropped")
	}
	return nil
}
