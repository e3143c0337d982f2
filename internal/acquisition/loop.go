// Package acquisition moves frames from a bus source through the signal
// decoder into the shared state store.
package acquisition

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"vehicle-hud/internal/can"
	"vehicle-hud/internal/protocol/signals"
	"vehicle-hud/internal/state"
)

// maxBatch bounds how many queued frames Run drains before yielding.
const maxBatch = 64

// errorBackoff is the pause after a transient source error.
const errorBackoff = 100 * time.Millisecond

// Publisher receives decoded updates; *state.Store implements it.
type Publisher interface {
	Publish(d state.Delta)
}

type Options struct {
	// ReceiveTimeout bounds each wait for a frame.
	ReceiveTimeout time.Duration
	// Yield is the pause at the end of every Run iteration.
	Yield time.Duration
}

// Stats are cumulative counters, safe to read from any goroutine.
type Stats struct {
	Frames    uint64
	Decoded   uint64
	Publishes uint64
	Errors    uint64
}

// Loop is driven either step-wise by the power controller while probing, or
// free-running through Run. Only one goroutine may drive it at a time.
type Loop struct {
	source  can.Source
	decoder *signals.Decoder
	store   Publisher
	opts    Options
	logger  *zap.Logger

	frames    atomic.Uint64
	decoded   atomic.Uint64
	publishes atomic.Uint64
	errors    atomic.Uint64
}

func New(source can.Source, decoder *signals.Decoder, store Publisher, opts Options, logger *zap.Logger) *Loop {
	if opts.ReceiveTimeout <= 0 {
		opts.ReceiveTimeout = 10 * time.Millisecond
	}
	if opts.Yield <= 0 {
		opts.Yield = time.Millisecond
	}
	return &Loop{
		source:  source,
		decoder: decoder,
		store:   store,
		opts:    opts,
		logger:  logger,
	}
}

// receive waits up to timeout for one frame and decodes it.
func (l *Loop) receive(ctx context.Context, timeout time.Duration) (delta state.Delta, got bool, err error) {
	f, ok, err := l.source.Receive(ctx, timeout)
	if err != nil || !ok {
		return state.Delta{}, false, err
	}
	l.frames.Add(1)

	delta, ok = l.decoder.Decode(f)
	if !ok {
		return state.Delta{}, true, nil
	}
	l.decoded.Add(1)
	return delta, true, nil
}

func (l *Loop) publish(d state.Delta) {
	if d.Empty() {
		return
	}
	l.store.Publish(d)
	l.publishes.Add(1)
}

// Step waits for at most one frame and publishes what it decodes. The
// returned delta is empty when no frame arrived or the frame was irrelevant.
func (l *Loop) Step(ctx context.Context) (state.Delta, error) {
	delta, _, err := l.receive(ctx, l.opts.ReceiveTimeout)
	if err != nil {
		return state.Delta{}, err
	}
	l.publish(delta)
	return delta, nil
}

// Sample steps the loop for up to window and reports whether a frame decoded
// to a positive engine speed. It returns as soon as one does.
func (l *Loop) Sample(ctx context.Context, window time.Duration) (bool, error) {
	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		delta, err := l.Step(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, can.ErrClosed) {
				return false, err
			}
			l.errors.Add(1)
			l.logger.Warn("Bus receive failed while sampling", zap.Error(err))
			continue
		}
		if delta.Fields&state.FieldEngineSpeed != 0 && delta.Values.EngineSpeedRPM > 0 {
			return true, nil
		}
	}
	return false, nil
}

// Run decodes frames until ctx is cancelled or the source closes. Each
// iteration drains up to maxBatch queued frames, publishes their merged
// update once, then sleeps for Yield.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("Acquisition loop started",
		zap.Duration("receive_timeout", l.opts.ReceiveTimeout),
		zap.Duration("yield", l.opts.Yield))
	defer l.logger.Info("Acquisition loop stopped", zap.Any("stats", l.Stats()))

	yield := time.NewTimer(l.opts.Yield)
	defer yield.Stop()

	for {
		err := l.iterate(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, can.ErrClosed) {
				return err
			}
			l.errors.Add(1)
			l.logger.Warn("Bus receive failed", zap.Error(err))
			if !sleep(ctx, errorBackoff) {
				return nil
			}
			continue
		}

		yield.Reset(l.opts.Yield)
		select {
		case <-ctx.Done():
			return nil
		case <-yield.C:
		}
	}
}

func (l *Loop) iterate(ctx context.Context) error {
	var merged state.Delta
	defer func() { l.publish(merged) }()

	timeout := l.opts.ReceiveTimeout
	for i := 0; i < maxBatch; i++ {
		delta, got, err := l.receive(ctx, timeout)
		if err != nil {
			return err
		}
		if !got {
			return nil
		}
		merged = merged.Merge(delta)
		timeout = 0
	}
	return nil
}

// Reset forgets the decoder's remembered signal values so the next drive
// starts from the same state as a freshly started process. It must not be
// called while Run or Sample is in progress.
func (l *Loop) Reset() {
	l.decoder.Reset()
}

// Stats returns the loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Frames:    l.frames.Load(),
		Decoded:   l.decoded.Load(),
		Publishes: l.publishes.Load(),
		Errors:    l.errors.Load(),
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
