// Package power gates the dashboard on engine activity. While the engine is
// off the CPU runs at a low frequency and only samples the bus; once the
// engine runs the CPU is restored and the consumer is started.
package power

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"vehicle-hud/internal/state"
)

type State int32

const (
	StateLiteSleepProbing State = iota
	StateActive
)

func (s State) String() string {
	switch s {
	case StateLiteSleepProbing:
		return "LiteSleepProbing"
	case StateActive:
		return "Active"
	default:
		return "Unknown"
	}
}

// Sampler reports whether a positive engine speed was seen within window.
// *acquisition.Loop implements it.
type Sampler interface {
	Sample(ctx context.Context, window time.Duration) (bool, error)
}

// Snapshotter exposes the latest vehicle state; *state.Store implements it.
type Snapshotter interface {
	Snapshot() state.VehicleState
}

type Options struct {
	// Disabled keeps the CPU at full speed and never restarts. Probe starts
	// the consumer immediately.
	Disabled        bool
	SampleWindow    time.Duration
	Backoff         time.Duration
	TeardownTimeout time.Duration
	ActiveMHz       int
	SleepMHz        int
}

// Controller owns the consumer lifetime and the CPU frequency. Probe and
// CheckEngine must be called from one goroutine; State and ConsumerRunning
// may be read from anywhere.
type Controller struct {
	sampler   Sampler
	snapshots Snapshotter
	governor  Governor
	restarter Restarter
	consumer  Consumer
	opts      Options
	logger    *zap.Logger

	mu    sync.Mutex
	state State
	task  *task

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) bool
}

func NewController(sampler Sampler, snapshots Snapshotter, governor Governor, restarter Restarter, consumer Consumer, opts Options, logger *zap.Logger) *Controller {
	if opts.SampleWindow <= 0 {
		opts.SampleWindow = time.Second
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 3 * time.Second
	}
	if opts.TeardownTimeout <= 0 {
		opts.TeardownTimeout = 2 * time.Second
	}
	return &Controller{
		sampler:   sampler,
		snapshots: snapshots,
		governor:  governor,
		restarter: restarter,
		consumer:  consumer,
		opts:      opts,
		logger:    logger,
		state:     StateLiteSleepProbing,
		sleep:     sleepCtx,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	if prev != s {
		c.logger.Info("Power state changed", zap.Stringer("from", prev), zap.Stringer("to", s))
	}
}

func (c *Controller) ConsumerRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.task != nil && c.task.running()
}

// Probe blocks in lite sleep until the engine is seen running, then restores
// the CPU frequency and starts the consumer. The consumer's context derives
// from ctx. Calling Probe while Active is a no-op.
func (c *Controller) Probe(ctx context.Context) error {
	if c.State() == StateActive {
		return nil
	}

	if c.opts.Disabled {
		c.logger.Info("Power management disabled, starting consumer")
		c.startConsumer(ctx)
		c.setState(StateActive)
		return nil
	}

	c.enterLiteSleep()
	c.logger.Info("Waiting for engine to start",
		zap.Duration("sample_window", c.opts.SampleWindow),
		zap.Duration("backoff", c.opts.Backoff))

	for {
		running, err := c.sampler.Sample(ctx, c.opts.SampleWindow)
		if err != nil {
			return err
		}
		if running {
			break
		}
		c.logger.Debug("Engine off, backing off", zap.Duration("backoff", c.opts.Backoff))
		if !c.sleep(ctx, c.opts.Backoff) {
			return ctx.Err()
		}
	}

	c.logger.Info("Car turned ON")
	c.setFrequency(c.opts.ActiveMHz)
	c.startConsumer(ctx)
	c.setState(StateActive)
	return nil
}

// CheckEngine tears the consumer down and restarts the device when the
// controller is Active but the latest snapshot shows the engine stopped.
// It returns the restarter's error, if any.
func (c *Controller) CheckEngine(ctx context.Context) error {
	if c.opts.Disabled || c.State() != StateActive {
		return nil
	}
	if c.snapshots.Snapshot().EngineRunning() {
		return nil
	}

	c.logger.Info("Car turned OFF")
	c.enterLiteSleep()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return c.restarter.Restart("engine stopped")
}

func (c *Controller) enterLiteSleep() {
	c.stopConsumer()
	c.setFrequency(c.opts.SleepMHz)
	c.setState(StateLiteSleepProbing)
}

func (c *Controller) startConsumer(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.task != nil && c.task.running() {
		return
	}
	c.task = startTask(ctx, c.consumer, c.logger)
}

// stopConsumer cancels the consumer, blanks its output and waits up to
// TeardownTimeout for it to finish.
func (c *Controller) stopConsumer() {
	c.mu.Lock()
	t := c.task
	c.task = nil
	c.mu.Unlock()
	if t == nil {
		return
	}

	t.cancel()
	if err := c.consumer.Blank(); err != nil {
		c.logger.Warn("Failed to blank output", zap.Error(err))
	}
	if !t.wait(c.opts.TeardownTimeout) {
		c.logger.Warn("Consumer did not stop in time", zap.Duration("timeout", c.opts.TeardownTimeout))
	}
}

func (c *Controller) setFrequency(mhz int) {
	if mhz <= 0 {
		return
	}
	if err := c.governor.SetFrequency(mhz); err != nil {
		c.logger.Warn("Failed to set CPU frequency", zap.Int("mhz", mhz), zap.Error(err))
		return
	}
	c.logger.Info("CPU frequency set", zap.Int("mhz", mhz))
}

// Stop cancels the consumer without restarting. Used on process shutdown.
func (c *Controller) Stop() {
	c.stopConsumer()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
