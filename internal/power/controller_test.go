package power

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vehicle-hud/internal/acquisition"
	"vehicle-hud/internal/can"
	"vehicle-hud/internal/protocol/signals"
	"vehicle-hud/internal/state"
)

type fakeConsumer struct {
	runs   atomic.Int32
	blanks atomic.Int32
	// ignoreCancel makes Run hang past cancellation.
	ignoreCancel bool
	release      chan struct{}
}

func (f *fakeConsumer) Run(ctx context.Context) error {
	f.runs.Add(1)
	if f.ignoreCancel {
		<-f.release
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeConsumer) Blank() error {
	f.blanks.Add(1)
	return nil
}

type fakeRestarter struct {
	mu      sync.Mutex
	reasons []string
	err     error
}

func (r *fakeRestarter) Restart(reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
	return r.err
}

func (r *fakeRestarter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reasons)
}

type scriptedSampler struct {
	results []bool
	calls   int
	err     error
}

func (s *scriptedSampler) Sample(ctx context.Context, window time.Duration) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if s.calls >= len(s.results) {
		return false, errors.New("script exhausted")
	}
	r := s.results[s.calls]
	s.calls++
	return r, nil
}

var testOpts = Options{
	SampleWindow:    50 * time.Millisecond,
	Backoff:         time.Second,
	TeardownTimeout: 200 * time.Millisecond,
	ActiveMHz:       240,
	SleepMHz:        80,
}

func newController(sampler Sampler, snaps Snapshotter, opts Options) (*Controller, *StaticGovernor, *fakeRestarter, *fakeConsumer) {
	gov := &StaticGovernor{}
	rs := &fakeRestarter{}
	cons := &fakeConsumer{}
	c := NewController(sampler, snaps, gov, rs, cons, opts, zap.NewNop())
	c.sleep = func(ctx context.Context, d time.Duration) bool { return ctx.Err() == nil }
	return c, gov, rs, cons
}

func frequency(t *testing.T, g *StaticGovernor) int {
	t.Helper()
	mhz, err := g.Frequency()
	require.NoError(t, err)
	return mhz
}

// Zero speed for a full window keeps the controller probing at the low
// frequency; the first positive sample activates it at full frequency.
func TestProbe_WakesOnEngineStart(t *testing.T) {
	q := can.NewQueue(16)
	dec, err := signals.NewDecoder(signals.Broadcast(), zap.NewNop())
	require.NoError(t, err)
	store := state.NewStore()
	loop := acquisition.New(q, dec, store, acquisition.Options{ReceiveTimeout: 5 * time.Millisecond}, zap.NewNop())

	c, gov, _, cons := newController(loop, store, testOpts)

	zero, err := can.EngineSpeedFrame(0)
	require.NoError(t, err)
	running, err := can.EngineSpeedFrame(800)
	require.NoError(t, err)
	q.Push(zero)

	var backoffs int
	c.sleep = func(ctx context.Context, d time.Duration) bool {
		backoffs++
		assert.Equal(t, testOpts.Backoff, d)
		assert.Equal(t, StateLiteSleepProbing, c.State())
		assert.Equal(t, testOpts.SleepMHz, frequency(t, gov))
		assert.False(t, c.ConsumerRunning())
		q.Push(running)
		return true
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Probe(ctx))

	assert.Equal(t, 1, backoffs)
	assert.Equal(t, StateActive, c.State())
	assert.Equal(t, testOpts.ActiveMHz, frequency(t, gov))
	assert.Equal(t, int32(800), store.Snapshot().EngineSpeedRPM)
	require.Eventually(t, func() bool { return cons.runs.Load() == 1 }, time.Second, time.Millisecond)

	c.Stop()
}

func TestProbe_BacksOffBetweenSamples(t *testing.T) {
	s := &scriptedSampler{results: []bool{false, false, false, true}}
	c, _, _, _ := newController(s, state.NewStore(), testOpts)
	var backoffs int
	c.sleep = func(ctx context.Context, d time.Duration) bool {
		backoffs++
		return true
	}

	require.NoError(t, c.Probe(context.Background()))
	defer c.Stop()
	assert.Equal(t, 4, s.calls)
	assert.Equal(t, 3, backoffs)
}

func TestProbe_IdempotentWhileActive(t *testing.T) {
	s := &scriptedSampler{results: []bool{true}}
	c, _, _, cons := newController(s, state.NewStore(), testOpts)

	ctx := context.Background()
	require.NoError(t, c.Probe(ctx))
	require.NoError(t, c.Probe(ctx))
	defer c.Stop()

	assert.Equal(t, 1, s.calls)
	require.Eventually(t, func() bool { return cons.runs.Load() == 1 }, time.Second, time.Millisecond)
	assert.True(t, c.ConsumerRunning())
}

func TestProbe_CancelledDuringBackoff(t *testing.T) {
	s := &scriptedSampler{results: []bool{false}}
	c, _, _, cons := newController(s, state.NewStore(), testOpts)

	ctx, cancel := context.WithCancel(context.Background())
	c.sleep = func(ctx context.Context, d time.Duration) bool {
		cancel()
		return false
	}

	assert.ErrorIs(t, c.Probe(ctx), context.Canceled)
	assert.Equal(t, StateLiteSleepProbing, c.State())
	assert.Zero(t, cons.runs.Load())
}

func TestProbe_SamplerErrorReturned(t *testing.T) {
	s := &scriptedSampler{err: can.ErrClosed}
	c, _, _, _ := newController(s, state.NewStore(), testOpts)
	assert.ErrorIs(t, c.Probe(context.Background()), can.ErrClosed)
}

func TestCheckEngine_TearsDownAndRestarts(t *testing.T) {
	store := state.NewStore()
	s := &scriptedSampler{results: []bool{true}}
	c, gov, rs, cons := newController(s, store, testOpts)

	store.Publish(state.Delta{Fields: state.FieldEngineSpeed, Values: state.VehicleState{EngineSpeedRPM: 900}})
	require.NoError(t, c.Probe(context.Background()))
	require.Eventually(t, c.ConsumerRunning, time.Second, time.Millisecond)

	require.NoError(t, c.CheckEngine(context.Background()))
	assert.Equal(t, StateActive, c.State())
	assert.Zero(t, rs.count())

	store.Publish(state.Delta{Fields: state.FieldEngineSpeed, Values: state.VehicleState{EngineSpeedRPM: 0}})
	require.NoError(t, c.CheckEngine(context.Background()))

	assert.Equal(t, StateLiteSleepProbing, c.State())
	assert.False(t, c.ConsumerRunning())
	assert.Equal(t, int32(1), cons.blanks.Load())
	assert.Equal(t, testOpts.SleepMHz, frequency(t, gov))
	assert.Equal(t, 1, rs.count())
}

func TestCheckEngine_InactiveIsNoop(t *testing.T) {
	c, _, rs, _ := newController(&scriptedSampler{}, state.NewStore(), testOpts)
	require.NoError(t, c.CheckEngine(context.Background()))
	assert.Zero(t, rs.count())
}

func TestCheckEngine_TeardownTimeoutBounded(t *testing.T) {
	store := state.NewStore()
	opts := testOpts
	opts.TeardownTimeout = 20 * time.Millisecond
	c, _, rs, cons := newController(&scriptedSampler{results: []bool{true}}, store, opts)
	cons.ignoreCancel = true
	cons.release = make(chan struct{})
	defer close(cons.release)

	require.NoError(t, c.Probe(context.Background()))

	start := time.Now()
	require.NoError(t, c.CheckEngine(context.Background()))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StateLiteSleepProbing, c.State())
	assert.Equal(t, 1, rs.count())
}

func TestCheckEngine_RestartErrorReturned(t *testing.T) {
	c, _, rs, _ := newController(&scriptedSampler{results: []bool{true}}, state.NewStore(), testOpts)
	rs.err = errors.New("permission denied")

	require.NoError(t, c.Probe(context.Background()))
	assert.EqualError(t, c.CheckEngine(context.Background()), "permission denied")
}

func TestDisabled_StartsConsumerWithoutThrottling(t *testing.T) {
	opts := testOpts
	opts.Disabled = true
	s := &scriptedSampler{}
	c, gov, rs, cons := newController(s, state.NewStore(), opts)

	require.NoError(t, c.Probe(context.Background()))
	defer c.Stop()
	require.Eventually(t, func() bool { return cons.runs.Load() == 1 }, time.Second, time.Millisecond)

	assert.Equal(t, StateActive, c.State())
	assert.Zero(t, s.calls)
	assert.Zero(t, frequency(t, gov))

	require.NoError(t, c.CheckEngine(context.Background()))
	assert.Zero(t, rs.count())
	assert.Equal(t, StateActive, c.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "LiteSleepProbing", StateLiteSleepProbing.String())
	assert.Equal(t, "Active", StateActive.String())
	assert.Equal(t, "Unknown", State(7).String())
}
