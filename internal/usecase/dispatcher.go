package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type dispatchItem struct {
	key  string
	data interface{}
}

// DispatcherStats are cumulative counters.
type DispatcherStats struct {
	Sent    uint64
	Failed  uint64
	Dropped uint64
}

const (
	defaultDrainTimeout = 2 * time.Second
	flushPoll           = 5 * time.Millisecond
)

// DataDispatcher fans messages out to a pool of workers that hand them to
// the producer. Dispatch never blocks; messages are dropped when the buffer
// is full.
type DataDispatcher struct {
	queue        chan dispatchItem
	producer     DataProducer
	topic        string
	logger       *zap.Logger
	workerCount  int
	drainTimeout time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup

	// pending counts accepted messages not yet handed to the producer.
	pending atomic.Int64
	started atomic.Bool
	closed  atomic.Bool

	sent    atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// NewDataDispatcher creates a dispatcher publishing to topic.
func NewDataDispatcher(producer DataProducer, topic string, workerCount, bufferSize int, logger *zap.Logger) *DataDispatcher {
	if workerCount <= 0 {
		workerCount = 1
	}
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &DataDispatcher{
		queue:        make(chan dispatchItem, bufferSize),
		producer:     producer,
		topic:        topic,
		workerCount:  workerCount,
		drainTimeout: defaultDrainTimeout,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start launches the worker pool.
func (d *DataDispatcher) Start() {
	d.started.Store(true)
	for i := 0; i < d.workerCount; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	d.logger.Info("DataDispatcher started", zap.Int("workers", d.workerCount), zap.String("topic", d.topic))
}

// Stop refuses new messages, gives the workers up to the drain timeout to
// deliver what is buffered, then cancels them and waits. Whatever is still
// buffered after that is counted as dropped.
func (d *DataDispatcher) Stop() {
	if d.closed.Swap(true) {
		return
	}
	if d.started.Load() {
		ctx, cancel := context.WithTimeout(context.Background(), d.drainTimeout)
		if err := d.Flush(ctx); err != nil {
			d.logger.Warn("DataDispatcher stopped before draining", zap.Int64("pending", d.pending.Load()))
		}
		cancel()
	}
	d.cancel()
	d.wg.Wait()
	d.dropped.Add(uint64(d.pending.Swap(0)))
	d.logger.Info("DataDispatcher stopped", zap.Any("stats", d.Stats()))
}

// Flush blocks until every accepted message has been handed to the producer
// or ctx is done.
func (d *DataDispatcher) Flush(ctx context.Context) error {
	if d.pending.Load() == 0 {
		return nil
	}
	ticker := time.NewTicker(flushPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if d.pending.Load() == 0 {
				return nil
			}
		}
	}
}

// Dispatch queues data for delivery and reports whether it was accepted.
func (d *DataDispatcher) Dispatch(key string, data interface{}) bool {
	if d.closed.Load() {
		d.dropped.Add(1)
		return false
	}
	d.pending.Add(1)
	select {
	case d.queue <- dispatchItem{key: key, data: data}:
		return true
	default:
		d.pending.Add(-1)
		d.dropped.Add(1)
		d.logger.Warn("DataDispatcher channel full, dropping data", zap.String("key", key))
		return false
	}
}

func (d *DataDispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Sent:    d.sent.Load(),
		Failed:  d.failed.Load(),
		Dropped: d.dropped.Load(),
	}
}

func (d *DataDispatcher) worker(id int) {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case item := <-d.queue:
			d.process(id, item)
		}
	}
}

func (d *DataDispatcher) process(id int, item dispatchItem) {
	defer d.pending.Add(-1)
	if err := d.producer.Produce(d.ctx, d.topic, item.key, item.data); err != nil {
		d.failed.Add(1)
		d.logger.Error("DataDispatcher failed to send data", zap.Int("worker", id), zap.Error(err))
		return
	}
	d.sent.Add(1)
}
