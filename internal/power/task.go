package power

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Consumer is the long-running work that only exists while the engine runs:
// the dashboard renderer, telemetry reporter, or a group of them.
type Consumer interface {
	// Run blocks until ctx is cancelled.
	Run(ctx context.Context) error
	// Blank puts any visible output into its off state.
	Blank() error
}

// task is the handle of one started consumer.
type task struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func startTask(parent context.Context, c Consumer, logger *zap.Logger) *task {
	ctx, cancel := context.WithCancel(parent)
	t := &task{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		t.err = c.Run(ctx)
		if t.err != nil && ctx.Err() == nil {
			logger.Error("Consumer exited unexpectedly", zap.Error(t.err))
		}
	}()
	return t
}

func (t *task) running() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// wait reports whether the task ended within timeout.
func (t *task) wait(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.done:
		return true
	case <-timer.C:
		return false
	}
}
