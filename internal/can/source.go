package can

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClosed is returned by Receive once the source has been closed.
var ErrClosed = errors.New("can: source closed")

// Source hands out received frames. Receive waits at most timeout for a frame;
// ok is false when none arrived, which is not an error.
type Source interface {
	Receive(ctx context.Context, timeout time.Duration) (f Frame, ok bool, err error)
	Close() error
}

// Queue is a bounded frame buffer that decouples a driver's read goroutine
// from Receive. When full, newly arriving frames are dropped.
type Queue struct {
	frames chan Frame
	done   chan struct{}

	closeOnce sync.Once
	errMu     sync.Mutex
	err       error

	dropped atomic.Uint64
}

// NewQueue returns a queue buffering up to size frames.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{
		frames: make(chan Frame, size),
		done:   make(chan struct{}),
	}
}

// Push enqueues f without blocking and reports whether it was accepted.
func (q *Queue) Push(f Frame) bool {
	select {
	case <-q.done:
		return false
	default:
	}
	select {
	case q.frames <- f:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Fail terminates the queue; buffered frames are still delivered, after which
// Receive returns err.
func (q *Queue) Fail(err error) {
	if err == nil {
		err = ErrClosed
	}
	q.closeOnce.Do(func() {
		q.errMu.Lock()
		q.err = err
		q.errMu.Unlock()
		close(q.done)
	})
}

func (q *Queue) failure() error {
	q.errMu.Lock()
	defer q.errMu.Unlock()
	return q.err
}

// Dropped is the number of frames discarded because the buffer was full.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

func (q *Queue) Receive(ctx context.Context, timeout time.Duration) (Frame, bool, error) {
	select {
	case f := <-q.frames:
		return f, true, nil
	default:
	}

	select {
	case <-q.done:
		return Frame{}, false, q.failure()
	default:
	}

	if timeout <= 0 {
		return Frame{}, false, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case f := <-q.frames:
		return f, true, nil
	case <-q.done:
		return Frame{}, false, q.failure()
	case <-ctx.Done():
		return Frame{}, false, ctx.Err()
	case <-timer.C:
		return Frame{}, false, nil
	}
}

func (q *Queue) Close() error {
	q.Fail(ErrClosed)
	return nil
}
