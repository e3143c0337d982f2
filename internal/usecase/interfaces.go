package usecase

import (
	"context"

	"vehicle-hud/internal/state"
)

// DataProducer sends one message to a topic. mq.Producer implementations
// satisfy it.
type DataProducer interface {
	Produce(ctx context.Context, topic string, key string, data interface{}) error
}

// Dispatcher accepts messages without blocking the caller. Flush waits for
// everything accepted so far to reach the producer.
type Dispatcher interface {
	Dispatch(key string, data interface{}) bool
	Flush(ctx context.Context) error
}

// Snapshotter exposes the latest vehicle state; *state.Store implements it.
type Snapshotter interface {
	Snapshot() state.VehicleState
}
