// Package mq defines the telemetry producer contract shared by the Kafka and
// RabbitMQ backends.
package mq

import (
	"context"
)

// Producer delivers one telemetry message. key groups messages that must
// stay ordered, normally the device ID.
type Producer interface {
	Produce(ctx context.Context, topic string, key string, data interface{}) error
	Close()
}

// NoOpProducer is used when the message queue is disabled.
type NoOpProducer struct{}

func NewNoOpProducer() *NoOpProducer {
	return &NoOpProducer{}
}

func (p *NoOpProducer) Produce(ctx context.Context, topic string, key string, data interface{}) error {
	return nil
}

func (p *NoOpProducer) Close() {}
