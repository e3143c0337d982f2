package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"vehicle-hud/internal/config"
	"vehicle-hud/internal/infra/mq"
)

type KafkaProducer struct {
	writer *kafka.Writer
	logger *zap.Logger
	topic  string
}

var _ mq.Producer = (*KafkaProducer)(nil)

// NewKafkaProducer builds a synchronous writer: Produce returns once the
// broker acknowledged the message, so nothing is left buffered when the
// process re-executes itself. Messages are partitioned by key hash so each
// device's telemetry stays in order.
func NewKafkaProducer(cfg config.KafkaConfig, logger *zap.Logger) (*KafkaProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		WriteTimeout:           10 * time.Second,
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}

	logger.Info("Initialized Kafka producer", zap.Strings("brokers", cfg.Brokers), zap.String("topic", cfg.Topic))

	return &KafkaProducer{
		writer: w,
		logger: logger,
		topic:  cfg.Topic,
	}, nil
}

// Produce writes data as JSON. An empty topic falls back to the configured one.
func (p *KafkaProducer) Produce(ctx context.Context, topic string, key string, data interface{}) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal telemetry: %w", err)
	}

	targetTopic := p.topic
	if topic != "" {
		targetTopic = topic
	}
	if targetTopic == "" {
		return fmt.Errorf("kafka: no topic for message")
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: targetTopic,
		Key:   []byte(key),
		Value: body,
		Time:  time.Now(),
	})
	if err != nil {
		p.logger.Error("Failed to produce telemetry to Kafka", zap.Error(err), zap.String("topic", targetTopic))
		return err
	}

	p.logger.Debug("Produced telemetry to Kafka", zap.String("topic", targetTopic), zap.String("key", key))
	return nil
}

func (p *KafkaProducer) Close() {
	if err := p.writer.Close(); err != nil {
		p.logger.Error("Failed to close Kafka writer", zap.Error(err))
	}
}
