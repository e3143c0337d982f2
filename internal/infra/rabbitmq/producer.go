package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"vehicle-hud/internal/config"
	"vehicle-hud/internal/infra/mq"
)

const reconnectDelay = 5 * time.Second

var (
	ErrClosed       = errors.New("rabbitmq producer is closed")
	ErrNotConnected = errors.New("rabbitmq not connected")
)

type RabbitMQProducer struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	cfg        config.RabbitMQConfig
	logger     *zap.Logger
	mu         sync.Mutex
	isClosed   bool
	reconnectC chan struct{}
	done       chan struct{}
}

var _ mq.Producer = (*RabbitMQProducer)(nil)

// NewRabbitMQProducer returns immediately and connects in the background.
// The device often boots before the network is up, so Produce fails with
// ErrNotConnected until the connection is established.
func NewRabbitMQProducer(cfg config.RabbitMQConfig, logger *zap.Logger) (*RabbitMQProducer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("rabbitmq: url is required")
	}
	p := &RabbitMQProducer{
		cfg:        cfg,
		logger:     logger,
		reconnectC: make(chan struct{}, 1),
		done:       make(chan struct{}),
	}

	go func() {
		p.logger.Info("Attempting initial RabbitMQ connection", zap.String("url", maskURL(cfg.URL)))
		if err := p.connect(); err != nil {
			p.logger.Warn("Initial RabbitMQ connection failed (will retry)", zap.Error(err))
			p.signalReconnect()
		}
	}()
	go p.handleReconnect()

	return p, nil
}

// connectionURL applies the configured virtual host to the broker URL.
func connectionURL(rawURL, vhost string) string {
	if vhost == "" {
		return rawURL
	}
	// "/dev" must be sent as "%2fdev".
	if strings.HasPrefix(vhost, "/") {
		vhost = "%2f" + vhost[1:]
	}
	scheme, rest, ok := strings.Cut(rawURL, "://")
	if !ok {
		return strings.TrimSuffix(rawURL, "/") + "/" + vhost
	}
	host, _, _ := strings.Cut(rest, "/")
	return scheme + "://" + host + "/" + vhost
}

func maskURL(rawURL string) string {
	u, err := amqp.ParseURI(rawURL)
	if err != nil {
		return rawURL
	}
	if u.Password != "" {
		u.Password = "******"
	}
	return u.String()
}

func (p *RabbitMQProducer) connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isClosed {
		return ErrClosed
	}

	connURL := connectionURL(p.cfg.URL, p.cfg.VirtualHost)
	p.logger.Debug("Connecting to RabbitMQ", zap.String("url", maskURL(connURL)))
	conn, err := amqp.Dial(connURL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open a channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		p.cfg.Exchange, // name
		"topic",        // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	if p.cfg.QueueName != "" {
		_, err = ch.QueueDeclare(
			p.cfg.QueueName, // name
			true,            // durable
			false,           // delete when unused
			false,           // exclusive
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			ch.Close()
			conn.Close()
			return fmt.Errorf("failed to declare queue: %w", err)
		}

		p.logger.Debug("Binding RabbitMQ queue to exchange",
			zap.String("queue", p.cfg.QueueName),
			zap.String("exchange", p.cfg.Exchange),
			zap.String("routing_key", p.cfg.RoutingKey))
		if err := ch.QueueBind(p.cfg.QueueName, p.cfg.RoutingKey, p.cfg.Exchange, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return fmt.Errorf("failed to bind queue: %w", err)
		}
	}

	p.conn = conn
	p.ch = ch

	go func() {
		<-conn.NotifyClose(make(chan *amqp.Error, 1))
		p.signalReconnect()
	}()

	p.logger.Info("Connected to RabbitMQ", zap.String("exchange", p.cfg.Exchange))
	return nil
}

func (p *RabbitMQProducer) signalReconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isClosed {
		return
	}
	select {
	case p.reconnectC <- struct{}{}:
	default:
	}
}

func (p *RabbitMQProducer) handleReconnect() {
	for {
		select {
		case <-p.done:
			return
		case <-p.reconnectC:
		}

		p.logger.Warn("RabbitMQ connection lost, reconnecting")
		for {
			err := p.connect()
			if err == nil {
				break
			}
			if errors.Is(err, ErrClosed) {
				return
			}
			p.logger.Error("Failed to reconnect to RabbitMQ", zap.Error(err))
			select {
			case <-p.done:
				return
			case <-time.After(reconnectDelay):
			}
		}
	}
}

// Produce publishes data as JSON to the exchange. key overrides the
// configured routing key.
func (p *RabbitMQProducer) Produce(ctx context.Context, topic string, key string, data interface{}) error {
	p.mu.Lock()
	if p.isClosed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.ch == nil || p.ch.IsClosed() {
		p.mu.Unlock()
		p.signalReconnect()
		return ErrNotConnected
	}
	ch := p.ch
	p.mu.Unlock()

	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal telemetry: %w", err)
	}

	routingKey := p.cfg.RoutingKey
	if key != "" {
		routingKey = p.cfg.RoutingKey + "." + key
	}

	err = ch.PublishWithContext(ctx,
		p.cfg.Exchange, // exchange
		routingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Type:        topic,
			Body:        body,
			Timestamp:   time.Now(),
		})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	p.logger.Debug("Published telemetry to RabbitMQ", zap.String("exchange", p.cfg.Exchange), zap.String("routing_key", routingKey))
	return nil
}

func (p *RabbitMQProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isClosed {
		return
	}
	p.isClosed = true
	close(p.done)
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
