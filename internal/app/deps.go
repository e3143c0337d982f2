package app

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"vehicle-hud/internal/can"
	"vehicle-hud/internal/config"
	"vehicle-hud/internal/display"
	"vehicle-hud/internal/infra/kafka"
	"vehicle-hud/internal/infra/mq"
	"vehicle-hud/internal/infra/rabbitmq"
	"vehicle-hud/internal/power"
)

// Deps are the parts of the App that touch hardware or the network.
type Deps struct {
	Source    can.Source
	Governor  power.Governor
	Restarter power.Restarter
	Panel     display.Panel
	Producer  mq.Producer
}

// OpenDeps opens the devices and connections cfg selects.
func OpenDeps(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Deps, error) {
	restarter, err := power.NewRestarter(cfg.Power.RestartMode, logger.Named("power"))
	if err != nil {
		return Deps{}, err
	}

	producer, err := NewProducer(cfg.MessageQueue, logger.Named("mq"))
	if err != nil {
		return Deps{}, err
	}

	src, err := can.Open(ctx, cfg.Bus, logger.Named("can"))
	if err != nil {
		producer.Close()
		return Deps{}, fmt.Errorf("open bus %s: %w", cfg.Bus.Type, err)
	}

	return Deps{
		Source:    src,
		Governor:  NewGovernor(cfg.Power, logger.Named("power")),
		Restarter: restarter,
		Panel:     display.NewTerminalPanel(os.Stdout, cfg.Display.Mirror),
		Producer:  producer,
	}, nil
}

// NewProducer returns the telemetry producer for cfg, or a no-op producer
// when the message queue is disabled.
func NewProducer(cfg config.MessageQueueConfig, logger *zap.Logger) (mq.Producer, error) {
	if !cfg.Enabled {
		return mq.NewNoOpProducer(), nil
	}
	var (
		p   mq.Producer
		err error
	)
	switch cfg.Type {
	case "kafka":
		p, err = kafka.NewKafkaProducer(cfg.Kafka, logger)
	case "rabbitmq":
		p, err = rabbitmq.NewRabbitMQProducer(cfg.RabbitMQ, logger)
	default:
		err = fmt.Errorf("unsupported message_queue.type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func NewGovernor(cfg config.PowerConfig, logger *zap.Logger) power.Governor {
	if cfg.Governor == "sysfs" && !cfg.Disabled {
		return power.NewSysfsGovernor(afero.NewOsFs(), cfg.CPUFreqPath, logger)
	}
	return &power.StaticGovernor{}
}
