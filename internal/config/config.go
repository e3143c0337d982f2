package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Device       DeviceConfig       `mapstructure:"device"`
	Bus          BusConfig          `mapstructure:"bus"`
	Acquisition  AcquisitionConfig  `mapstructure:"acquisition"`
	Power        PowerConfig        `mapstructure:"power"`
	Display      DisplayConfig      `mapstructure:"display"`
	StateServer  StateServerConfig  `mapstructure:"state_server"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
	Log          LogConfig          `mapstructure:"log"`
	MessageQueue MessageQueueConfig `mapstructure:"message_queue"`
}

type DeviceConfig struct {
	ID string `mapstructure:"id"`
}

// BusConfig selects where CAN frames come from.
type BusConfig struct {
	Type      string `mapstructure:"type"` // slcan, slcan-ws, socketcan, bench
	Port      string `mapstructure:"port"`
	BaudRate  int    `mapstructure:"baud_rate"`
	Bitrate   int    `mapstructure:"bitrate"` // CAN bitrate in bit/s
	Interface string `mapstructure:"interface"`
	URL       string `mapstructure:"url"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
}

type AcquisitionConfig struct {
	ReceiveTimeout time.Duration `mapstructure:"receive_timeout"`
	Yield          time.Duration `mapstructure:"yield"`
}

type PowerConfig struct {
	Disabled        bool          `mapstructure:"disabled"`
	SampleWindow    time.Duration `mapstructure:"sample_window"`
	Backoff         time.Duration `mapstructure:"backoff"`
	CheckInterval   time.Duration `mapstructure:"check_interval"`
	TeardownTimeout time.Duration `mapstructure:"teardown_timeout"`
	ActiveMHz       int           `mapstructure:"active_mhz"`
	SleepMHz        int           `mapstructure:"sleep_mhz"`
	Governor        string        `mapstructure:"governor"` // sysfs, static
	CPUFreqPath     string        `mapstructure:"cpufreq_path"`
	RestartMode     string        `mapstructure:"restart_mode"` // exec, reboot, exit
}

type DisplayConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Refresh   time.Duration `mapstructure:"refresh"`
	InitRetry time.Duration `mapstructure:"init_retry"`
	Mirror    bool          `mapstructure:"mirror"`
}

type StateServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

type TelemetryConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Interval     time.Duration `mapstructure:"interval"`
	Heartbeat    time.Duration `mapstructure:"heartbeat"`
	FlushTimeout time.Duration `mapstructure:"flush_timeout"`
	Workers      int           `mapstructure:"workers"`
	Topic        string        `mapstructure:"topic"`
}

type MessageQueueConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Type     string         `mapstructure:"type"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
}

type RabbitMQConfig struct {
	URL         string `mapstructure:"url"`
	VirtualHost string `mapstructure:"virtual_host"`
	Exchange    string `mapstructure:"exchange"`
	RoutingKey  string `mapstructure:"routing_key"`
	QueueName   string `mapstructure:"queue_name"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("device.id", "hud-0")

	v.SetDefault("bus.type", "slcan")
	v.SetDefault("bus.port", "/dev/ttyACM0")
	v.SetDefault("bus.baud_rate", 115200)
	v.SetDefault("bus.bitrate", 500000)
	v.SetDefault("bus.interface", "can0")
	v.SetDefault("bus.url", "")
	v.SetDefault("bus.username", "")
	v.SetDefault("bus.password", "")

	// Bounds each wait for a frame; a timeout is not an error.
	v.SetDefault("acquisition.receive_timeout", 10*time.Millisecond)
	v.SetDefault("acquisition.yield", time.Millisecond)

	v.SetDefault("power.disabled", false)
	v.SetDefault("power.sample_window", time.Second)
	v.SetDefault("power.backoff", 3*time.Second)
	v.SetDefault("power.check_interval", time.Second)
	v.SetDefault("power.teardown_timeout", 2*time.Second)
	v.SetDefault("power.active_mhz", 240)
	v.SetDefault("power.sleep_mhz", 80)
	v.SetDefault("power.governor", "sysfs")
	v.SetDefault("power.cpufreq_path", "/sys/devices/system/cpu/cpufreq")
	v.SetDefault("power.restart_mode", "exec")

	v.SetDefault("display.enabled", true)
	v.SetDefault("display.refresh", 20*time.Millisecond)
	v.SetDefault("display.init_retry", 500*time.Millisecond)
	v.SetDefault("display.mirror", false)

	v.SetDefault("state_server.enabled", false)
	v.SetDefault("state_server.host", "127.0.0.1")
	v.SetDefault("state_server.port", 32961)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.interval", time.Second)
	v.SetDefault("telemetry.heartbeat", 30*time.Second)
	v.SetDefault("telemetry.flush_timeout", time.Second)
	v.SetDefault("telemetry.workers", 2)
	v.SetDefault("telemetry.topic", "vehicle_state")

	v.SetDefault("message_queue.enabled", false)
	v.SetDefault("message_queue.type", "kafka")
	v.SetDefault("message_queue.rabbitmq.url", "")
	v.SetDefault("message_queue.rabbitmq.virtual_host", "")
	v.SetDefault("message_queue.rabbitmq.exchange", "")
	v.SetDefault("message_queue.rabbitmq.routing_key", "")
	v.SetDefault("message_queue.rabbitmq.queue_name", "")
	v.SetDefault("message_queue.kafka.brokers", []string{})
	v.SetDefault("message_queue.kafka.topic", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.filename", "")
	v.SetDefault("log.max_size", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 7)
	v.SetDefault("log.compress", false)
}

// LoadConfig reads path (if non-empty) on top of the built-in defaults.
// Every key can be overridden with a HUD_ prefixed environment variable,
// e.g. HUD_POWER_DISABLED=true. AutomaticEnv only reaches keys viper already
// knows, so setDefaults must name every key in Config.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("hud")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the runtime cannot start with.
func (c *Config) Validate() error {
	switch c.Bus.Type {
	case "slcan":
		if c.Bus.Port == "" {
			return fmt.Errorf("bus.port is required for bus type %q", c.Bus.Type)
		}
	case "slcan-ws":
		if c.Bus.URL == "" {
			return fmt.Errorf("bus.url is required for bus type %q", c.Bus.Type)
		}
	case "socketcan":
		if c.Bus.Interface == "" {
			return fmt.Errorf("bus.interface is required for bus type %q", c.Bus.Type)
		}
	case "bench":
	default:
		return fmt.Errorf("unsupported bus type %q", c.Bus.Type)
	}

	if c.Acquisition.ReceiveTimeout <= 0 {
		return fmt.Errorf("acquisition.receive_timeout must be positive")
	}
	if c.Acquisition.Yield <= 0 {
		return fmt.Errorf("acquisition.yield must be positive")
	}

	if !c.Power.Disabled {
		if c.Power.SampleWindow <= 0 || c.Power.Backoff <= 0 || c.Power.CheckInterval <= 0 {
			return fmt.Errorf("power sample_window, backoff and check_interval must be positive")
		}
		if c.Power.SleepMHz <= 0 || c.Power.ActiveMHz < c.Power.SleepMHz {
			return fmt.Errorf("invalid power frequencies: active=%d sleep=%d", c.Power.ActiveMHz, c.Power.SleepMHz)
		}
	}
	switch c.Power.Governor {
	case "sysfs", "static":
	default:
		return fmt.Errorf("unsupported power.governor %q", c.Power.Governor)
	}
	switch c.Power.RestartMode {
	case "exec", "reboot", "exit":
	default:
		return fmt.Errorf("unsupported power.restart_mode %q", c.Power.RestartMode)
	}

	if c.Display.Refresh < time.Millisecond {
		return fmt.Errorf("display.refresh must be at least 1ms")
	}

	if c.MessageQueue.Enabled {
		switch c.MessageQueue.Type {
		case "kafka":
			if len(c.MessageQueue.Kafka.Brokers) == 0 {
				return fmt.Errorf("message_queue.kafka.brokers is required")
			}
		case "rabbitmq":
			if c.MessageQueue.RabbitMQ.URL == "" {
				return fmt.Errorf("message_queue.rabbitmq.url is required")
			}
		default:
			return fmt.Errorf("unsupported message_queue.type %q", c.MessageQueue.Type)
		}
	}

	return nil
}
