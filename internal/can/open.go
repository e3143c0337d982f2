package can

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"vehicle-hud/internal/config"
)

// Open returns the source selected by cfg.Type.
func Open(ctx context.Context, cfg config.BusConfig, logger *zap.Logger) (Source, error) {
	var (
		src Source
		err error
	)
	switch cfg.Type {
	case "slcan":
		src, err = OpenSerial(cfg.Port, cfg.BaudRate, cfg.Bitrate, logger)
	case "slcan-ws":
		src, err = OpenWebSocket(ctx, cfg.URL, cfg.Username, cfg.Password, cfg.Bitrate, logger)
	case "socketcan":
		src, err = OpenSocketCAN(cfg.Interface, logger)
	case "bench":
		logger.Info("Reading bench commands from stdin")
		src = NewBenchSource(os.Stdin, logger)
	default:
		err = fmt.Errorf("unsupported bus type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return src, nil
}
