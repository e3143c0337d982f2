package power

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

// Restarter brings the device back up from a clean state. On success the
// calling process normally does not continue.
type Restarter interface {
	Restart(reason string) error
}

// NewRestarter returns the restarter for mode: exec, reboot or exit.
func NewRestarter(mode string, logger *zap.Logger) (Restarter, error) {
	switch mode {
	case "exec":
		return &ExecRestarter{logger: logger}, nil
	case "reboot":
		return &RebootRestarter{logger: logger}, nil
	case "exit":
		return &ExitRestarter{Code: 3, logger: logger, exit: os.Exit}, nil
	default:
		return nil, fmt.Errorf("unsupported restart mode %q", mode)
	}
}

// ExitRestarter exits with Code and leaves the restart to the service
// supervisor (systemd Restart=on-failure or similar).
type ExitRestarter struct {
	Code   int
	logger *zap.Logger
	exit   func(int)
}

func (r *ExitRestarter) Restart(reason string) error {
	r.logger.Info("Exiting for supervisor restart", zap.String("reason", reason), zap.Int("code", r.Code))
	_ = r.logger.Sync()
	r.exit(r.Code)
	return nil
}
