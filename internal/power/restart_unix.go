//go:build unix

package power

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// ExecRestarter replaces the running process with a fresh copy of itself,
// keeping arguments and environment.
type ExecRestarter struct {
	logger *zap.Logger
}

func (r *ExecRestarter) Restart(reason string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	r.logger.Info("Re-executing into clean state", zap.String("reason", reason), zap.String("exe", exe))
	_ = r.logger.Sync()

	if err := unix.Exec(exe, os.Args, os.Environ()); err != nil {
		return fmt.Errorf("exec %s: %w", exe, err)
	}
	return nil
}
