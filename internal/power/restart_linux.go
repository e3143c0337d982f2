//go:build linux

package power

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// RebootRestarter reboots the whole machine. Requires CAP_SYS_BOOT.
type RebootRestarter struct {
	logger *zap.Logger
}

func (r *RebootRestarter) Restart(reason string) error {
	r.logger.Info("Rebooting device into clean state", zap.String("reason", reason))
	_ = r.logger.Sync()

	unix.Sync()
	if err := unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART); err != nil {
		return fmt.Errorf("reboot: %w", err)
	}
	return nil
}
