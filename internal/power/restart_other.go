//go:build !linux

package power

import (
	"errors"

	"go.uber.org/zap"
)

type RebootRestarter struct {
	logger *zap.Logger
}

func (r *RebootRestarter) Restart(reason string) error {
	return errors.New("reboot restart is only supported on linux")
}
