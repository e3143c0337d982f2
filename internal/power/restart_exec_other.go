//go:build !unix

package power

import (
	"errors"

	"go.uber.org/zap"
)

type ExecRestarter struct {
	logger *zap.Logger
}

func (r *ExecRestarter) Restart(reason string) error {
	return errors.New("exec restart needs a unix platform; use restart_mode exit")
}
