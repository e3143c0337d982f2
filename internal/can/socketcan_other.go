//go:build !linux

package can

import (
	"errors"

	"go.uber.org/zap"
)

// SocketCANSource is only available on Linux.
type SocketCANSource struct {
	*Queue
}

func OpenSocketCAN(iface string, logger *zap.Logger) (*SocketCANSource, error) {
	return nil, errors.New("socketcan is only supported on linux")
}
