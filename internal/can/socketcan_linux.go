//go:build linux

package can

import (
	"fmt"

	brcan "github.com/brutella/can"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// SocketCANSource reads a kernel CAN interface. The socket is only ever read;
// listen-only mode itself is configured on the interface (ip link ... listen-only on).
type SocketCANSource struct {
	*Queue

	bus    *brcan.Bus
	logger *zap.Logger
}

// OpenSocketCAN binds to iface and starts delivering frames.
func OpenSocketCAN(iface string, logger *zap.Logger) (*SocketCANSource, error) {
	bus, err := brcan.NewBusForInterfaceWithName(iface)
	if err != nil {
		return nil, fmt.Errorf("failed to open CAN interface %s: %w", iface, err)
	}

	s := &SocketCANSource{
		Queue:  NewQueue(defaultQueueSize),
		bus:    bus,
		logger: logger,
	}
	bus.SubscribeFunc(func(frm brcan.Frame) {
		s.Push(fromKernelFrame(frm))
	})

	go func() {
		err := bus.ConnectAndPublish()
		logger.Info("SocketCAN bus stopped", zap.String("interface", iface), zap.Error(err))
		s.Fail(fmt.Errorf("%w: %v", ErrClosed, err))
	}()

	logger.Info("SocketCAN interface opened", zap.String("interface", iface))
	return s, nil
}

// fromKernelFrame strips the EFF/RTR flag bits the kernel keeps in can_id.
func fromKernelFrame(frm brcan.Frame) Frame {
	f := Frame{
		Extended: frm.ID&unix.CAN_EFF_FLAG != 0,
		Remote:   frm.ID&unix.CAN_RTR_FLAG != 0,
		Len:      frm.Length,
	}
	if f.Extended {
		f.ID = frm.ID & unix.CAN_EFF_MASK
	} else {
		f.ID = frm.ID & unix.CAN_SFF_MASK
	}
	if f.Len > MaxDataLength {
		f.Len = MaxDataLength
	}
	copy(f.Data[:], frm.Data[:])
	return f
}

func (s *SocketCANSource) Close() error {
	s.Queue.Close()
	return s.bus.Disconnect()
}
