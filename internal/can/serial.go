package can

import (
	"fmt"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// serialReadTimeout bounds each port read so Close is noticed promptly.
const serialReadTimeout = 100 * time.Millisecond

// serialConn wraps a serial port. A read that times out with no data is
// retried rather than surfaced as EOF to the line scanner.
type serialConn struct {
	port serial.Port
}

func (s *serialConn) Read(p []byte) (int, error) {
	for {
		n, err := s.port.Read(p)
		if n > 0 || err != nil {
			return n, err
		}
	}
}

func (s *serialConn) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *serialConn) Close() error {
	return s.port.Close()
}

// OpenSerial opens an SLCAN adapter on portName and puts it into listen-only mode.
func OpenSerial(portName string, baudRate, bitrate int, logger *zap.Logger) (*StreamSource, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", portName, err)
	}

	src, err := NewStreamSource(&serialConn{port: port}, bitrate, logger)
	if err != nil {
		port.Close()
		return nil, err
	}

	logger.Info("SLCAN adapter opened",
		zap.String("port", portName),
		zap.Int("baud_rate", baudRate),
		zap.Int("bitrate", bitrate))
	return src, nil
}
