package can

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"go.uber.org/zap"
)

const defaultQueueSize = 1024

// StreamSource decodes SLCAN lines from a byte stream (serial port or a
// WebSocket bridge) on a background goroutine.
type StreamSource struct {
	*Queue

	conn      io.ReadWriteCloser
	logger    *zap.Logger
	malformed atomic.Uint64
	adapter   atomic.Uint64
}

// NewStreamSource writes the listen-only open sequence for bitrate to conn and
// starts reading frames from it.
func NewStreamSource(conn io.ReadWriteCloser, bitrate int, logger *zap.Logger) (*StreamSource, error) {
	cmds, err := ListenOnlyCommands(bitrate)
	if err != nil {
		return nil, err
	}
	for _, cmd := range cmds {
		if _, err := io.WriteString(conn, cmd); err != nil {
			return nil, fmt.Errorf("slcan: send %q: %w", cmd[:1], err)
		}
	}

	s := &StreamSource{
		Queue:  NewQueue(defaultQueueSize),
		conn:   conn,
		logger: logger,
	}
	go s.readLoop()
	return s, nil
}

func (s *StreamSource) readLoop() {
	scanner := bufio.NewScanner(s.conn)
	scanner.Split(SplitLines)

	for scanner.Scan() {
		f, err := ParseLine(scanner.Bytes())
		switch {
		case err == nil:
			s.Push(f)
		case errors.Is(err, ErrNotFrame):
		case errors.Is(err, ErrAdapter):
			s.adapter.Add(1)
			s.logger.Debug("SLCAN adapter reported an error")
		default:
			s.malformed.Add(1)
			s.logger.Debug("Dropping malformed SLCAN line", zap.Error(err))
		}
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	s.logger.Info("SLCAN stream ended", zap.Error(err))
	s.Fail(fmt.Errorf("%w: %v", ErrClosed, err))
}

// Malformed is the number of unparsable frame lines seen.
func (s *StreamSource) Malformed() uint64 {
	return s.malformed.Load()
}

// AdapterErrors is the number of BEL responses seen.
func (s *StreamSource) AdapterErrors() uint64 {
	return s.adapter.Load()
}

// Close sends the SLCAN close command and releases the connection.
func (s *StreamSource) Close() error {
	_, _ = io.WriteString(s.conn, "C\r")
	s.Queue.Close()
	return s.conn.Close()
}
