package can

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Broadcast identifiers synthesized by the bench source. They mirror the
// frames the signal decoder understands.
const (
	benchGearID        = 0x230
	benchEngineSpeedID = 0x204
	benchGearboxModeID = 0x171
)

// BenchSource turns typed commands into bus frames so the pipeline can run
// without a vehicle. Accepted lines:
//
//	rpm 3000      engine speed
//	gear 3|R|N    engaged gear
//	mode P|R|N|D|S|0x61
//	7             shorthand for rpm 7000
type BenchSource struct {
	*Queue

	in     io.ReadCloser
	logger *zap.Logger
}

// NewBenchSource starts reading commands from in.
func NewBenchSource(in io.ReadCloser, logger *zap.Logger) *BenchSource {
	s := &BenchSource{
		Queue:  NewQueue(64),
		in:     in,
		logger: logger,
	}
	go s.readLoop()
	return s
}

func (s *BenchSource) readLoop() {
	scanner := bufio.NewScanner(s.in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		f, err := ParseBenchCommand(line)
		if err != nil {
			s.logger.Warn("Ignoring bench command", zap.String("line", line), zap.Error(err))
			continue
		}
		s.logger.Debug("Bench frame", zap.Stringer("frame", f))
		s.Push(f)
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	s.Fail(fmt.Errorf("%w: %v", ErrClosed, err))
}

func (s *BenchSource) Close() error {
	s.Queue.Close()
	return s.in.Close()
}

// ParseBenchCommand converts one bench command into the frame a vehicle would broadcast.
func ParseBenchCommand(line string) (Frame, error) {
	fields := strings.Fields(line)
	if len(fields) == 1 && len(fields[0]) == 1 && fields[0][0] >= '0' && fields[0][0] <= '9' {
		return EngineSpeedFrame(int(fields[0][0]-'0') * 1000)
	}
	if len(fields) != 2 {
		return Frame{}, fmt.Errorf("expected \"<signal> <value>\"")
	}

	arg := strings.ToUpper(fields[1])
	switch strings.ToLower(fields[0]) {
	case "rpm":
		rpm, err := strconv.Atoi(arg)
		if err != nil {
			return Frame{}, fmt.Errorf("invalid rpm: %w", err)
		}
		return EngineSpeedFrame(rpm)

	case "gear":
		switch arg {
		case "R":
			return NewFrame(benchGearID, 0, 2, 0, 0, 0, 0, 0, 0)
		case "N":
			return NewFrame(benchGearID, 0, 4, 0, 0, 0, 0, 0, 0)
		}
		gear, err := strconv.Atoi(arg)
		if err != nil || gear < 0 || gear > 15 {
			return Frame{}, fmt.Errorf("invalid gear %q", fields[1])
		}
		return NewFrame(benchGearID, byte(gear<<4), 0, 0, 0, 0, 0, 0, 0)

	case "mode":
		var raw byte
		switch arg {
		case "P":
			raw = 0x00
		case "R":
			raw = 0x20
		case "N":
			raw = 0x40
		case "D":
			raw = 0x60
		case "S":
			raw = 0x80
		default:
			v, err := strconv.ParseUint(strings.TrimPrefix(arg, "0X"), 16, 8)
			if err != nil {
				return Frame{}, fmt.Errorf("invalid mode %q", fields[1])
			}
			raw = byte(v)
		}
		return NewFrame(benchGearboxModeID, 0, raw, 0, 0, 0, 0, 0, 0)
	}

	return Frame{}, fmt.Errorf("unknown signal %q", fields[0])
}

// EngineSpeedFrame encodes rpm the way the ECM broadcasts it: rpm/2 big-endian in bytes 3..4.
func EngineSpeedFrame(rpm int) (Frame, error) {
	if rpm < 0 || rpm/2 > 0xFFFF {
		return Frame{}, fmt.Errorf("rpm %d out of range", rpm)
	}
	raw := uint16(rpm / 2)
	return NewFrame(benchEngineSpeedID, 0, 0, 0, byte(raw>>8), byte(raw), 0, 0, 0)
}
