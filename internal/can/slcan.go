package can

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// SLCAN (Lawicel) is the ASCII protocol spoken by serial CAN adapters:
// one command or frame per line, terminated by '\r'. Errors are a single BEL.
const (
	slcanTerminator = '\r'
	slcanBell       = '\a'

	// t iii l + 16 data digits + 4 timestamp digits for the longest extended frame.
	maxSLCANLine = 1 + 8 + 1 + 16 + 4
)

var (
	// ErrNotFrame marks a well-formed adapter response that carries no frame
	// (acks, version and status replies).
	ErrNotFrame = errors.New("slcan: not a frame")
	// ErrMalformed marks a frame line that cannot be parsed.
	ErrMalformed = errors.New("slcan: malformed frame")
	// ErrAdapter is an adapter error response (BEL).
	ErrAdapter = errors.New("slcan: adapter error")
)

// slcanBitrates maps CAN bitrates to the adapter's Sn setup command.
var slcanBitrates = map[int]byte{
	10000:   '0',
	20000:   '1',
	50000:   '2',
	100000:  '3',
	125000:  '4',
	250000:  '5',
	500000:  '6',
	800000:  '7',
	1000000: '8',
}

// ListenOnlyCommands is the open sequence for a listen-only session: close any
// open channel, set the bitrate, then open in listen-only mode.
func ListenOnlyCommands(bitrate int) ([]string, error) {
	code, ok := slcanBitrates[bitrate]
	if !ok {
		return nil, fmt.Errorf("slcan: unsupported bitrate %d", bitrate)
	}
	return []string{"C\r", "S" + string(code) + "\r", "L\r"}, nil
}

// SplitLines is a bufio.SplitFunc yielding one SLCAN line per token without
// its terminator. A BEL is returned as its own one-byte token.
func SplitLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	idx := bytes.IndexAny(data, "\r\n\a")
	if idx == -1 {
		if len(data) > maxSLCANLine*2 {
			// Garbage without any terminator; drop it so the buffer cannot grow forever.
			return len(data), nil, nil
		}
		if atEOF {
			return len(data), data, nil
		}
		return 0, nil, nil
	}

	if data[idx] == slcanBell {
		if idx > 0 {
			return idx, data[:idx], nil
		}
		return 1, data[:1], nil
	}

	if idx == 0 {
		// Empty line or the "\r" ack of a setup command.
		return 1, nil, nil
	}
	return idx + 1, data[:idx], nil
}

// ParseLine decodes one SLCAN line (without terminator) into a Frame.
func ParseLine(line []byte) (Frame, error) {
	var f Frame
	if len(line) == 0 {
		return f, ErrNotFrame
	}

	var idLen int
	switch line[0] {
	case 't':
		idLen = 3
	case 'T':
		idLen, f.Extended = 8, true
	case 'r':
		idLen, f.Remote = 3, true
	case 'R':
		idLen, f.Extended, f.Remote = 8, true, true
	case slcanBell:
		return f, ErrAdapter
	default:
		return f, ErrNotFrame
	}

	if len(line) < 1+idLen+1 {
		return f, fmt.Errorf("%w: short line %q", ErrMalformed, line)
	}

	id, err := strconv.ParseUint(string(line[1:1+idLen]), 16, 32)
	if err != nil {
		return f, fmt.Errorf("%w: identifier: %v", ErrMalformed, err)
	}
	f.ID = uint32(id)

	dlc := line[1+idLen]
	if dlc < '0' || dlc > '8' {
		return f, fmt.Errorf("%w: length %q", ErrMalformed, dlc)
	}
	f.Len = dlc - '0'

	rest := line[2+idLen:]
	if !f.Remote {
		need := int(f.Len) * 2
		if len(rest) < need {
			return f, fmt.Errorf("%w: want %d data digits, have %d", ErrMalformed, need, len(rest))
		}
		for i := 0; i < int(f.Len); i++ {
			b, err := strconv.ParseUint(string(rest[i*2:i*2+2]), 16, 8)
			if err != nil {
				return f, fmt.Errorf("%w: data byte %d: %v", ErrMalformed, i, err)
			}
			f.Data[i] = byte(b)
		}
		rest = rest[need:]
	}

	// Adapters with timestamps enabled append 4 hex digits.
	if len(rest) != 0 && len(rest) != 4 {
		return f, fmt.Errorf("%w: %d trailing characters", ErrMalformed, len(rest))
	}

	if err := f.Validate(); err != nil {
		return f, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return f, nil
}

// EncodeFrame renders f as an SLCAN line including the terminator.
func EncodeFrame(f Frame) string {
	var b strings.Builder
	switch {
	case f.Remote && f.Extended:
		b.WriteByte('R')
	case f.Remote:
		b.WriteByte('r')
	case f.Extended:
		b.WriteByte('T')
	default:
		b.WriteByte('t')
	}

	if f.Extended {
		fmt.Fprintf(&b, "%08X", f.ID&MaxExtendedID)
	} else {
		fmt.Fprintf(&b, "%03X", f.ID&MaxStandardID)
	}

	b.WriteByte('0' + f.Len&0x0F)

	if !f.Remote {
		for _, d := range f.Payload() {
			fmt.Fprintf(&b, "%02X", d)
		}
	}

	b.WriteByte(slcanTerminator)
	return b.String()
}
