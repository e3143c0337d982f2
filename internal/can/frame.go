// Package can models classical CAN frames and the listen-only sources the
// acquisition loop reads them from.
package can

import (
	"errors"
	"fmt"
	"strings"
)

const (
	MaxStandardID = 0x7FF
	MaxExtendedID = 0x1FFFFFFF
	MaxDataLength = 8
)

var (
	ErrInvalidID  = errors.New("can: invalid identifier")
	ErrInvalidLen = errors.New("can: invalid data length")
)

// Frame is a classical CAN 2.0A/2.0B frame.
type Frame struct {
	ID       uint32 // 11-bit (standard) or 29-bit (extended)
	Extended bool
	Remote   bool
	Len      uint8
	Data     [MaxDataLength]byte
}

// NewFrame builds a data frame; identifiers above 0x7FF are marked extended.
func NewFrame(id uint32, data ...byte) (Frame, error) {
	var f Frame
	if len(data) > MaxDataLength {
		return f, ErrInvalidLen
	}
	f.ID = id
	f.Extended = id > MaxStandardID
	f.Len = uint8(len(data))
	copy(f.Data[:], data)
	return f, f.Validate()
}

// Validate checks identifier range and length.
func (f Frame) Validate() error {
	if f.Len > MaxDataLength {
		return ErrInvalidLen
	}
	if f.Extended {
		if f.ID > MaxExtendedID {
			return ErrInvalidID
		}
	} else if f.ID > MaxStandardID {
		return ErrInvalidID
	}
	return nil
}

// Payload returns the first Len data bytes.
func (f Frame) Payload() []byte {
	n := f.Len
	if n > MaxDataLength {
		n = MaxDataLength
	}
	return f.Data[:n]
}

func (f Frame) String() string {
	var b strings.Builder
	if f.Extended {
		fmt.Fprintf(&b, "%08X", f.ID)
	} else {
		fmt.Fprintf(&b, "%03X", f.ID)
	}
	fmt.Fprintf(&b, " [%d]", f.Len)
	if f.Remote {
		b.WriteString(" RTR")
		return b.String()
	}
	for _, d := range f.Payload() {
		fmt.Fprintf(&b, " %02X", d)
	}
	return b.String()
}
