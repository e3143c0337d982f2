package signals

import (
	"fmt"

	"go.uber.org/zap"

	"vehicle-hud/internal/can"
	"vehicle-hud/internal/state"
)

// FrameLength is the only data length inspected.
const FrameLength = 8

// Decoder matches frames against a descriptor table and remembers the last
// value decoded for every signal. It is owned by a single goroutine.
type Decoder struct {
	table  []Descriptor
	index  map[uint32]int
	last   state.VehicleState
	logger *zap.Logger

	decoded   uint64
	discarded uint64
}

// NewDecoder builds the identifier index for table. Duplicate identifiers and
// rows without a Decode function are rejected.
func NewDecoder(table []Descriptor, logger *zap.Logger) (*Decoder, error) {
	d := &Decoder{
		table:  make([]Descriptor, len(table)),
		index:  make(map[uint32]int, len(table)),
		logger: logger,
	}
	copy(d.table, table)

	for i, desc := range d.table {
		if desc.Decode == nil {
			return nil, fmt.Errorf("signal %s has no decode function", desc.Name)
		}
		if prev, ok := d.index[desc.ID]; ok {
			return nil, fmt.Errorf("signals %s and %s share identifier %#x", d.table[prev].Name, desc.Name, desc.ID)
		}
		d.index[desc.ID] = i
	}
	return d, nil
}

// Decode returns the state update carried by f. ok is false for frames that
// are not 8 bytes long, remote frames, and unknown identifiers.
func (d *Decoder) Decode(f can.Frame) (delta state.Delta, ok bool) {
	if f.Len != FrameLength || f.Remote {
		d.discarded++
		return state.Delta{}, false
	}
	i, found := d.index[f.ID]
	if !found {
		d.discarded++
		return state.Delta{}, false
	}

	desc := d.table[i]
	delta = desc.Decode(f.Data)
	d.last = state.Delta{Fields: state.FieldAll, Values: d.last}.Merge(delta).Values
	d.decoded++

	if diagnostics && desc.Describe != nil {
		d.logger.Debug(desc.Describe(d.last), zap.Stringer("signal", desc.Signal), zap.Stringer("frame", f))
	}
	return delta, true
}

// Lookup returns the table row for a bus identifier.
func (d *Decoder) Lookup(id uint32) (Descriptor, bool) {
	i, ok := d.index[id]
	if !ok {
		return Descriptor{}, false
	}
	return d.table[i], true
}

// Last returns the most recent value of every signal; untouched signals are zero.
func (d *Decoder) Last() state.VehicleState {
	return d.last
}

// Counts returns how many frames were decoded and discarded.
func (d *Decoder) Counts() (decoded, discarded uint64) {
	return d.decoded, d.discarded
}

// Reset clears the remembered values.
func (d *Decoder) Reset() {
	d.last = state.VehicleState{}
}
