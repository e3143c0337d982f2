package state

import (
	"sync"
	"time"
)

// Field selects which VehicleState fields a Delta carries.
type Field uint8

const (
	FieldEngineSpeed Field = 1 << iota
	FieldEngagedGear
	FieldGearboxMode

	FieldAll = FieldEngineSpeed | FieldEngagedGear | FieldGearboxMode
)

// Delta is a partial update: only the fields named in Fields are copied from Values.
type Delta struct {
	Fields Field
	Values VehicleState
}

// Empty reports whether the delta would change nothing.
func (d Delta) Empty() bool {
	return d.Fields == 0
}

// Merge combines two deltas; fields set in o win.
func (d Delta) Merge(o Delta) Delta {
	out := d
	out.Fields |= o.Fields
	o.applyTo(&out.Values)
	return out
}

func (d Delta) applyTo(s *VehicleState) {
	if d.Fields&FieldEngineSpeed != 0 {
		s.EngineSpeedRPM = d.Values.EngineSpeedRPM
	}
	if d.Fields&FieldEngagedGear != 0 {
		s.EngagedGear = d.Values.EngagedGear
	}
	if d.Fields&FieldGearboxMode != 0 {
		s.GearboxMode = d.Values.GearboxMode
		s.GearboxModeRaw = d.Values.GearboxModeRaw
	}
}

// Store owns the one live VehicleState. Publish is called by the acquisition
// goroutine, Snapshot by consumers. Both hold the lock only for a fixed-size copy.
type Store struct {
	mu        sync.Mutex
	current   VehicleState
	version   uint64
	updatedAt time.Time
}

// NewStore returns a store holding the zero VehicleState.
func NewStore() *Store {
	return &Store{}
}

// Publish applies d atomically. Empty deltas are ignored.
func (s *Store) Publish(d Delta) {
	if d.Empty() {
		return
	}
	now := time.Now()

	s.mu.Lock()
	d.applyTo(&s.current)
	s.version++
	s.updatedAt = now
	s.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() VehicleState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Record is a snapshot together with the publish count and time that
// produced it.
type Record struct {
	State     VehicleState
	Version   uint64
	UpdatedAt time.Time
}

// Record returns the state, version and update time read under one lock.
func (s *Store) Record() Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Record{State: s.current, Version: s.version, UpdatedAt: s.updatedAt}
}

// Version is the number of non-empty publishes applied so far.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// UpdatedAt is the time of the last publish, zero before the first.
func (s *Store) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}
