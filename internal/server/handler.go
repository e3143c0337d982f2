package server

import (
	"encoding/json"
	"strings"
	"time"

	"vehicle-hud/internal/state"
)

// Snapshotter exposes the latest vehicle state; *state.Store implements it.
type Snapshotter interface {
	Record() state.Record
}

// StateReply is the body of a STATE response.
type StateReply struct {
	Device    string             `json:"device"`
	Power     string             `json:"power"`
	Version   uint64             `json:"version"`
	UpdatedAt time.Time          `json:"updated_at"`
	State     state.VehicleState `json:"state"`
}

// StateHandler answers one request line. It holds no connection state and is
// safe for concurrent use.
type StateHandler struct {
	device    string
	snapshots Snapshotter
	power     func() string
}

// NewStateHandler reports power from powerState, which may be nil.
func NewStateHandler(device string, snapshots Snapshotter, powerState func() string) *StateHandler {
	if powerState == nil {
		powerState = func() string { return "" }
	}
	return &StateHandler{device: device, snapshots: snapshots, power: powerState}
}

// Handle returns the newline-terminated response for line.
func (h *StateHandler) Handle(line string) []byte {
	switch strings.ToUpper(strings.TrimSpace(line)) {
	case "PING":
		return []byte("PONG\n")
	case "STATE":
		rec := h.snapshots.Record()
		reply := StateReply{
			Device:    h.device,
			Power:     h.power(),
			Version:   rec.Version,
			UpdatedAt: rec.UpdatedAt,
			State:     rec.State,
		}
		body, err := json.Marshal(reply)
		if err != nil {
			return []byte("ERR " + err.Error() + "\n")
		}
		return append(body, '\n')
	default:
		return []byte("ERR unknown command\n")
	}
}
