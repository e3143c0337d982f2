package usecase

import (
	"encoding/json"
	"time"
)

const (
	PayloadVehicleState = "vehicle_state"
	PayloadEngineOff    = "engine_off"
)

// TelemetryPayload wraps a message for the queue with its type and origin.
type TelemetryPayload struct {
	Type      string      `json:"type"`
	Device    string      `json:"device"`
	Timestamp time.Time   `json:"ts"`
	Data      interface{} `json:"data"`
}

// MarshalJSON also copies type and device into Data when Data encodes to a
// JSON object, so consumers that only look at data still see them.
func (p TelemetryPayload) MarshalJSON() ([]byte, error) {
	dataBytes, err := json.Marshal(p.Data)
	if err != nil {
		return nil, err
	}

	type alias TelemetryPayload
	var dataMap map[string]interface{}
	if err := json.Unmarshal(dataBytes, &dataMap); err != nil || dataMap == nil {
		return json.Marshal(alias(p))
	}
	dataMap["msgType"] = p.Type
	dataMap["device"] = p.Device

	return json.Marshal(&struct {
		Type      string                 `json:"type"`
		Device    string                 `json:"device"`
		Timestamp time.Time              `json:"ts"`
		Data      map[string]interface{} `json:"data"`
	}{
		Type:      p.Type,
		Device:    p.Device,
		Timestamp: p.Timestamp,
		Data:      dataMap,
	})
}
