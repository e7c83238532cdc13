package wireframe

import (
	"encoding/json"
	"fmt"

	"github.com/oats-center/labjackd/internal/sampleconfig"
)

// TriggerEvent is published as plain JSON (unlike ScanFrame) on a
// channel's trigger subject, and is the payload the clip worker's
// durable consumer decodes.
type TriggerEvent struct {
	Asset             uint32                     `json:"asset"`
	Channel           uint8                      `json:"channel"`
	TriggerTime       string                     `json:"trigger_time"`
	TriggerTimeUnixMS int64                      `json:"trigger_time_unix_ms"`
	RawValue          float64                    `json:"raw_value"`
	CalibratedValue   float64                    `json:"calibrated_value"`
	Threshold         float64                    `json:"threshold"`
	TriggerType       sampleconfig.TriggerType   `json:"trigger_type"`
	HoldoffMS         uint64                     `json:"holdoff_ms"`
	CalibrationID     string                     `json:"calibration_id"`
}

// ID returns the event's stable, injective identity key.
func (e TriggerEvent) ID() string {
	kind := "r"
	if e.TriggerType == sampleconfig.Falling {
		kind = "f"
	}
	return fmt.Sprintf("%d_%d_%d_%s", e.Asset, e.Channel, e.TriggerTimeUnixMS, kind)
}

// EncodeTriggerEvent marshals e as JSON.
func EncodeTriggerEvent(e TriggerEvent) ([]byte, error) {
	return json.Marshal(e)
}

// DecodeTriggerEvent unmarshals JSON into a TriggerEvent.
func DecodeTriggerEvent(data []byte) (TriggerEvent, error) {
	var e TriggerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return TriggerEvent{}, fmt.Errorf("wireframe: decode trigger event: %w", err)
	}
	return e, nil
}
