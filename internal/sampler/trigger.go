package sampler

import (
	"github.com/oats-center/labjackd/internal/calibration"
	"github.com/oats-center/labjackd/internal/sampleconfig"
	"github.com/oats-center/labjackd/internal/wireframe"
)

// TriggerDetector holds per-channel level-crossing state across calls.
// A fresh detector must be created whenever the channel set changes
// (config reload) so stale state never leaks into post-reload
// evaluation.
type TriggerDetector struct {
	settings sampleconfig.TriggerSettings
	calID    string

	hasLast         bool
	lastCalibrated  float64
	nextEligibleMS  int64
}

// NewTriggerDetector creates a detector for one channel's settings.
func NewTriggerDetector(settings sampleconfig.TriggerSettings, calibrationID string) *TriggerDetector {
	return &TriggerDetector{settings: settings, calID: calibrationID}
}

// Evaluate inspects one sample and returns a fired TriggerEvent if a
// level crossing occurred outside the holdoff window. lastCalibrated
// is updated unconditionally after inspection, matching the
// unconditional-update rule: holdoff only gates firing, never state
// tracking.
func (d *TriggerDetector) Evaluate(asset uint32, channel uint8, sampleTimeMS int64, sampleTimeRFC3339 string, raw float64, cal calibration.Spec) (wireframe.TriggerEvent, bool) {
	calibrated := cal.Apply(raw)

	var event wireframe.TriggerEvent
	fired := false

	if d.settings.Enabled && d.hasLast && sampleTimeMS >= d.nextEligibleMS {
		prev := d.lastCalibrated
		threshold := d.settings.Threshold
		switch d.settings.TriggerType {
		case sampleconfig.Rising:
			fired = prev <= threshold && calibrated > threshold
		case sampleconfig.Falling:
			fired = prev >= threshold && calibrated < threshold
		}
		if fired {
			event = wireframe.TriggerEvent{
				Asset:             asset,
				Channel:           channel,
				TriggerTime:       sampleTimeRFC3339,
				TriggerTimeUnixMS: sampleTimeMS,
				RawValue:          raw,
				CalibratedValue:   calibrated,
				Threshold:         threshold,
				TriggerType:       d.settings.TriggerType,
				HoldoffMS:         d.settings.HoldoffMS,
				CalibrationID:     cal.IDOrDefault(),
			}
		}
	}

	d.lastCalibrated = calibrated
	d.hasLast = true
	return event, fired
}

// ConfirmFired advances the holdoff window. Call only after the
// caller has successfully published the event returned by Evaluate;
// on publish failure, do not call this so the holdoff does not
// advance and last-value state from Evaluate is retained as-is.
func (d *TriggerDetector) ConfirmFired(sampleTimeMS int64) {
	d.nextEligibleMS = sampleTimeMS + int64(d.settings.HoldoffMS)
}
