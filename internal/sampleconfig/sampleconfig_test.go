package sampleconfig

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleDoc = `{
	"asset_number": 7,
	"nats_subject": "labjack",
	"nats_stream": "labjack_samples",
	"trigger_stream": "labjack_triggers",
	"rotate_secs": 3600,
	"sensor_settings": {
		"scan_rate": 50,
		"sampling_rate": 1000,
		"channels_enabled": [4, 0, 4, 2],
		"calibrations": {
			"0": {"type": "identity"},
			"2": {"type": "linear", "a": 2.0, "b": -1.0},
			"bogus": {"type": "identity"}
		},
		"trigger_settings": {
			"4": {"enabled": true, "trigger_type": "rising", "threshold": 1.5, "holdoff_ms": 500}
		}
	}
}`

func TestProjectBasic(t *testing.T) {
	cfg, err := Project([]byte(sampleDoc), "default_triggers", nil)
	require.NoError(t, err)

	require.Equal(t, uint32(7), cfg.AssetNumber)
	require.Equal(t, []uint8{0, 2, 4}, cfg.Channels)
	require.Equal(t, int32(50), cfg.ScansPerRead)
	require.Equal(t, 1000.0, cfg.SuggestedScanRate)
	require.Equal(t, "labjack_triggers", cfg.TriggerStream)
	require.Len(t, cfg.Calibrations, 2)
	require.Contains(t, cfg.Calibrations, uint8(2))
	require.NotContains(t, cfg.Calibrations, uint8(99))

	ts, ok := cfg.TriggerSettings[4]
	require.True(t, ok)
	require.Equal(t, Rising, ts.TriggerType)
	require.Equal(t, 1.5, ts.Threshold)
}

func TestProjectDefaultsTriggerStream(t *testing.T) {
	doc := `{"asset_number":1,"nats_subject":"labjack","nats_stream":"s","rotate_secs":60,
		"sensor_settings":{"scan_rate":10,"sampling_rate":100,"channels_enabled":[0]}}`
	cfg, err := Project([]byte(doc), "default_triggers", nil)
	require.NoError(t, err)
	require.Equal(t, "default_triggers", cfg.TriggerStream)
}

func TestProjectRejectsInvalidScansPerRead(t *testing.T) {
	doc := `{"asset_number":1,"rotate_secs":60,"sensor_settings":{"scan_rate":0,"sampling_rate":100,"channels_enabled":[0]}}`
	_, err := Project([]byte(doc), "t", nil)
	require.Error(t, err)
}

// sampleDocReordered carries the same settings as sampleDoc with keys,
// map entries and enabled channels in a different order.
const sampleDocReordered = `{
	"sensor_settings": {
		"trigger_settings": {
			"4": {"holdoff_ms": 500, "threshold": 1.5, "trigger_type": "rising", "enabled": true}
		},
		"calibrations": {
			"2": {"b": -1.0, "a": 2.0, "type": "linear"},
			"0": {"type": "identity"}
		},
		"channels_enabled": [2, 4, 0],
		"sampling_rate": 1000,
		"scan_rate": 50
	},
	"rotate_secs": 3600,
	"trigger_stream": "labjack_triggers",
	"nats_stream": "labjack_samples",
	"nats_subject": "labjack",
	"asset_number": 7
}`

func TestEqualIgnoresOrdering(t *testing.T) {
	a, err := Project([]byte(sampleDoc), "t", nil)
	require.NoError(t, err)
	b, err := Project([]byte(sampleDocReordered), "t", nil)
	require.NoError(t, err)
	require.True(t, Equal(a, b))

	b.RotateSecs = 1
	require.False(t, Equal(a, b))
}
