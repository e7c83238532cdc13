// Package sampleconfig resolves the nested JSON config document stored
// in a NATS KV bucket into the flat runtime view the sampler and
// archiver operate against, and watches the bucket for changes.
package sampleconfig

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strconv"

	"github.com/oats-center/labjackd/internal/calibration"
)

// TriggerType identifies which edge a channel's trigger fires on.
type TriggerType string

const (
	Rising  TriggerType = "rising"
	Falling TriggerType = "falling"
)

// TriggerSettings configures threshold detection for one channel.
type TriggerSettings struct {
	Enabled     bool
	TriggerType TriggerType
	Threshold   float64
	HoldoffMS   uint64
}

// SampleConfig is the flat runtime projection of the nested document.
type SampleConfig struct {
	AssetNumber       uint32
	Channels          []uint8
	ScansPerRead      int32
	SuggestedScanRate float64
	NATSSubject       string
	NATSStream        string
	TriggerStream     string
	RotateSecs        uint64
	Calibrations      map[uint8]calibration.Spec
	TriggerSettings   map[uint8]TriggerSettings
}

// document mirrors the nested JSON shape stored under the KV key.
type document struct {
	AssetNumber   uint32 `json:"asset_number"`
	NATSSubject   string `json:"nats_subject"`
	NATSStream    string `json:"nats_stream"`
	TriggerStream string `json:"trigger_stream"`
	RotateSecs    uint64 `json:"rotate_secs"`
	SensorSettings struct {
		ScanRate        int32              `json:"scan_rate"`
		SamplingRate    float64            `json:"sampling_rate"`
		ChannelsEnabled []uint8            `json:"channels_enabled"`
		Calibrations    map[string]json.RawMessage `json:"calibrations"`
		TriggerSettings map[string]json.RawMessage `json:"trigger_settings"`
	} `json:"sensor_settings"`
}

type wireTriggerSettings struct {
	Enabled     bool        `json:"enabled"`
	TriggerType TriggerType `json:"trigger_type"`
	Threshold   float64     `json:"threshold"`
	HoldoffMS   uint64      `json:"holdoff_ms"`
}

// Project parses the raw KV document bytes and the default trigger
// stream name (supplied by the environment, not the document) into a
// SampleConfig. Channel keys in the calibration/trigger maps that fail
// to parse as a uint8, or whose values fail to decode, are logged and
// dropped rather than failing the whole projection.
func Project(raw []byte, defaultTriggerStream string, logger *log.Logger) (SampleConfig, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return SampleConfig{}, fmt.Errorf("sampleconfig: decode: %w", err)
	}

	channels := append([]uint8(nil), doc.SensorSettings.ChannelsEnabled...)
	sort.Slice(channels, func(i, j int) bool { return channels[i] < channels[j] })
	channels = dedupSorted(channels)

	triggerStream := doc.TriggerStream
	if triggerStream == "" {
		triggerStream = defaultTriggerStream
	}

	cfg := SampleConfig{
		AssetNumber:       doc.AssetNumber,
		Channels:          channels,
		ScansPerRead:      doc.SensorSettings.ScanRate,
		SuggestedScanRate: doc.SensorSettings.SamplingRate,
		NATSSubject:       doc.NATSSubject,
		NATSStream:        doc.NATSStream,
		TriggerStream:     triggerStream,
		RotateSecs:        doc.RotateSecs,
		Calibrations:      parseCalibrations(doc.SensorSettings.Calibrations, logger),
		TriggerSettings:   parseTriggerSettings(doc.SensorSettings.TriggerSettings, logger),
	}

	if cfg.ScansPerRead <= 0 {
		return SampleConfig{}, fmt.Errorf("sampleconfig: scans_per_read must be > 0, got %d", cfg.ScansPerRead)
	}
	if cfg.SuggestedScanRate <= 0 {
		return SampleConfig{}, fmt.Errorf("sampleconfig: sampling_rate must be > 0, got %f", cfg.SuggestedScanRate)
	}
	if cfg.RotateSecs == 0 {
		return SampleConfig{}, fmt.Errorf("sampleconfig: rotate_secs must be > 0")
	}

	return cfg, nil
}

func parseCalibrations(raw map[string]json.RawMessage, logger *log.Logger) map[uint8]calibration.Spec {
	out := make(map[uint8]calibration.Spec, len(raw))
	for key, value := range raw {
		ch, err := parseChannelKey(key)
		if err != nil {
			logf(logger, "sampleconfig: dropping calibration entry %q: %v", key, err)
			continue
		}
		var spec calibration.Spec
		if err := json.Unmarshal(value, &spec); err != nil {
			logf(logger, "sampleconfig: dropping calibration for channel %d: %v", ch, err)
			continue
		}
		out[ch] = spec
	}
	return out
}

func parseTriggerSettings(raw map[string]json.RawMessage, logger *log.Logger) map[uint8]TriggerSettings {
	out := make(map[uint8]TriggerSettings, len(raw))
	for key, value := range raw {
		ch, err := parseChannelKey(key)
		if err != nil {
			logf(logger, "sampleconfig: dropping trigger_settings entry %q: %v", key, err)
			continue
		}
		var w wireTriggerSettings
		if err := json.Unmarshal(value, &w); err != nil {
			logf(logger, "sampleconfig: dropping trigger_settings for channel %d: %v", ch, err)
			continue
		}
		out[ch] = TriggerSettings(w)
	}
	return out
}

func parseChannelKey(key string) (uint8, error) {
	n, err := strconv.ParseUint(key, 10, 8)
	if err != nil {
		return 0, err
	}
	return uint8(n), nil
}

func dedupSorted(sorted []uint8) []uint8 {
	if len(sorted) == 0 {
		return sorted
	}
	out := sorted[:1]
	for _, v := range sorted[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

func logf(logger *log.Logger, format string, args ...any) {
	if logger == nil {
		log.Printf(format, args...)
		return
	}
	logger.Printf(format, args...)
}

// Equal reports whether two SampleConfigs are structurally equal —
// used by the watcher to suppress reload churn from semantically
// identical documents (reordered JSON keys, re-put of the same value).
func Equal(a, b SampleConfig) bool {
	if a.AssetNumber != b.AssetNumber ||
		a.ScansPerRead != b.ScansPerRead ||
		a.SuggestedScanRate != b.SuggestedScanRate ||
		a.NATSSubject != b.NATSSubject ||
		a.NATSStream != b.NATSStream ||
		a.TriggerStream != b.TriggerStream ||
		a.RotateSecs != b.RotateSecs {
		return false
	}
	if len(a.Channels) != len(b.Channels) {
		return false
	}
	for i := range a.Channels {
		if a.Channels[i] != b.Channels[i] {
			return false
		}
	}
	if len(a.Calibrations) != len(b.Calibrations) {
		return false
	}
	for ch, specA := range a.Calibrations {
		specB, ok := b.Calibrations[ch]
		if !ok || !specsEqual(specA, specB) {
			return false
		}
	}
	if len(a.TriggerSettings) != len(b.TriggerSettings) {
		return false
	}
	for ch, tsA := range a.TriggerSettings {
		tsB, ok := b.TriggerSettings[ch]
		if !ok || tsA != tsB {
			return false
		}
	}
	return true
}

func specsEqual(a, b calibration.Spec) bool {
	if a.ID != b.ID || a.Kind != b.Kind || a.A != b.A || a.B != b.B {
		return false
	}
	if len(a.Coeffs) != len(b.Coeffs) {
		return false
	}
	for i := range a.Coeffs {
		if a.Coeffs[i] != b.Coeffs[i] {
			return false
		}
	}
	return true
}
