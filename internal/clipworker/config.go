// Package clipworker ingests trigger events into idempotent state,
// periodically resolves each pending event against the camera's raw
// video objects, builds a clip by trimming (and, when no single
// object covers the window, concatenating) ffmpeg output, uploads it,
// and garbage-collects raw objects once they fall out of every
// pending event's retention window.
package clipworker

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds the clip worker's environment-resolved settings.
type Config struct {
	NATSServers   []string
	NATSCredsFile string
	NATSSubject   string

	VideoBucket string
	VideoTZ     *time.Location
	FFmpegBin   string
	VideoTmpDir string

	TriggerStream          string
	TriggerSubjectFilter   string
	TriggerConsumerDurable string
	TriggerStateBucket     string

	CompactionIntervalSec uint64
	PollIntervalSec       uint64
	ClipPreSec            float64
	ClipPostSec           float64
	ClipProcessLagSec     uint64
	ClipCameraIDs         []string
	ClipOutputPrefix      string
	RawRetentionSec       uint64
}

// ConfigFromEnv resolves a Config, mirroring the original worker's
// environment variable names and defaults.
func ConfigFromEnv() (Config, error) {
	var cfg Config

	serversRaw := os.Getenv("NATS_SERVERS")
	if serversRaw == "" {
		return Config{}, fmt.Errorf("clipworker: NATS_SERVERS must be set (comma-separated nats:// URLs)")
	}
	for _, part := range strings.Split(serversRaw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			cfg.NATSServers = append(cfg.NATSServers, part)
		}
	}
	if len(cfg.NATSServers) == 0 {
		return Config{}, fmt.Errorf("clipworker: NATS_SERVERS resolved to an empty list")
	}

	cfg.NATSCredsFile = envDefault("NATS_CREDS_FILE", "apt.creds")
	cfg.NATSSubject = envDefault("NATS_SUBJECT", "avenabox")
	cfg.VideoBucket = envDefault("VIDEO_BUCKET", "avena_videos")

	tzRaw := envDefault("VIDEO_TZ", "America/New_York")
	tz, err := time.LoadLocation(tzRaw)
	if err != nil {
		return Config{}, fmt.Errorf("clipworker: invalid VIDEO_TZ %q: %w", tzRaw, err)
	}
	cfg.VideoTZ = tz

	cfg.FFmpegBin = envDefault("FFMPEG_BIN", "ffmpeg")
	cfg.VideoTmpDir = envDefault("VIDEO_TMP_DIR", filepath.Join(os.TempDir(), "avena-video"))

	cfg.TriggerStream = envDefault("TRIGGER_STREAM", "labjack_triggers")
	cfg.TriggerSubjectFilter = envDefault("TRIGGER_SUBJECT_FILTER", fmt.Sprintf("%s.*.trigger.*", cfg.NATSSubject))
	cfg.TriggerConsumerDurable = envDefault("TRIGGER_CONSUMER_DURABLE", "clip_worker")
	cfg.TriggerStateBucket = envDefault("TRIGGER_STATE_BUCKET", "video_trigger_events")

	cfg.CompactionIntervalSec, err = envUint64("CLIP_COMPACTION_INTERVAL_SEC", 3600)
	if err != nil {
		return Config{}, err
	}
	cfg.PollIntervalSec, err = envUint64("CLIP_WORKER_POLL_INTERVAL_SEC", 2)
	if err != nil {
		return Config{}, err
	}
	cfg.ClipPreSec, err = envFloat64("CLIP_PRE_SEC", 5.0)
	if err != nil {
		return Config{}, err
	}
	cfg.ClipPostSec, err = envFloat64("CLIP_POST_SEC", 5.0)
	if err != nil {
		return Config{}, err
	}
	cfg.ClipProcessLagSec, err = envUint64("CLIP_PROCESS_LAG_SEC", 15)
	if err != nil {
		return Config{}, err
	}
	cfg.ClipCameraIDs = parseCSVEnv("CLIP_CAMERA_IDS")
	cfg.ClipOutputPrefix = envDefault("CLIP_OUTPUT_PREFIX", "clips")
	cfg.RawRetentionSec, err = envUint64("RAW_RETENTION_SEC", 172800)
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func envDefault(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func envUint64(name string, def uint64) (uint64, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("clipworker: invalid %s %q: %w", name, raw, err)
	}
	return v, nil
}

func envFloat64(name string, def float64) (float64, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("clipworker: invalid %s %q: %w", name, raw, err)
	}
	return v, nil
}

func parseCSVEnv(name string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
