// Package videorecorder segments a live camera source into local
// files with ffmpeg, uploads settled segments to a NATS object store
// under a canonical timestamped key, and deletes them locally once
// the upload succeeds.
package videorecorder

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds one camera's recorder settings, resolved from the
// environment the same way every other binary in this module does.
type Config struct {
	NATSServers   []string
	NATSCredsFile string

	VideoBucket  string
	AssetNumber  uint32
	CameraID     string
	TZ           *time.Location

	FFmpegBin  string
	FFprobeBin string

	SourceURL     string
	RTSPTransport string

	SegmentSec           uint64
	UploadSettleSec      uint64
	ScanIntervalSec      uint64
	ObjectChunkSizeBytes int
	SpoolDir             string
}

// ConfigFromEnv resolves a Config from the process environment,
// mirroring the environment variable names and defaults of the
// original recorder.
func ConfigFromEnv() (Config, error) {
	var cfg Config

	serversRaw := os.Getenv("NATS_SERVERS")
	if serversRaw == "" {
		return Config{}, fmt.Errorf("videorecorder: NATS_SERVERS must be set (comma-separated nats:// URLs)")
	}
	for _, part := range strings.Split(serversRaw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			cfg.NATSServers = append(cfg.NATSServers, part)
		}
	}
	if len(cfg.NATSServers) == 0 {
		return Config{}, fmt.Errorf("videorecorder: NATS_SERVERS resolved to an empty list")
	}

	cfg.NATSCredsFile = envDefault("NATS_CREDS_FILE", "apt.creds")
	cfg.VideoBucket = envDefault("VIDEO_BUCKET", "avena_videos")

	assetRaw := envDefault("VIDEO_ASSET_NUMBER", envDefault("ASSET_NUMBER", "1001"))
	asset, err := strconv.ParseUint(assetRaw, 10, 32)
	if err != nil {
		return Config{}, fmt.Errorf("videorecorder: invalid VIDEO_ASSET_NUMBER %q: %w", assetRaw, err)
	}
	cfg.AssetNumber = uint32(asset)

	cameraRaw := os.Getenv("VIDEO_CAMERA_ID")
	if cameraRaw == "" {
		cameraRaw = envDefault("INSTANCE", "default")
	}
	cfg.CameraID = sanitizeCameraID(cameraRaw)

	tzRaw := envDefault("VIDEO_TZ", "America/New_York")
	tz, err := time.LoadLocation(tzRaw)
	if err != nil {
		return Config{}, fmt.Errorf("videorecorder: invalid VIDEO_TZ %q: %w", tzRaw, err)
	}
	cfg.TZ = tz

	cfg.FFmpegBin = firstNonEmptyEnv("VIDEO_RECORDER_FFMPEG_BIN", "FFMPEG_BIN", "ffmpeg")
	cfg.FFprobeBin = firstNonEmptyEnv("VIDEO_RECORDER_FFPROBE_BIN", "FFPROBE_BIN", "ffprobe")

	cfg.SourceURL = os.Getenv("VIDEO_SOURCE_URL")
	if cfg.SourceURL == "" {
		return Config{}, fmt.Errorf("videorecorder: VIDEO_SOURCE_URL must be set")
	}
	cfg.RTSPTransport = envDefault("VIDEO_RTSP_TRANSPORT", "tcp")

	cfg.SegmentSec, err = envUint64("VIDEO_SEGMENT_SEC", 5)
	if err != nil {
		return Config{}, err
	}
	cfg.UploadSettleSec, err = envUint64("VIDEO_UPLOAD_SETTLE_SEC", 2)
	if err != nil {
		return Config{}, err
	}
	cfg.ScanIntervalSec, err = envUint64("VIDEO_SCAN_INTERVAL_SEC", 2)
	if err != nil {
		return Config{}, err
	}

	chunkRaw := envDefault("VIDEO_OBJECT_CHUNK_SIZE_BYTES", "262144")
	chunk, err := strconv.Atoi(chunkRaw)
	if err != nil {
		return Config{}, fmt.Errorf("videorecorder: invalid VIDEO_OBJECT_CHUNK_SIZE_BYTES %q: %w", chunkRaw, err)
	}
	cfg.ObjectChunkSizeBytes = chunk

	cfg.SpoolDir = envDefault("VIDEO_SPOOL_DIR", filepath.Join(os.TempDir(), "avena-video-recorder"))

	return cfg, nil
}

// SegmentPattern returns ffmpeg's strftime output pattern for this
// camera's spool directory.
func (c Config) SegmentPattern() string {
	return filepath.Join(c.SpoolDir, "segment_%Y%m%d_%H%M%S.mp4")
}

func envDefault(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func firstNonEmptyEnv(primary, fallback, def string) string {
	if v := os.Getenv(primary); v != "" {
		return v
	}
	if v := os.Getenv(fallback); v != "" {
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
		return 0, fmt.Errorf("videorecorder: invalid %s %q: %w", name, raw, err)
	}
	return v, nil
}

// sanitizeCameraID strips everything but ASCII alphanumerics, '-' and
// '_' so the value is always safe to embed in an object key.
func sanitizeCameraID(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "default"
	}
	return b.String()
}
