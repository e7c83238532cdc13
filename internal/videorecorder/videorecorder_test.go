package videorecorder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSanitizeCameraID(t *testing.T) {
	require.Equal(t, "cam-01_A", sanitizeCameraID("cam-01_A"))
	require.Equal(t, "cam01", sanitizeCameraID("cam 01!"))
	require.Equal(t, "default", sanitizeCameraID("!!!"))
	require.Equal(t, "default", sanitizeCameraID(""))
}

func TestParseSegmentStartFromPathUTC(t *testing.T) {
	start, ok := parseSegmentStartFromPath("/spool/segment_20260115_093000.mp4", time.UTC)
	require.True(t, ok)
	require.Equal(t, 2026, start.Year())
	require.Equal(t, time.January, start.Month())
	require.Equal(t, 15, start.Day())
	require.Equal(t, 9, start.Hour())
	require.Equal(t, 30, start.Minute())
}

func TestParseSegmentStartFromPathRejectsUnrecognized(t *testing.T) {
	_, ok := parseSegmentStartFromPath("/spool/not_a_segment.mp4", time.UTC)
	require.False(t, ok)

	_, ok = parseSegmentStartFromPath("/spool/segment_bogus.mp4", time.UTC)
	require.False(t, ok)
}

func TestParseSegmentStartFromPathNonExistentLocalTimeSkipped(t *testing.T) {
	// America/New_York springs forward at 2026-03-08 02:00 -> 03:00;
	// 02:30 never occurs and must be rejected, not silently shifted.
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	_, ok := parseSegmentStartFromPath("/spool/segment_20260308_023000.mp4", ny)
	require.False(t, ok)
}

func TestParseSegmentStartFromPathAmbiguousResolvesToEarliest(t *testing.T) {
	// America/New_York falls back at 2026-11-01 02:00 -> 01:00; 01:30
	// occurs twice. The earlier (pre-transition, EDT, UTC-4) offset
	// must be chosen.
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	start, ok := parseSegmentStartFromPath("/spool/segment_20261101_013000.mp4", ny)
	require.True(t, ok)
	_, offset := start.Zone()
	require.Equal(t, -4*3600, offset)
}

func TestFormatKeyTimestamp(t *testing.T) {
	ts := time.Date(2026, time.March, 5, 14, 30, 7, 0, time.UTC)
	require.Equal(t, "2026_03_05_143007", formatKeyTimestamp(ts))
}

func TestListReadySegmentsFiltersByAge(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "segment_20260101_000000.mp4")
	fresh := filepath.Join(dir, "segment_20260101_000010.mp4")
	other := filepath.Join(dir, "not_a_segment.txt")

	for _, p := range []string{old, fresh, other} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}

	oldTime := time.Now().Add(-10 * time.Second)
	freshTime := time.Now()
	require.NoError(t, os.Chtimes(old, oldTime, oldTime))
	require.NoError(t, os.Chtimes(fresh, freshTime, freshTime))

	ready, err := listReadySegments(dir, 2, 2)
	require.NoError(t, err)
	require.Equal(t, []string{old}, ready)
}

func TestConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("NATS_SERVERS", "nats://127.0.0.1:4222")
	t.Setenv("VIDEO_SOURCE_URL", "rtsp://example.invalid/stream")
	os.Unsetenv("VIDEO_CAMERA_ID")
	os.Unsetenv("INSTANCE")
	os.Unsetenv("VIDEO_TZ")
	os.Unsetenv("VIDEO_ASSET_NUMBER")
	os.Unsetenv("ASSET_NUMBER")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, []string{"nats://127.0.0.1:4222"}, cfg.NATSServers)
	require.Equal(t, uint32(1001), cfg.AssetNumber)
	require.Equal(t, "default", cfg.CameraID)
	require.Equal(t, "ffmpeg", cfg.FFmpegBin)
	require.Equal(t, uint64(5), cfg.SegmentSec)
}

func TestConfigFromEnvRequiresSourceURL(t *testing.T) {
	t.Setenv("NATS_SERVERS", "nats://127.0.0.1:4222")
	os.Unsetenv("VIDEO_SOURCE_URL")
	_, err := ConfigFromEnv()
	require.Error(t, err)
}
