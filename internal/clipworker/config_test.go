package clipworker

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func clearClipWorkerEnv() {
	for _, k := range []string{
		"NATS_SERVERS", "NATS_CREDS_FILE", "NATS_SUBJECT", "VIDEO_BUCKET", "VIDEO_TZ",
		"FFMPEG_BIN", "VIDEO_TMP_DIR", "TRIGGER_STREAM", "TRIGGER_SUBJECT_FILTER",
		"TRIGGER_CONSUMER_DURABLE", "TRIGGER_STATE_BUCKET", "CLIP_COMPACTION_INTERVAL_SEC",
		"CLIP_WORKER_POLL_INTERVAL_SEC", "CLIP_PRE_SEC", "CLIP_POST_SEC",
		"CLIP_PROCESS_LAG_SEC", "CLIP_CAMERA_IDS", "CLIP_OUTPUT_PREFIX", "RAW_RETENTION_SEC",
	} {
		os.Unsetenv(k)
	}
}

func TestConfigFromEnvRequiresNATSServers(t *testing.T) {
	clearClipWorkerEnv()
	_, err := ConfigFromEnv()
	require.Error(t, err)
}

func TestConfigFromEnvDefaults(t *testing.T) {
	clearClipWorkerEnv()
	t.Setenv("NATS_SERVERS", "nats://127.0.0.1:4222")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, []string{"nats://127.0.0.1:4222"}, cfg.NATSServers)
	require.Equal(t, "avenabox", cfg.NATSSubject)
	require.Equal(t, "avena_videos", cfg.VideoBucket)
	require.Equal(t, "ffmpeg", cfg.FFmpegBin)
	require.Equal(t, uint64(3600), cfg.CompactionIntervalSec)
	require.Equal(t, uint64(2), cfg.PollIntervalSec)
	require.Equal(t, 5.0, cfg.ClipPreSec)
	require.Equal(t, 5.0, cfg.ClipPostSec)
	require.Equal(t, uint64(15), cfg.ClipProcessLagSec)
	require.Equal(t, "clips", cfg.ClipOutputPrefix)
	require.Equal(t, uint64(172800), cfg.RawRetentionSec)
	require.Nil(t, cfg.ClipCameraIDs)
}

func TestConfigFromEnvParsesCameraAllowlist(t *testing.T) {
	clearClipWorkerEnv()
	t.Setenv("NATS_SERVERS", "nats://127.0.0.1:4222")
	t.Setenv("CLIP_CAMERA_IDS", "cam0, cam1 ,cam2")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, []string{"cam0", "cam1", "cam2"}, cfg.ClipCameraIDs)
}

func TestConfigFromEnvRejectsBadTZ(t *testing.T) {
	clearClipWorkerEnv()
	t.Setenv("NATS_SERVERS", "nats://127.0.0.1:4222")
	t.Setenv("VIDEO_TZ", "Not/AZone")
	_, err := ConfigFromEnv()
	require.Error(t, err)
}
