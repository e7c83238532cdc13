package clipworker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseVideoKeyIntervalWithCamera(t *testing.T) {
	obj, ok := parseVideoKeyInterval("asset007/camera_cam0/V_2026_01_01_000000_2026_01_01_000500.mp4", time.UTC)
	require.True(t, ok)
	require.Equal(t, uint32(7), obj.Asset)
	require.Equal(t, "cam0", obj.CameraID)
	require.Equal(t, "2026-01-01T00:00:00Z", obj.Start.Format(time.RFC3339))
	require.Equal(t, "2026-01-01T00:05:00Z", obj.End.Format(time.RFC3339))
}

func TestParseVideoKeyIntervalWithoutCameraDefaults(t *testing.T) {
	obj, ok := parseVideoKeyInterval("asset001/V_2026_01_01_000000_2026_01_01_000500.mp4", time.UTC)
	require.True(t, ok)
	require.Equal(t, "default", obj.CameraID)
}

func TestParseVideoKeyIntervalRejectsMalformed(t *testing.T) {
	cases := []string{
		"not-an-asset-prefix/V_2026_01_01_000000_2026_01_01_000500.mp4",
		"asset001/camera_cam0/not_a_video_key.mp4",
		"asset001/camera_cam0/V_2026_01_01_000000.mp4",
		"asset001/camera_cam0/V_2026_01_01_000500_2026_01_01_000000.mp4", // end before start
		"a/b/c/d",
	}
	for _, name := range cases {
		_, ok := parseVideoKeyInterval(name, time.UTC)
		require.False(t, ok, "expected %q to be rejected", name)
	}
}

func TestLocalToUTCRejectsNonExistentTime(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	_, ok := localToUTC(videoKeyLayout, "2026_03_08_023000", ny)
	require.False(t, ok)
}
