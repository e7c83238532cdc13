package videorecorder

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const segmentPrefix = "segment_"
const segmentNameLayout = "20060102_150405"

// parseSegmentStartFromPath extracts the strftime-encoded local start
// time from a segment filename and resolves it against tz. Ambiguous
// local times (DST fall-back) resolve to the earlier of the two
// candidates: time.Date does not guarantee which one it returns, so the
// result is stepped back across the offset change whenever that earlier
// instant shows the same wall clock. Non-existent local times (DST
// spring-forward gaps) are detected by round-tripping the resolved
// time's components against the parsed ones and return false, so the
// caller leaves the segment in place for the next poll rather than
// guessing a replacement timestamp.
func parseSegmentStartFromPath(path string, tz *time.Location) (time.Time, bool) {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, ".mp4")
	raw := strings.TrimPrefix(name, segmentPrefix)
	if raw == name {
		return time.Time{}, false
	}

	naive, err := time.Parse(segmentNameLayout, raw)
	if err != nil {
		return time.Time{}, false
	}

	resolved := time.Date(naive.Year(), naive.Month(), naive.Day(), naive.Hour(), naive.Minute(), naive.Second(), 0, tz)
	if resolved.Year() != naive.Year() || resolved.Month() != naive.Month() || resolved.Day() != naive.Day() ||
		resolved.Hour() != naive.Hour() || resolved.Minute() != naive.Minute() || resolved.Second() != naive.Second() {
		return time.Time{}, false
	}
	_, off := resolved.Zone()
	if _, prevOff := resolved.Add(-12 * time.Hour).Zone(); prevOff > off {
		earlier := resolved.Add(-time.Duration(prevOff-off) * time.Second)
		if earlier.Day() == resolved.Day() && earlier.Hour() == resolved.Hour() &&
			earlier.Minute() == resolved.Minute() && earlier.Second() == resolved.Second() {
			resolved = earlier
		}
	}
	return resolved, true
}

// formatKeyTimestamp renders a timestamp component the way the object
// key expects: Y_m_d_HHMMSS in the segment's own zone.
func formatKeyTimestamp(t time.Time) string {
	return t.Format("2006_01_02_150405")
}

// listReadySegments returns spool-directory segment files old enough
// that ffmpeg must have moved past them, sorted by name (and therefore
// by start time, since the filename is a zero-padded timestamp).
func listReadySegments(spoolDir string, segmentSec, uploadSettleSec uint64) ([]string, error) {
	entries, err := os.ReadDir(spoolDir)
	if err != nil {
		return nil, fmt.Errorf("videorecorder: read spool dir %s: %w", spoolDir, err)
	}

	minSettle := segmentSec + 1
	settle := uploadSettleSec
	if settle < minSettle {
		settle = minSettle
	}

	now := time.Now()
	var ready []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".mp4" || !strings.HasPrefix(entry.Name(), segmentPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		age := now.Sub(info.ModTime())
		if age < time.Duration(settle)*time.Second {
			continue
		}
		ready = append(ready, filepath.Join(spoolDir, entry.Name()))
	}
	sort.Strings(ready)
	return ready, nil
}

// validateSegmentFile runs ffprobe and reports whether it found a
// finite, positive duration — ffmpeg's signal that the file's moov
// atom was finalized before the segmenter moved on.
func validateSegmentFile(ctx context.Context, ffprobeBin, path string) bool {
	cmd := exec.CommandContext(ctx, ffprobeBin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return false
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return false
	}
	return duration > 0
}
