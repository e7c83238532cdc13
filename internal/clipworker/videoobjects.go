package clipworker

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const videoKeyLayout = "2006_01_02_150405"

// listVideoObjects walks every object in the video bucket and parses
// the ones matching the recorder's key format into VideoObject values,
// silently skipping anything that doesn't parse (thumbnails, partial
// uploads, or objects from a different producer sharing the bucket).
func listVideoObjects(ctx context.Context, store jetstream.ObjectStore, tz *time.Location) ([]VideoObject, error) {
	infos, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("clipworker: list video objects: %w", err)
	}

	var objects []VideoObject
	for _, info := range infos {
		if info.Deleted {
			continue
		}
		obj, ok := parseVideoKeyInterval(info.Name, tz)
		if !ok {
			continue
		}
		objects = append(objects, obj)
	}
	return objects, nil
}

// parseVideoKeyInterval decodes an object key of the form
// "asset{NNN}/camera_{id}/V_{Y}_{m}_{d}_{HHMMSS}_{Y}_{m}_{d}_{HHMMSS}.mp4"
// (the camera segment is optional; its absence implies camera "default").
func parseVideoKeyInterval(name string, tz *time.Location) (VideoObject, bool) {
	parts := strings.Split(name, "/")

	var assetPrefix, cameraID, fileName string
	switch len(parts) {
	case 2:
		assetPrefix, cameraID, fileName = parts[0], "default", parts[1]
	case 3:
		assetPrefix = parts[0]
		cameraID = strings.TrimPrefix(parts[1], "camera_")
		fileName = parts[2]
	default:
		return VideoObject{}, false
	}

	assetRaw, ok := strings.CutPrefix(assetPrefix, "asset")
	if !ok {
		return VideoObject{}, false
	}
	asset, err := strconv.ParseUint(assetRaw, 10, 32)
	if err != nil {
		return VideoObject{}, false
	}

	stem, ok := strings.CutSuffix(fileName, ".mp4")
	if !ok {
		return VideoObject{}, false
	}

	segments := strings.Split(stem, "_")
	if len(segments) != 9 || segments[0] != "V" {
		return VideoObject{}, false
	}

	startRaw := strings.Join(segments[1:5], "_")
	endRaw := strings.Join(segments[5:9], "_")

	start, ok := localToUTC(videoKeyLayout, startRaw, tz)
	if !ok {
		return VideoObject{}, false
	}
	end, ok := localToUTC(videoKeyLayout, endRaw, tz)
	if !ok {
		return VideoObject{}, false
	}
	if !end.After(start) {
		return VideoObject{}, false
	}

	return VideoObject{
		Name:     name,
		Asset:    uint32(asset),
		CameraID: cameraID,
		Start:    start,
		End:      end,
	}, true
}

// localToUTC parses raw using layout (which carries no zone
// information) and resolves the resulting wall-clock time against tz.
// Ambiguous times (DST fall-back) resolve to the earlier of the two
// instants: time.Date does not guarantee which one it returns, so the
// result is stepped back across the offset change whenever that
// earlier instant shows the same wall clock. Non-existent times (DST
// spring-forward gaps) are rejected by round-tripping the resolved
// components against the parsed ones, matching the same logic used for
// video segment filenames.
func localToUTC(layout, raw string, tz *time.Location) (time.Time, bool) {
	naive, err := time.Parse(layout, raw)
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
	return resolved.UTC(), true
}
