package clipworker

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/oats-center/labjackd/internal/wireframe"
)

// runCompactionCycle processes every pending record old enough to have
// settled (now - CLIP_PROCESS_LAG_SEC), grouping them by asset so each
// asset's video objects are listed from the store only once per cycle.
func runCompactionCycle(ctx context.Context, cfg Config, videoStore jetstream.ObjectStore, kv jetstream.KeyValue, logger *log.Logger, now time.Time) error {
	records, err := listRecords(ctx, kv)
	if err != nil {
		return err
	}

	cutoff := now.Add(-time.Duration(cfg.ClipProcessLagSec) * time.Second)
	byAsset := make(map[uint32][]TriggerRecord)
	for _, rec := range records {
		if rec.Status != StatusPending {
			continue
		}
		triggerTime := time.UnixMilli(rec.Event.TriggerTimeUnixMS)
		if triggerTime.After(cutoff) {
			continue
		}
		byAsset[rec.Event.Asset] = append(byAsset[rec.Event.Asset], rec)
	}

	for asset, pending := range byAsset {
		objects, err := listVideoObjects(ctx, videoStore, cfg.VideoTZ)
		if err != nil {
			logf(logger, "[clip-worker] list video objects for asset %d: %v", asset, err)
			continue
		}
		var assetObjects []VideoObject
		for _, o := range objects {
			if o.Asset == asset {
				assetObjects = append(assetObjects, o)
			}
		}

		for _, rec := range pending {
			updated := processRecord(ctx, cfg, videoStore, assetObjects, rec, logger, now)
			if err := updateRecord(ctx, kv, updated); err != nil {
				logf(logger, "[clip-worker] persist record %s: %v", updated.ID, err)
			}
		}
	}

	return nil
}

// processRecord attempts to build and upload a clip for one trigger
// record, filtering candidate cameras by CLIP_CAMERA_IDS if set. The
// first camera that fails to resolve or build aborts the whole
// attempt for this cycle; it is retried on the next one rather than
// left partially fulfilled with some cameras' clips and not others'.
func processRecord(ctx context.Context, cfg Config, store jetstream.ObjectStore, objects []VideoObject, rec TriggerRecord, logger *log.Logger, now time.Time) TriggerRecord {
	clipStart := time.UnixMilli(rec.Event.TriggerTimeUnixMS).Add(-time.Duration(cfg.ClipPreSec * float64(time.Second)))
	clipEnd := time.UnixMilli(rec.Event.TriggerTimeUnixMS).Add(time.Duration(cfg.ClipPostSec * float64(time.Second)))

	cameraGroups := groupByCamera(objects, cfg.ClipCameraIDs)
	if len(cameraGroups) == 0 {
		rec.Attempts++
		rec.LastError = "no video objects available for asset"
		rec.UpdatedAt = now.Format(time.RFC3339)
		return rec
	}

	cameraIDs := make([]string, 0, len(cameraGroups))
	for cameraID := range cameraGroups {
		cameraIDs = append(cameraIDs, cameraID)
	}
	sort.Strings(cameraIDs)

	var clipKeys []string
	for _, cameraID := range cameraIDs {
		camObjects := cameraGroups[cameraID]
		key, err := buildAndStoreClip(ctx, cfg, store, camObjects, cameraID, rec.Event, clipStart, clipEnd)
		if err != nil {
			logf(logger, "[clip-worker] build clip for trigger %s camera %s: %v", rec.ID, cameraID, err)
			rec.Attempts++
			rec.LastError = err.Error()
			rec.UpdatedAt = now.Format(time.RFC3339)
			return rec
		}
		clipKeys = append(clipKeys, key)
	}

	rec.Status = StatusProcessed
	rec.ClipKeys = clipKeys
	rec.LastError = ""
	rec.UpdatedAt = now.Format(time.RFC3339)
	return rec
}

func groupByCamera(objects []VideoObject, allowlist []string) map[string][]VideoObject {
	allowed := make(map[string]bool, len(allowlist))
	for _, id := range allowlist {
		allowed[id] = true
	}

	groups := make(map[string][]VideoObject)
	for _, o := range objects {
		if len(allowlist) > 0 && !allowed[o.CameraID] {
			continue
		}
		groups[o.CameraID] = append(groups[o.CameraID], o)
	}
	return groups
}

// buildAndStoreClip resolves a plan for one camera, builds the clip
// file via ffmpeg, and uploads it to the clip key under
// CLIP_OUTPUT_PREFIX.
func buildAndStoreClip(ctx context.Context, cfg Config, store jetstream.ObjectStore, camObjects []VideoObject, cameraID string, ev wireframe.TriggerEvent, clipStart, clipEnd time.Time) (string, error) {
	plan, err := resolveClipSources(camObjects, clipStart, clipEnd)
	if err != nil {
		return "", err
	}

	workDir := filepath.Join(cfg.VideoTmpDir, "clip-"+uuid.NewString())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", fmt.Errorf("clipworker: create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	outputPath := filepath.Join(workDir, "clip.mp4")
	if err := buildClip(ctx, cfg.FFmpegBin, store, plan, clipStart, clipEnd, workDir, outputPath); err != nil {
		return "", err
	}

	center := time.UnixMilli(ev.TriggerTimeUnixMS).UTC()
	objectKey := fmt.Sprintf("%s/asset%d/camera_%s/C_%s_ch%02d_%s.mp4",
		cfg.ClipOutputPrefix, ev.Asset, cameraID, center.Format("20060102T150405"),
		ev.Channel, ev.TriggerType)

	file, err := os.Open(outputPath)
	if err != nil {
		return "", fmt.Errorf("clipworker: open built clip: %w", err)
	}
	defer file.Close()

	if _, err := store.Put(ctx, jetstream.ObjectMeta{Name: objectKey}, file); err != nil {
		return "", fmt.Errorf("clipworker: upload clip %s: %w", objectKey, err)
	}
	return objectKey, nil
}
