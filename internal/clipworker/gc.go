package clipworker

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// cleanupRawObjects deletes V_-prefixed raw recordings older than the
// retention floor, which is never newer than the earliest still-
// pending trigger's clip window needs: a record waiting on compaction
// must never lose the raw footage its clip will be trimmed from.
func cleanupRawObjects(ctx context.Context, cfg Config, store jetstream.ObjectStore, kv jetstream.KeyValue, logger *log.Logger, now time.Time) error {
	floor := now.Add(-time.Duration(cfg.RawRetentionSec) * time.Second)

	records, err := listRecords(ctx, kv)
	if err != nil {
		return err
	}
	var earliestPending time.Time
	for _, rec := range records {
		if rec.Status != StatusPending {
			continue
		}
		t := time.UnixMilli(rec.Event.TriggerTimeUnixMS)
		if earliestPending.IsZero() || t.Before(earliestPending) {
			earliestPending = t
		}
	}
	if !earliestPending.IsZero() {
		needed := earliestPending.Add(-time.Duration(cfg.ClipPreSec * float64(time.Second)))
		if needed.Before(floor) {
			floor = needed
		}
	}

	objects, err := listVideoObjects(ctx, store, cfg.VideoTZ)
	if err != nil {
		return fmt.Errorf("clipworker: list objects for raw gc: %w", err)
	}

	for _, o := range objects {
		base := o.Name
		if idx := strings.LastIndex(base, "/"); idx >= 0 {
			base = base[idx+1:]
		}
		if !strings.HasPrefix(base, "V_") {
			continue
		}
		if o.End.After(floor) {
			continue
		}
		if err := store.Delete(ctx, o.Name); err != nil {
			logf(logger, "[clip-worker] delete stale raw object %s: %v", o.Name, err)
			continue
		}
		logf(logger, "[clip-worker] deleted stale raw object %s (end %s, floor %s)", o.Name, o.End.Format(time.RFC3339), floor.Format(time.RFC3339))
	}
	return nil
}
