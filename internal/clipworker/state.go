package clipworker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/oats-center/labjackd/internal/wireframe"
)

// recordKey maps a trigger event's id to its KV entry key,
// "event.{id}". NATS KV keys allow '.' as a token separator; generated
// ids ("{asset}_{channel}_{unixMs}_{r|f}") contain no '.', '*' or '>'.
func recordKey(id string) string {
	return "event." + id
}

// putIfAbsent writes rec under its idempotency key only if no record
// exists yet, and reports whether this call was the one that created
// it. A pre-existing record is left untouched and is not an error:
// redelivery of an already-ingested trigger is expected under
// at-least-once consumption.
func putIfAbsent(ctx context.Context, kv jetstream.KeyValue, rec TriggerRecord) (created bool, err error) {
	key := recordKey(rec.ID)
	_, err = kv.Get(ctx, key)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, jetstream.ErrKeyNotFound) {
		return false, fmt.Errorf("clipworker: get record %s: %w", key, err)
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("clipworker: marshal record %s: %w", key, err)
	}
	if _, err := kv.Create(ctx, key, payload); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return false, nil
		}
		return false, fmt.Errorf("clipworker: create record %s: %w", key, err)
	}
	return true, nil
}

// updateRecord stores the possibly-modified record back, overwriting
// whatever revision is currently stored. Compaction runs serially
// within one worker, so last-write-wins is sufficient.
func updateRecord(ctx context.Context, kv jetstream.KeyValue, rec TriggerRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("clipworker: marshal record %s: %w", rec.ID, err)
	}
	if _, err := kv.Put(ctx, recordKey(rec.ID), payload); err != nil {
		return fmt.Errorf("clipworker: put record %s: %w", rec.ID, err)
	}
	return nil
}

// listRecords returns every trigger record currently stored.
func listRecords(ctx context.Context, kv jetstream.KeyValue) ([]TriggerRecord, error) {
	keys, err := kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("clipworker: list record keys: %w", err)
	}

	records := make([]TriggerRecord, 0, len(keys))
	for _, key := range keys {
		entry, err := kv.Get(ctx, key)
		if err != nil {
			continue
		}
		var rec TriggerRecord
		if err := json.Unmarshal(entry.Value(), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// triggerRecordFromEvent builds the pending record written on ingest.
// The idempotency key folds in the trigger direction so a rising and a
// falling crossing on the same channel at the same millisecond (which
// cannot physically happen, but costs nothing to guard) never collide.
func triggerRecordFromEvent(ev wireframe.TriggerEvent, now string) TriggerRecord {
	return TriggerRecord{
		ID:        ev.ID(),
		Event:     ev,
		Status:    StatusPending,
		UpdatedAt: now,
	}
}
