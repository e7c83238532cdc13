package sampleconfig

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/nats-io/nats.go/jetstream"
)

// Watch subscribes to Put operations on bucket/key and pushes every
// structurally-changed projection onto updates. Malformed documents
// are logged and ignored, and non-Put operations are ignored; neither
// closes the channel or stops the watch. Watch blocks until ctx is
// cancelled or the KV watch ends, then closes updates; if the watch
// cannot be started it returns that error without closing updates.
func Watch(ctx context.Context, kv jetstream.KeyValue, key, defaultTriggerStream string, logger *log.Logger, updates chan<- SampleConfig, current *SampleConfig) error {
	watch, err := kv.Watch(ctx, key)
	if err != nil {
		return fmt.Errorf("sampleconfig: watch %q: %w", key, err)
	}
	defer watch.Stop()
	defer close(updates)

	for {
		select {
		case <-ctx.Done():
			return nil
		case entry, ok := <-watch.Updates():
			if !ok {
				return nil
			}
			if entry == nil {
				// nats.go sends a nil sentinel once existing history has
				// been replayed; it carries no operation to act on.
				continue
			}
			if entry.Operation() != jetstream.KeyValuePut {
				continue
			}
			projected, err := Project(entry.Value(), defaultTriggerStream, logger)
			if err != nil {
				logf(logger, "sampleconfig: malformed update for key %q: %v", key, err)
				continue
			}
			if current != nil && Equal(*current, projected) {
				continue
			}
			if current != nil {
				*current = projected
			}
			select {
			case updates <- projected:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// LoadBootstrap performs the synchronous initial load required before
// a sampler/archiver process may start; a missing key or malformed
// document is fatal since there is no sensible default asset identity.
func LoadBootstrap(ctx context.Context, kv jetstream.KeyValue, key, defaultTriggerStream string, logger *log.Logger) (SampleConfig, error) {
	entry, err := kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return SampleConfig{}, fmt.Errorf("sampleconfig: bootstrap key %q not found", key)
		}
		return SampleConfig{}, fmt.Errorf("sampleconfig: bootstrap get %q: %w", key, err)
	}
	return Project(entry.Value(), defaultTriggerStream, logger)
}
