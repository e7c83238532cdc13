package clipworker

import (
	"context"
	"log"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/oats-center/labjackd/internal/natsutil"
)

// Worker ties trigger ingestion, clip compaction, and raw-object
// garbage collection into one run loop.
type Worker struct {
	Config     Config
	Consumer   jetstream.Consumer
	StateKV    jetstream.KeyValue
	VideoStore jetstream.ObjectStore
	Logger     *log.Logger
}

func (w *Worker) logf(format string, args ...any) {
	logf(w.Logger, format, args...)
}

// Run polls for new trigger messages every PollIntervalSec and runs a
// compaction-and-gc cycle every CompactionIntervalSec, with the first
// compaction cycle firing immediately on startup rather than waiting a
// full interval — a restart shouldn't leave a freshly-ingested backlog
// sitting untouched for up to an hour.
func (w *Worker) Run(ctx context.Context) error {
	pollInterval := time.Duration(w.Config.PollIntervalSec) * time.Second
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	compactionInterval := time.Duration(w.Config.CompactionIntervalSec) * time.Second
	if compactionInterval <= 0 {
		compactionInterval = time.Hour
	}

	pollTicker := time.NewTicker(pollInterval)
	defer pollTicker.Stop()
	compactionTicker := time.NewTicker(compactionInterval)
	defer compactionTicker.Stop()

	w.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pollTicker.C:
			now := time.Now().UTC().Format(time.RFC3339)
			n, err := ingestNewTriggers(ctx, w.Consumer, w.StateKV, w.Logger, now)
			if err != nil {
				w.logf("[clip-worker] ingest: %v", err)
			} else if n > 0 {
				w.logf("[clip-worker] ingested %d trigger(s)", n)
			}
		case <-compactionTicker.C:
			w.runCycle(ctx)
		}
	}
}

func (w *Worker) runCycle(ctx context.Context) {
	now := time.Now().UTC()
	if err := runCompactionCycle(ctx, w.Config, w.VideoStore, w.StateKV, w.Logger, now); err != nil {
		w.logf("[clip-worker] compaction cycle: %v", err)
	}
	if err := cleanupRawObjects(ctx, w.Config, w.VideoStore, w.StateKV, w.Logger, now); err != nil {
		w.logf("[clip-worker] raw retention gc: %v", err)
	}
}

// EnsureResources resolves the durable consumer, state bucket, and
// video object store a Worker needs, creating each if absent.
func EnsureResources(ctx context.Context, js jetstream.JetStream, cfg Config) (jetstream.Consumer, jetstream.KeyValue, jetstream.ObjectStore, error) {
	stream, err := natsutil.GetOrCreateStream(ctx, js, cfg.TriggerStream, []string{cfg.TriggerSubjectFilter})
	if err != nil {
		return nil, nil, nil, err
	}
	cons, err := natsutil.GetOrCreateDurablePullConsumer(ctx, stream, cfg.TriggerConsumerDurable, cfg.TriggerSubjectFilter)
	if err != nil {
		return nil, nil, nil, err
	}

	kv, err := natsutil.GetOrCreateKV(ctx, js, cfg.TriggerStateBucket, 10)
	if err != nil {
		return nil, nil, nil, err
	}

	store, err := natsutil.GetOrCreateObjectStore(ctx, js, cfg.VideoBucket)
	if err != nil {
		return nil, nil, nil, err
	}

	return cons, kv, store, nil
}
