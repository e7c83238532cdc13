package clipworker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/oats-center/labjackd/internal/wireframe"
)

const (
	ingestBatchMax    = 200
	ingestBatchExpiry = time.Second
)

// ingestNewTriggers pulls up to one batch of pending trigger messages
// from cons, idempotently records each as a pending TriggerRecord, and
// acks every message regardless of whether the KV write created a new
// record or found one already there. Ack is never gated on clip
// production: clip building is retried by later compaction cycles, not
// by message redelivery, so acking early keeps the consumer's pending
// count meaningful and avoids ever-growing redelivery storms.
func ingestNewTriggers(ctx context.Context, cons jetstream.Consumer, kv jetstream.KeyValue, logger *log.Logger, nowISO string) (int, error) {
	batch, err := cons.Fetch(ingestBatchMax, jetstream.FetchMaxWait(ingestBatchExpiry))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, nil
		}
		return 0, fmt.Errorf("clipworker: fetch trigger batch: %w", err)
	}

	count := 0
	for msg := range batch.Messages() {
		ev, err := wireframe.DecodeTriggerEvent(msg.Data())
		if err != nil {
			logf(logger, "[clip-worker] dropping malformed trigger message: %v", err)
			_ = msg.Ack()
			continue
		}

		rec := triggerRecordFromEvent(ev, nowISO)
		if _, err := putIfAbsent(ctx, kv, rec); err != nil {
			logf(logger, "[clip-worker] record trigger %s: %v", rec.ID, err)
			_ = msg.Nak()
			continue
		}

		if err := msg.Ack(); err != nil {
			logf(logger, "[clip-worker] ack trigger %s: %v", rec.ID, err)
			continue
		}
		count++
	}
	if err := batch.Error(); err != nil {
		return count, fmt.Errorf("clipworker: trigger batch: %w", err)
	}
	return count, nil
}

func logf(logger *log.Logger, format string, args ...any) {
	if logger != nil {
		logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}
