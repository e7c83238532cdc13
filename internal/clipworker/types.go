package clipworker

import (
	"time"

	"github.com/oats-center/labjackd/internal/wireframe"
)

// RecordStatus tracks a trigger record through the compaction pipeline.
type RecordStatus string

const (
	StatusPending   RecordStatus = "pending"
	StatusProcessed RecordStatus = "processed"
)

// TriggerRecord is the idempotent, KV-persisted state for one ingested
// trigger event. Ack of the originating NATS message happens as soon
// as this record is written, regardless of whether a clip is ever
// successfully produced for it — clip production is retried by later
// compaction cycles, not by message redelivery.
type TriggerRecord struct {
	ID        string                 `json:"id"`
	Event     wireframe.TriggerEvent `json:"event"`
	Status    RecordStatus           `json:"status"`
	Attempts  uint32                 `json:"attempts"`
	ClipKeys  []string               `json:"clip_keys,omitempty"`
	LastError string                 `json:"last_error,omitempty"`
	UpdatedAt string                 `json:"updated_at"`
}

// VideoObject is a raw camera recording discovered in the video object
// store, with its recording interval resolved to UTC.
type VideoObject struct {
	Name     string
	Asset    uint32
	CameraID string
	Start    time.Time
	End      time.Time
}

// ClipPlan is the set of video objects selected to cover one clip's
// time window, in playback order. A single member means the window is
// fully contained within one recording; more than one means the clip
// worker must trim each member to its overlap with the window and
// concatenate them in order.
type ClipPlan struct {
	Members []VideoObject
}

func (p ClipPlan) IsSingle() bool { return len(p.Members) == 1 }
