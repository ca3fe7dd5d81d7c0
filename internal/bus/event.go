package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds published by the sync engine and media pipeline.
// Subscribers filter by prefix, e.g. "sync." receives all sync events.
const (
	KindRunStarted     = "sync.run_started"
	KindRunFinished    = "sync.run_finished"
	KindBatchCommitted = "sync.batch_committed"
	KindConvFailed     = "sync.conversation_failed"
	KindReconciled     = "sync.reconciled"
	KindMediaDone      = "media.downloaded"
	KindMediaFailed    = "media.failed"
	KindStatusChanged  = "status.changed"
)
