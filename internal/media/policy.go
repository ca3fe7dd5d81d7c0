// Package media acquires attachment bytes for already-archived messages.
// Acquisition is decoupled from the sync pipeline: the engine only records
// pending placeholders, the fetcher downloads them in the background.
package media

import (
	"github.com/matheus3301/tgvault/internal/config"
	"github.com/matheus3301/tgvault/internal/storage"
)

// Policy decides whether an attachment's bytes should be fetched at all.
type Policy struct {
	enabled  bool
	maxBytes int64
}

// NewPolicy builds the download policy from configuration. maxBytes <= 0
// means no size cap.
func NewPolicy(cfg config.MediaConfig) Policy {
	return Policy{enabled: cfg.Download, maxBytes: cfg.MaxBytes}
}

// Decide maps an attachment's reported size to its target state. Anything
// other than pending is a terminal skip recorded without a download attempt.
func (p Policy) Decide(sizeBytes int64) string {
	if !p.enabled {
		return storage.AttachmentSkippedByCfg
	}
	if p.maxBytes > 0 && sizeBytes > p.maxBytes {
		return storage.AttachmentSkippedSize
	}
	return storage.AttachmentPending
}
