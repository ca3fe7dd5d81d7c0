package storage

// Kind classifies a conversation.
type Kind string

const (
	KindDirect  Kind = "direct"
	KindGroup   Kind = "group"
	KindChannel Kind = "channel"
)

// Attachment download states.
const (
	AttachmentPending      = "pending"
	AttachmentDownloaded   = "downloaded"
	AttachmentSkippedSize  = "skipped_too_large"
	AttachmentSkippedByCfg = "skipped_policy"
	AttachmentFailed       = "failed"
)

// Conversation is a direct chat, group or channel being mirrored.
type Conversation struct {
	ID       int64
	Kind     Kind
	Title    string
	Username string
}

// Sender is the author of a message. Name fields are last-write-wins.
type Sender struct {
	ID          int64
	DisplayName string
	Username    string
}

// Message is one mirrored message, unique per (ConversationID, RemoteID).
// Timestamps are millisecond epochs; EditedAt zero means never edited.
type Message struct {
	ConversationID int64
	RemoteID       int64
	SenderID       int64
	Body           string
	SentAt         int64
	EditedAt       int64
	HasAttachment  bool
	Deleted        bool
}

// Attachment is media metadata for a message, keyed like the message itself.
// LocalPath is empty until the download completes.
type Attachment struct {
	ConversationID int64
	RemoteID       int64
	Ref            string
	Kind           string // photo, video, document, audio, sticker, gif
	SizeBytes      int64
	FileName       string
	LocalPath      string
	Status         string
}

// ReactionSet is the full aggregate reaction state observed for a message.
// It replaces, never patches, the previously stored set.
type ReactionSet struct {
	ConversationID int64
	RemoteID       int64
	Counts         map[string]int
}

// SyncStatus is the durable per-conversation resumability record.
type SyncStatus struct {
	ConversationID int64
	Cursor         int64
	LastRunAt      int64
	LastError      string
	FailureCount   int
}

// Batch is the unit committed in one storage transaction.
type Batch struct {
	Senders     []Sender
	Messages    []Message
	Attachments []Attachment
	Reactions   []ReactionSet
}

// Stats summarizes archive contents for the CLI.
type Stats struct {
	Conversations int64
	Messages      int64
	Senders       int64
	Attachments   int64
	DownloadedMB  float64
}

// MigrateResult describes what happened during schema initialization.
type MigrateResult struct {
	Version uint
	Dirty   bool
	Changed bool
}
