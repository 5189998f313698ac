package chat

import (
	"encoding/json"
	"time"
)

// Stored message origin and status constants
const (
	OriginUser      = "user"
	OriginAssistant = "assistant"

	StoredStatusProcessing = "processing"
	StoredStatusComplete   = "complete"
	StoredStatusError      = "error"
	StoredStatusCancelled  = "cancelled"
)

// StoredMessage is one entry of a persisted conversation, as returned by
// the history endpoint. Content and Ext carry the same document shapes as
// the live snapshot envelope, so the classifier and plan extractor are
// reused verbatim when rebuilding a transcript.
type StoredMessage struct {
	ID         string          `json:"id"`
	Origin     string          `json:"origin"`
	Content    json.RawMessage `json:"content,omitempty"`
	Ext        json.RawMessage `json:"ext,omitempty"`
	Status     string          `json:"status"`
	UpdateTime time.Time       `json:"update_time"`
}

// AsSnapshot re-wraps a stored assistant message as a completed snapshot
// envelope so live-stream classification applies unchanged.
func (m *StoredMessage) AsSnapshot(conversationID string) *Snapshot {
	return &Snapshot{
		ConversationID:     conversationID,
		AssistantMessageID: m.ID,
		Message: &SnapshotMessage{
			Content: m.Content,
			Ext:     m.Ext,
		},
	}
}
