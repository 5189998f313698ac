package chat

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Snapshot is one inbound stream chunk: a complete restatement of a turn's
// evolving content, not a diff. The same envelope shape is replayed from
// persisted history when resuming a conversation.
type Snapshot struct {
	ConversationID     string           `json:"conversation_id"`
	UserMessageID      string           `json:"user_message_id,omitempty"`
	AssistantMessageID string           `json:"assistant_message_id,omitempty"`
	Message            *SnapshotMessage `json:"message,omitempty"`
	Error              *StreamError     `json:"error,omitempty"`
}

// SnapshotMessage holds the evolving middle-state document (Content: the
// progress array plus the variables bag) and out-of-band metadata (Ext).
// The backend serializes ext either as an object or as a JSON-encoded
// string; ParseExt handles both.
type SnapshotMessage struct {
	Content json.RawMessage `json:"content,omitempty"`
	Ext     json.RawMessage `json:"ext,omitempty"`
}

// ExtMetadata is the decoded out-of-band metadata of a snapshot.
type ExtMetadata struct {
	Ask            *Ask     `json:"ask,omitempty"`
	TotalTime      float64  `json:"total_time,omitempty"`
	TotalTokens    int      `json:"total_tokens,omitempty"`
	TTFT           int      `json:"ttft,omitempty"` // first-token latency, ms
	RelatedQueries []string `json:"related_queries,omitempty"`
}

// ParseExt decodes the ext field, unwrapping the string-encoded form.
// Malformed ext degrades to empty metadata rather than failing the turn.
func (m *SnapshotMessage) ParseExt() ExtMetadata {
	var out ExtMetadata
	if m == nil || len(m.Ext) == 0 {
		return out
	}
	raw := m.Ext
	parsed := gjson.ParseBytes(raw)
	if parsed.Type == gjson.String {
		raw = []byte(parsed.String())
	}
	if !gjson.ValidBytes(raw) {
		return out
	}
	doc := gjson.ParseBytes(raw)
	out.TotalTime = doc.Get("total_time").Float()
	out.TotalTokens = int(doc.Get("total_tokens").Int())
	out.TTFT = int(doc.Get("ttft").Int())
	for _, q := range doc.Get("related_queries").Array() {
		out.RelatedQueries = append(out.RelatedQueries, q.String())
	}
	if ask := doc.Get("ask"); ask.Exists() && ask.IsObject() {
		out.Ask = parseAsk(ask)
	}
	return out
}

// ContentDoc returns the content field as a gjson document, unwrapping the
// string-encoded form the same way ParseExt does.
func (m *SnapshotMessage) ContentDoc() gjson.Result {
	if m == nil || len(m.Content) == 0 {
		return gjson.Result{}
	}
	raw := m.Content
	parsed := gjson.ParseBytes(raw)
	if parsed.Type == gjson.String {
		raw = []byte(parsed.String())
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}
	}
	return gjson.ParseBytes(raw)
}

// Ask is a server-initiated interruption: generation is paused until the
// user supplies one value per argument. Raw preserves the original payload
// byte-for-byte so replies can echo it with values substituted.
type Ask struct {
	Tool string          `json:"tool"`
	Args []AskArg        `json:"args"`
	Raw  json.RawMessage `json:"-"`
}

// AskArg is one typed argument the interruption requests a value for.
type AskArg struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Value       string `json:"value,omitempty"`
}

// Clone returns a deep copy of the interruption payload.
func (a *Ask) Clone() *Ask {
	out := *a
	out.Args = append([]AskArg(nil), a.Args...)
	out.Raw = append(json.RawMessage(nil), a.Raw...)
	return &out
}

func parseAsk(doc gjson.Result) *Ask {
	ask := &Ask{
		Tool: doc.Get("tool").String(),
		Raw:  json.RawMessage(doc.Raw),
	}
	for _, arg := range doc.Get("args").Array() {
		ask.Args = append(ask.Args, AskArg{
			Name:        arg.Get("name").String(),
			Type:        arg.Get("type").String(),
			Description: arg.Get("description").String(),
			Value:       arg.Get("value").String(),
		})
	}
	return ask
}

// StreamError is the structured protocol error envelope.
type StreamError struct {
	Code        string `json:"code,omitempty"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion,omitempty"`
}

func (e *StreamError) Error() string { return e.Description }
