// Package chat defines the service interfaces of the conversation
// engine. Implementations live under internal/service and
// internal/transport; consumers depend on these interfaces only.
package chat

import (
	"context"

	chatModels "chatflow/internal/domain/models/chat"
)

// Stream is a cooperative, cancellable snapshot sequence. The transport
// guarantees in-order delivery per turn. Recv returns io.EOF when the
// stream closes without error.
type Stream interface {
	Recv() (*chatModels.Snapshot, error)
	Close() error
}

// Transport is the backend surface the orchestrator depends on.
type Transport interface {
	// OpenStream issues a chat request and returns its snapshot stream.
	OpenStream(ctx context.Context, req *chatModels.TurnRequest) (Stream, error)

	// StopTurn asks the backend to stop generating. Best-effort: the
	// stream may still deliver trailing snapshots.
	StopTurn(ctx context.Context, conversationID, assistantMessageID string) error

	// SessionTTL probes the remaining session lifetime in seconds.
	SessionTTL(ctx context.Context, req chatModels.SessionRequest) (int, error)

	// RenewSession extends the session, returning the new TTL in seconds.
	RenewSession(ctx context.Context, req chatModels.SessionRequest) (int, error)

	// History fetches the persisted message list for resume.
	History(ctx context.Context, conversationID string) ([]chatModels.StoredMessage, error)
}
