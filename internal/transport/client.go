// Package transport implements the HTTP surface of the chat backend:
// the streaming chat endpoint, the stop notification, the session TTL
// probe/renewal pair, and the history fetch used for resume.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"chatflow/internal/domain"
	"chatflow/internal/domain/models/chat"
	chatSvc "chatflow/internal/domain/services/chat"
)

const rpcTimeout = 15 * time.Second

// Client talks to one chat backend.
type Client struct {
	baseURL string
	stream  *http.Client // no timeout: streams outlive any fixed deadline
	rpc     *http.Client
	logger  *slog.Logger
}

// NewClient creates a backend client.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		stream:  &http.Client{},
		rpc:     &http.Client{Timeout: rpcTimeout},
		logger:  logger,
	}
}

// OpenStream issues the chat request and returns the snapshot sequence.
// The stream is cancellable through ctx and must be closed by the caller.
func (c *Client) OpenStream(ctx context.Context, req *chat.TurnRequest) (chatSvc.Stream, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("open chat stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeErrorBody(resp)
	}

	c.logger.Debug("chat stream opened", "conversation_id", req.ConversationID)
	return newSnapshotStream(resp.Body), nil
}

// StopTurn asks the backend to stop generating the turn. This is a
// request, not a guaranteed instantaneous stop.
func (c *Client) StopTurn(ctx context.Context, conversationID, assistantMessageID string) error {
	payload := map[string]string{
		"conversation_id":      conversationID,
		"assistant_message_id": assistantMessageID,
	}
	return c.postJSON(ctx, "/api/chat/stop", payload, nil)
}

// SessionTTL probes the remaining session lifetime in seconds.
func (c *Client) SessionTTL(ctx context.Context, req chat.SessionRequest) (int, error) {
	var out chat.SessionTTL
	if err := c.postJSON(ctx, "/api/session/ttl", req, &out); err != nil {
		return 0, err
	}
	return out.TTL, nil
}

// RenewSession extends the session and returns the new TTL in seconds.
func (c *Client) RenewSession(ctx context.Context, req chat.SessionRequest) (int, error) {
	var out chat.SessionTTL
	if err := c.postJSON(ctx, "/api/session/renew", req, &out); err != nil {
		return 0, err
	}
	return out.TTL, nil
}

// History fetches the persisted message list of a conversation.
func (c *Client) History(ctx context.Context, conversationID string) ([]chat.StoredMessage, error) {
	endpoint := c.baseURL + "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.rpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeErrorBody(resp)
	}

	var messages []chat.StoredMessage
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return messages, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.rpc.Do(httpReq)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeErrorBody(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// decodeErrorBody surfaces the backend's structured error when present.
func decodeErrorBody(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var envelope struct {
		Error *chat.StreamError `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error != nil {
		if envelope.Error.Code == "SESSION_EXPIRED" {
			return fmt.Errorf("%w: %s", domain.ErrSessionExpired, envelope.Error.Description)
		}
		return envelope.Error
	}
	return fmt.Errorf("backend returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
}
