package transport

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"chatflow/internal/domain/models/chat"
)

// SSE event names on the chat stream. Keep-alive comments (lines starting
// with ':') carry no event and are skipped.
const (
	eventSnapshot = "snapshot"
	eventError    = "error"
)

// maxFrameSize bounds one SSE data line; snapshots restate the whole
// document so they grow with the turn.
const maxFrameSize = 4 << 20

// SnapshotStream reads snapshot envelopes off an SSE response body.
// Recv returns io.EOF when the server closes the stream without error.
type SnapshotStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

func newSnapshotStream(body io.ReadCloser) *SnapshotStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)
	return &SnapshotStream{body: body, scanner: scanner}
}

// Recv blocks until the next snapshot frame arrives.
func (s *SnapshotStream) Recv() (*chat.Snapshot, error) {
	for {
		event, data, err := s.nextFrame()
		if err != nil {
			return nil, err
		}

		switch event {
		case eventSnapshot, "":
			var snap chat.Snapshot
			if err := json.Unmarshal(data, &snap); err != nil {
				return nil, fmt.Errorf("decode snapshot frame: %w", err)
			}
			return &snap, nil
		case eventError:
			var snap chat.Snapshot
			if err := json.Unmarshal(data, &snap); err != nil {
				return nil, fmt.Errorf("decode error frame: %w", err)
			}
			if snap.Error == nil {
				snap.Error = &chat.StreamError{Description: string(data)}
			}
			return &snap, nil
		default:
			// Unknown event types are skipped for forward compatibility.
		}
	}
}

// nextFrame scans one SSE frame: field lines accumulated until a blank
// line. Format per frame:
//
//	event: snapshot
//	data: {...}
//
func (s *SnapshotStream) nextFrame() (event string, data []byte, err error) {
	var dataLines []string
	sawField := false

	for s.scanner.Scan() {
		line := s.scanner.Text()

		if line == "" {
			if sawField && len(dataLines) > 0 {
				return event, []byte(strings.Join(dataLines, "\n")), nil
			}
			// Frame without data (e.g. only a comment ran through): keep going.
			event = ""
			sawField = false
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue // keep-alive comment
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			event = value
			sawField = true
		case "data":
			dataLines = append(dataLines, value)
			sawField = true
		}
	}

	if err := s.scanner.Err(); err != nil {
		return "", nil, err
	}
	// Trailing frame without terminating blank line.
	if len(dataLines) > 0 {
		return event, []byte(strings.Join(dataLines, "\n")), nil
	}
	return "", nil, io.EOF
}

// Close releases the underlying response body. Safe to call while a Recv
// is blocked; the blocked read fails and the stream ends.
func (s *SnapshotStream) Close() error {
	return s.body.Close()
}
