package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// SetSSEHeaders prepares w for an event stream.
func SetSSEHeaders(w http.ResponseWriter) {
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
}

// WriteSSE writes one SSE frame. id and event are optional.
func WriteSSE(w http.ResponseWriter, id, event string, data any) error {
	var b strings.Builder
	if id != "" {
		fmt.Fprintf(&b, "id: %s\n", id)
	}
	if event != "" {
		fmt.Fprintf(&b, "event: %s\n", event)
	}
	for _, line := range strings.Split(marshalPayload(data), "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")

	if _, err := w.Write([]byte(b.String())); err != nil {
		return err
	}
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

func marshalPayload(data any) string {
	switch payload := data.(type) {
	case string:
		return payload
	case []byte:
		return string(payload)
	default:
		bytes, err := json.Marshal(payload)
		if err != nil {
			return fmt.Sprintf("%v", data)
		}
		return string(bytes)
	}
}

// SSEWriter is a Sink that frames events as server-sent events on a live
// turn, using the event's Seq as the SSE id. Replays through the Redis mirror
// use the mirror's entry ids instead, which clients send back as last_id.
type SSEWriter struct {
	w      http.ResponseWriter
	closed bool
}

func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	return &SSEWriter{w: w}
}

var errClientGone = errors.New("sse client disconnected")

func (s *SSEWriter) Write(_ context.Context, ev Event) error {
	if s.closed {
		return errClientGone
	}
	if err := WriteSSE(s.w, strconv.FormatInt(ev.Seq, 10), string(ev.Type), ev); err != nil {
		s.closed = true
		return fmt.Errorf("write sse frame: %w", err)
	}
	return nil
}
