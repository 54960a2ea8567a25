package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/craftpad-ai/artifact-platform/internal/model"
)

// endOfStream is the literal final frame signaling completion.
const endOfStream = "[DONE]"

// Sink delivers normalized stream events to one client. Implementations must
// be safe for use after Close: sending into a closed sink is a silent no-op,
// never a crash.
type Sink interface {
	Send(event model.StreamEvent) error
	// Close emits the end-of-stream sentinel and seals the sink. Idempotent.
	Close()
}

// SSESink frames events as server-sent events: each event is one
// "data: <json>" line followed by a blank line, and the stream ends with the
// literal [DONE] frame.
type SSESink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
}

// NewSSESink wraps a ResponseWriter, setting SSE headers. Fails if the
// writer cannot flush.
func NewSSESink(w http.ResponseWriter) (*SSESink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering

	return &SSESink{w: w, flusher: flusher}, nil
}

// Send writes one event frame. Events are emitted in call order; a send
// after Close is dropped.
func (s *SSESink) Send(event model.StreamEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Close writes the sentinel frame and seals the sink.
func (s *SSESink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	fmt.Fprintf(s.w, "data: %s\n\n", endOfStream)
	s.flusher.Flush()
}
