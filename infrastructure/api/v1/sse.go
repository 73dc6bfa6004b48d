package v1

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/helixml/diffsum/domain/pipeline"
	"github.com/helixml/diffsum/infrastructure/api/v1/dto"
)

// Server-sent event names.
const (
	eventProgress = "progress"
	eventResult   = "result"
	eventError    = "error"
)

var _ pipeline.Observer = (*eventStream)(nil)

// eventStream writes server-sent events. It is safe for concurrent use and
// drops events once closed, so late throttle flushes never touch a finished
// response.
type eventStream struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
}

// newEventStream starts an event stream response. It returns false when the
// writer cannot flush.
func newEventStream(w http.ResponseWriter) (*eventStream, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &eventStream{w: w, flusher: flusher}, true
}

// OnProgress implements pipeline.Observer.
func (s *eventStream) OnProgress(_ context.Context, event pipeline.ProgressEvent) {
	s.send(eventProgress, dto.NewProgressEvent(event))
}

func (s *eventStream) send(name string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	_, _ = fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, payload)
	s.flusher.Flush()
}

func (s *eventStream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
