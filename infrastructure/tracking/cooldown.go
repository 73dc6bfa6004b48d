package tracking

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/helixml/diffsum/domain/pipeline"
)

var (
	_ pipeline.Observer = (*Throttle)(nil)
	_ io.Closer         = (*Throttle)(nil)
)

// Throttle wraps an Observer and limits how often events of one session
// are delivered. Terminal events (completed, failed) are always delivered
// at once. Other events are delivered at most once per interval; the
// latest pending event is flushed when the interval elapses or when a
// terminal event arrives.
type Throttle struct {
	inner    pipeline.Observer
	interval time.Duration
	mu       sync.Mutex
	entries  map[string]*throttleEntry
}

type throttleEntry struct {
	lastFlush time.Time
	pending   *pipeline.ProgressEvent
	timer     *time.Timer
}

// NewThrottle creates a Throttle delivering to inner at most once per
// interval per session.
func NewThrottle(inner pipeline.Observer, interval time.Duration) *Throttle {
	return &Throttle{
		inner:    inner,
		interval: interval,
		entries:  make(map[string]*throttleEntry),
	}
}

// OnProgress receives an event. Pending events superseded by a terminal
// event are dropped.
func (t *Throttle) OnProgress(ctx context.Context, event pipeline.ProgressEvent) {
	id := event.SessionID

	t.mu.Lock()

	if event.State.IsTerminal() {
		if entry := t.entries[id]; entry != nil {
			if entry.timer != nil {
				entry.timer.Stop()
			}
			delete(t.entries, id)
		}
		t.mu.Unlock()
		t.inner.OnProgress(ctx, event)
		return
	}

	entry, exists := t.entries[id]
	if !exists {
		entry = &throttleEntry{}
		t.entries[id] = entry
	}

	elapsed := time.Since(entry.lastFlush)
	if elapsed >= t.interval {
		if entry.timer != nil {
			entry.timer.Stop()
			entry.timer = nil
		}
		entry.pending = nil
		entry.lastFlush = time.Now()
		t.mu.Unlock()
		t.inner.OnProgress(ctx, event)
		return
	}

	e := event
	entry.pending = &e

	if entry.timer == nil {
		entry.timer = time.AfterFunc(t.interval-elapsed, func() {
			t.flushPending(id)
		})
	}

	t.mu.Unlock()
}

// Close flushes all pending events and stops all timers.
func (t *Throttle) Close() error {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[string]*throttleEntry)
	t.mu.Unlock()

	for _, entry := range entries {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		if entry.pending != nil {
			t.inner.OnProgress(context.Background(), *entry.pending)
		}
	}
	return nil
}

func (t *Throttle) flushPending(id string) {
	t.mu.Lock()
	entry, exists := t.entries[id]
	if !exists || entry.pending == nil {
		if exists {
			entry.timer = nil
		}
		t.mu.Unlock()
		return
	}

	event := *entry.pending
	entry.pending = nil
	entry.lastFlush = time.Now()
	entry.timer = nil
	t.mu.Unlock()

	t.inner.OnProgress(context.Background(), event)
}
