package tracking

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/helixml/diffsum/domain/pipeline"
)

// ChannelObserver delivers events on a buffered channel. When the buffer is
// full the event is dropped so a slow reader never stalls the pipeline.
type ChannelObserver struct {
	mu      sync.Mutex
	events  chan pipeline.ProgressEvent
	closed  bool
	dropped atomic.Int64
}

// NewChannelObserver creates a ChannelObserver with the given buffer size.
func NewChannelObserver(buffer int) *ChannelObserver {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelObserver{events: make(chan pipeline.ProgressEvent, buffer)}
}

// Events returns the receive side of the channel. It is closed by Close.
func (o *ChannelObserver) Events() <-chan pipeline.ProgressEvent {
	return o.events
}

// OnProgress enqueues event without blocking.
func (o *ChannelObserver) OnProgress(_ context.Context, event pipeline.ProgressEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}

	select {
	case o.events <- event:
	default:
		o.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (o *ChannelObserver) Dropped() int64 {
	return o.dropped.Load()
}

// Close closes the channel. Later events are discarded.
func (o *ChannelObserver) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.events)
	}
	return nil
}

var _ pipeline.Observer = (*ChannelObserver)(nil)
