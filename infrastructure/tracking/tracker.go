// Package tracking delivers pipeline progress events to observers.
package tracking

import (
	"context"
	"sync"

	"github.com/helixml/diffsum/domain/pipeline"
)

// Dispatcher fans progress events out to subscribed observers in
// subscription order. It is itself a pipeline.Observer.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers []pipeline.Observer
}

// NewDispatcher creates a Dispatcher with the given initial subscribers.
func NewDispatcher(observers ...pipeline.Observer) *Dispatcher {
	d := &Dispatcher{}
	for _, o := range observers {
		d.Subscribe(o)
	}
	return d
}

// Subscribe adds an observer. Nil observers are ignored.
func (d *Dispatcher) Subscribe(o pipeline.Observer) {
	if o == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers = append(d.subscribers, o)
}

// OnProgress delivers event to every subscriber. Each subscriber receives
// its own copy of the summaries slice.
func (d *Dispatcher) OnProgress(ctx context.Context, event pipeline.ProgressEvent) {
	d.mu.RLock()
	subscribers := make([]pipeline.Observer, len(d.subscribers))
	copy(subscribers, d.subscribers)
	d.mu.RUnlock()

	for _, s := range subscribers {
		e := event
		e.Summaries = append(e.Summaries[:0:0], event.Summaries...)
		s.OnProgress(ctx, e)
	}
}

var _ pipeline.Observer = (*Dispatcher)(nil)
