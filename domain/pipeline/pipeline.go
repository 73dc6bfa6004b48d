// Package pipeline defines the layered summarization run: its session,
// progress events, result, and error kinds.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/helixml/diffsum/domain/change"
)

// State is a step of the pipeline state machine.
type State string

// State values.
const (
	StateInit        State = "init"
	StateEstimating  State = "estimating"
	StateSummarizing State = "summarizing"
	StateAggregating State = "aggregating"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// IsTerminal reports whether no further transitions follow.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Session identifies one pipeline run.
type Session struct {
	id        string
	createdAt time.Time
	total     int
	current   int
}

// NewSession creates a session for a run of total steps.
func NewSession(total int) Session {
	return Session{
		id:        uuid.NewString(),
		createdAt: time.Now().UTC(),
		total:     total,
	}
}

// ID returns the session ID.
func (s Session) ID() string { return s.id }

// CreatedAt returns when the session started.
func (s Session) CreatedAt() time.Time { return s.createdAt }

// Total returns the total number of steps.
func (s Session) Total() int { return s.total }

// Current returns the number of completed steps.
func (s Session) Current() int { return s.current }

// Advance returns a session with current set to n. Current never decreases
// and never exceeds total.
func (s Session) Advance(n int) Session {
	if n > s.total {
		n = s.total
	}
	if n > s.current {
		s.current = n
	}
	return s
}

// ProgressEvent is a snapshot pushed to observers while a run executes.
type ProgressEvent struct {
	SessionID   string
	State       State
	Current     int
	Total       int
	Status      string
	CurrentPath string
	Summaries   []change.Summary
}

// Observer receives progress events. Implementations must return promptly.
type Observer interface {
	OnProgress(ctx context.Context, event ProgressEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, event ProgressEvent)

// OnProgress calls f.
func (f ObserverFunc) OnProgress(ctx context.Context, event ProgressEvent) { f(ctx, event) }

// NoopObserver discards events.
type NoopObserver struct{}

// OnProgress does nothing.
func (NoopObserver) OnProgress(context.Context, ProgressEvent) {}

// Result is the output of a completed run.
type Result struct {
	sessionID string
	message   string
	summaries []change.Summary
	duration  time.Duration
	recordIDs []string
}

// NewResult creates a Result.
func NewResult(sessionID, message string, summaries []change.Summary, duration time.Duration, recordIDs []string) Result {
	s := make([]change.Summary, len(summaries))
	copy(s, summaries)
	ids := make([]string, len(recordIDs))
	copy(ids, recordIDs)
	return Result{
		sessionID: sessionID,
		message:   message,
		summaries: s,
		duration:  duration,
		recordIDs: ids,
	}
}

// SessionID returns the session that produced the result.
func (r Result) SessionID() string { return r.sessionID }

// Message returns the final commit message.
func (r Result) Message() string { return r.message }

// Summaries returns the per-unit summaries in unit order.
func (r Result) Summaries() []change.Summary {
	s := make([]change.Summary, len(r.summaries))
	copy(s, r.summaries)
	return s
}

// Duration returns the wall-clock duration of the run.
func (r Result) Duration() time.Duration { return r.duration }

// AuditRecordIDs returns the audit records written by the run: unit records
// in unit order followed by the aggregation record.
func (r Result) AuditRecordIDs() []string {
	ids := make([]string, len(r.recordIDs))
	copy(ids, r.recordIDs)
	return ids
}
