// Package audit defines the append-only conversation log of backend exchanges.
package audit

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// StepType tags what a logged exchange was for.
type StepType string

// StepType values.
const (
	StepFileAnalysis StepType = "file_analysis"
	StepAggregation  StepType = "aggregation"
	StepSingleShot   StepType = "single_shot"
	StepCancelled    StepType = "cancelled"
)

// unknownError replaces an empty error text on failed records.
const unknownError = "unknown error"

// NewID returns a new lexically time-ordered record ID.
func NewID() string {
	return ulid.Make().String()
}

// Step describes where an exchange sits within a pipeline run.
// Every field is optional.
type Step struct {
	Type        StepType
	Index       int
	Total       int
	FilePath    string
	Description string
}

// Message is one message of an outbound request.
type Message struct {
	Role    string
	Content string
}

// Request is the outbound half of an exchange.
type Request struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Messages    []Message
}

// Usage is backend-reported token usage.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the inbound half of an exchange. Content is the raw text as
// returned by the backend; CleanContent is the sanitized text.
type Response struct {
	Content      string
	CleanContent string
	Model        string
	FinishReason string
	Usage        *Usage
}

// Record is one logged exchange. Records are never modified after creation.
type Record struct {
	id        string
	timestamp time.Time
	sessionID string
	step      *Step
	repoPath  string
	request   Request
	response  *Response
	success   bool
	errText   string
	duration  time.Duration
}

// NewSuccess creates a record for an exchange that produced a response.
func NewSuccess(sessionID string, step *Step, req Request, resp Response, duration time.Duration) Record {
	return Record{
		id:        NewID(),
		timestamp: time.Now().UTC(),
		sessionID: sessionID,
		step:      copyStep(step),
		request:   copyRequest(req),
		response:  &resp,
		success:   true,
		duration:  duration,
	}
}

// NewFailure creates a record for an exchange that failed.
// An empty error text is replaced so that failed records always explain themselves.
func NewFailure(sessionID string, step *Step, req Request, errText string, duration time.Duration) Record {
	if strings.TrimSpace(errText) == "" {
		errText = unknownError
	}
	return Record{
		id:        NewID(),
		timestamp: time.Now().UTC(),
		sessionID: sessionID,
		step:      copyStep(step),
		request:   copyRequest(req),
		success:   false,
		errText:   errText,
		duration:  duration,
	}
}

// Reconstruct recreates a Record from persistence.
func Reconstruct(
	id string,
	timestamp time.Time,
	sessionID string,
	step *Step,
	repoPath string,
	req Request,
	resp *Response,
	success bool,
	errText string,
	duration time.Duration,
) Record {
	return Record{
		id:        id,
		timestamp: timestamp,
		sessionID: sessionID,
		step:      step,
		repoPath:  repoPath,
		request:   req,
		response:  resp,
		success:   success,
		errText:   errText,
		duration:  duration,
	}
}

// WithRepoPath returns a copy of the record tagged with a repository path.
func (r Record) WithRepoPath(path string) Record {
	r.repoPath = path
	return r
}

// ID returns the record ID.
func (r Record) ID() string { return r.id }

// Timestamp returns when the record was created.
func (r Record) Timestamp() time.Time { return r.timestamp }

// SessionID returns the owning session, or "" for exchanges outside a session.
func (r Record) SessionID() string { return r.sessionID }

// Step returns the step metadata, or nil.
func (r Record) Step() *Step { return copyStep(r.step) }

// RepoPath returns the repository path tag, or "".
func (r Record) RepoPath() string { return r.repoPath }

// Request returns the outbound request.
func (r Record) Request() Request { return copyRequest(r.request) }

// Response returns the inbound response, or nil when the exchange failed.
func (r Record) Response() *Response {
	if r.response == nil {
		return nil
	}
	resp := *r.response
	return &resp
}

// Success reports whether the exchange produced a response.
func (r Record) Success() bool { return r.success }

// Error returns the error text of a failed exchange.
func (r Record) Error() string { return r.errText }

// Duration returns how long the exchange took.
func (r Record) Duration() time.Duration { return r.duration }

func copyStep(s *Step) *Step {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func copyRequest(req Request) Request {
	msgs := make([]Message, len(req.Messages))
	copy(msgs, req.Messages)
	req.Messages = msgs
	return req
}
