package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/helixml/diffsum/domain/change"
)

// Error kinds. Match with errors.Is.
var (
	// ErrEstimationUnavailable is reserved for exact tokenizer failures; the
	// heuristic estimator never produces it.
	ErrEstimationUnavailable = errors.New("estimation unavailable")

	// ErrBudgetConfigMissing means a model's capacity is unknown and the
	// default safe limit applies. Never fatal.
	ErrBudgetConfigMissing = errors.New("budget config missing")

	// ErrBackend means a generation call failed.
	ErrBackend = errors.New("backend error")

	// ErrTemplateNotFound means the prompt template does not exist.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrCancelled means the caller stopped the run.
	ErrCancelled = errors.New("cancelled")

	// ErrNoUnits means a run was requested with nothing to summarize.
	ErrNoUnits = errors.New("no change units")
)

// Error carries the step context of a failed run. SessionID lets callers
// read the audit records the run wrote before it failed.
type Error struct {
	Kind      error
	SessionID string
	State     State
	Step      int
	Path      string
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Step > 0 {
		fmt.Fprintf(&b, " at step %d", e.Step)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " (%s)", e.Path)
	}
	if e.Err != nil && !errors.Is(e.Kind, e.Err) {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is reports whether target is the error kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// FallbackMessage builds a deterministic commit message from diff statistics.
// Callers use it when the pipeline fails and an AI summary is unavailable.
func FallbackMessage(stats change.Stats) string {
	noun := "files"
	if stats.Files == 1 {
		noun = "file"
	}
	return fmt.Sprintf("chore: update %d %s (+%d -%d)", stats.Files, noun, stats.Additions, stats.Deletions)
}
