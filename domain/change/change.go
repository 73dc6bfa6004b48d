// Package change holds the per-file units of a code change and their summaries.
package change

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound indicates no diff exists for the requested path.
var ErrNotFound = errors.New("diff not found")

// Unit is one file's change within a multi-file commit.
type Unit struct {
	path string
	diff string
}

// NewUnit creates a new Unit.
func NewUnit(path, diff string) Unit {
	return Unit{path: path, diff: diff}
}

// Path returns the file path.
func (u Unit) Path() string { return u.path }

// Diff returns the raw diff text.
func (u Unit) Diff() string { return u.diff }

// Summary is the natural-language summary of one Unit.
type Summary struct {
	path   string
	text   string
	tokens int
}

// NewSummary creates a new Summary.
func NewSummary(path, text string, tokens int) Summary {
	return Summary{path: path, text: text, tokens: tokens}
}

// Path returns the summarized file path.
func (s Summary) Path() string { return s.path }

// Text returns the summary text.
func (s Summary) Text() string { return s.text }

// Tokens returns the estimated tokens consumed by the summary call.
func (s Summary) Tokens() int { return s.tokens }

// DiffProvider reads the textual diff of a changed file.
type DiffProvider interface {
	// Diff returns the diff for path, or an error wrapping ErrNotFound.
	Diff(ctx context.Context, path string) (string, error)
}

// CollectUnits builds units for paths in the given order using provider.
// Paths are de-duplicated; the first occurrence keeps its position.
func CollectUnits(ctx context.Context, provider DiffProvider, paths []string) ([]Unit, error) {
	seen := make(map[string]struct{}, len(paths))
	units := make([]Unit, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}

		diff, err := provider.Diff(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("diff %s: %w", p, err)
		}
		units = append(units, NewUnit(p, diff))
	}
	return units, nil
}

// JoinDiffs concatenates every unit's diff into the single-shot request body.
func JoinDiffs(units []Unit) string {
	var b strings.Builder
	for i, u := range units {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(u.Diff())
	}
	return b.String()
}

// Stats counts files and changed lines across a change.
type Stats struct {
	Files     int
	Additions int
	Deletions int
}

// CountStats derives Stats from unified diff text in each unit.
func CountStats(units []Unit) Stats {
	stats := Stats{Files: len(units)}
	for _, u := range units {
		for _, line := range strings.Split(u.Diff(), "\n") {
			switch {
			case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			case strings.HasPrefix(line, "+"):
				stats.Additions++
			case strings.HasPrefix(line, "-"):
				stats.Deletions++
			}
		}
	}
	return stats
}
