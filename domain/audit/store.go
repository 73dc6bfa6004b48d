package audit

import (
	"context"

	"github.com/helixml/diffsum/domain/query"
)

// DefaultMaxRecords is the retention bound of the log.
const DefaultMaxRecords = 1000

// Store persists audit records.
type Store interface {
	// Save appends a record. Records are never updated.
	Save(ctx context.Context, record Record) (Record, error)

	// Find returns records matching the given options.
	Find(ctx context.Context, options ...query.Option) ([]Record, error)

	// Count returns the number of records matching the given options.
	Count(ctx context.Context, options ...query.Option) (int64, error)

	// Prune deletes all but the keep most recent records and returns the
	// number deleted.
	Prune(ctx context.Context, keep int) (int64, error)
}

// WithSessionID filters by session.
func WithSessionID(id string) query.Option {
	return query.Equal("session_id", id)
}

// WithRepoPath filters by repository path tag.
func WithRepoPath(path string) query.Option {
	return query.Equal("repo_path", path)
}

// WithChronological orders oldest first. Record IDs are time-ordered and
// break ties within the same timestamp.
func WithChronological() query.Option {
	return query.Chain(
		query.OrderBy("recorded_at", query.Ascending),
		query.OrderBy("id", query.Ascending),
	)
}

// WithNewestFirst orders newest first.
func WithNewestFirst() query.Option {
	return query.Chain(
		query.OrderBy("recorded_at", query.Descending),
		query.OrderBy("id", query.Descending),
	)
}
