package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/helixml/diffsum/domain/audit"
	"github.com/helixml/diffsum/domain/query"
)

// AuditLog is the append-only conversation log. Writes are serialized so
// retention always sees a consistent count.
type AuditLog struct {
	store      audit.Store
	maxRecords int
	logger     *slog.Logger
	mu         sync.Mutex
}

// NewAuditLog creates an AuditLog keeping at most maxRecords records.
// A maxRecords of zero or less disables retention.
func NewAuditLog(store audit.Store, maxRecords int, logger *slog.Logger) (*AuditLog, error) {
	if store == nil {
		return nil, errors.New("NewAuditLog: nil store")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLog{
		store:      store,
		maxRecords: maxRecords,
		logger:     logger,
	}, nil
}

// Record appends rec and evicts the oldest records beyond the retention
// bound. It returns the record ID.
func (l *AuditLog) Record(ctx context.Context, rec audit.Record) (string, error) {
	if rec.ID() == "" {
		return "", errors.New("record audit: missing id")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	saved, err := l.store.Save(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("record audit: %w", err)
	}

	if l.maxRecords > 0 {
		deleted, err := l.store.Prune(ctx, l.maxRecords)
		if err != nil {
			return saved.ID(), fmt.Errorf("prune audit log: %w", err)
		}
		if deleted > 0 {
			l.logger.DebugContext(ctx, "pruned audit records", slog.Int64("deleted", deleted))
		}
	}

	return saved.ID(), nil
}

// Prune applies retention immediately and returns the number of records
// removed.
func (l *AuditLog) Prune(ctx context.Context) (int64, error) {
	if l.maxRecords <= 0 {
		return 0, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Prune(ctx, l.maxRecords)
}

// MaxRecords returns the retention bound.
func (l *AuditLog) MaxRecords() int {
	return l.maxRecords
}

// All returns every retained record, oldest first.
func (l *AuditLog) All(ctx context.Context) ([]audit.Record, error) {
	return l.store.Find(ctx, audit.WithChronological())
}

// Recent returns the k most recent records, newest first.
func (l *AuditLog) Recent(ctx context.Context, k int) ([]audit.Record, error) {
	if k <= 0 {
		return []audit.Record{}, nil
	}
	return l.store.Find(ctx, audit.WithNewestFirst(), query.WithLimit(k))
}

// BySession returns the records of one session in the order they were written.
func (l *AuditLog) BySession(ctx context.Context, sessionID string) ([]audit.Record, error) {
	return l.store.Find(ctx, audit.WithSessionID(sessionID), audit.WithChronological())
}

// ByRepoPath returns the records tagged with a repository path, oldest first.
func (l *AuditLog) ByRepoPath(ctx context.Context, repoPath string) ([]audit.Record, error) {
	return l.store.Find(ctx, audit.WithRepoPath(repoPath), audit.WithChronological())
}

// Search returns records matching the given filter. Empty fields match
// everything; a positive limit returns the newest matches first.
func (l *AuditLog) Search(ctx context.Context, params AuditSearchParams) ([]audit.Record, error) {
	var options []query.Option
	if params.SessionID != "" {
		options = append(options, audit.WithSessionID(params.SessionID))
	}
	if params.RepoPath != "" {
		options = append(options, audit.WithRepoPath(params.RepoPath))
	}
	if params.Limit > 0 {
		options = append(options, audit.WithNewestFirst(), query.WithLimit(params.Limit))
	} else {
		options = append(options, audit.WithChronological())
	}
	return l.store.Find(ctx, options...)
}

// AuditSearchParams filters audit records.
type AuditSearchParams struct {
	SessionID string
	RepoPath  string
	Limit     int
}
