package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RetentionSweeper prunes the audit log on a timer. Record prunes on every
// write of this process; the sweeper also covers records written by other
// processes sharing the database.
type RetentionSweeper struct {
	auditLog *AuditLog
	logger   *slog.Logger
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRetentionSweeper creates a sweeper. An interval of zero or less
// disables it.
func NewRetentionSweeper(auditLog *AuditLog, interval time.Duration, logger *slog.Logger) *RetentionSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetentionSweeper{
		auditLog: auditLog,
		logger:   logger,
		interval: interval,
	}
}

// Start begins sweeping in a background goroutine.
// If disabled, this is a no-op.
func (s *RetentionSweeper) Start(ctx context.Context) {
	if s.interval <= 0 || s.auditLog == nil {
		s.logger.Info("audit retention sweep disabled")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Go(func() {
		s.run(ctx)
	})

	s.logger.Info("audit retention sweep started", slog.Duration("interval", s.interval))
}

// Stop cancels the background goroutine and waits for it to finish.
func (s *RetentionSweeper) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *RetentionSweeper) run(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *RetentionSweeper) sweep(ctx context.Context) {
	deleted, err := s.auditLog.Prune(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("audit retention sweep failed", slog.String("error", err.Error()))
		return
	}
	if deleted > 0 {
		s.logger.Info("audit retention sweep removed records", slog.Int64("deleted", deleted))
	}
}
