package tracking

import (
	"context"
	"log/slog"

	"github.com/helixml/diffsum/domain/pipeline"
	"github.com/helixml/diffsum/internal/log"
)

// LoggingObserver logs progress events. Failures are logged at error level.
type LoggingObserver struct {
	logger *slog.Logger
}

// NewLoggingObserver creates a new LoggingObserver.
func NewLoggingObserver(logger *slog.Logger) *LoggingObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{logger: logger}
}

// OnProgress logs the event.
func (o *LoggingObserver) OnProgress(ctx context.Context, event pipeline.ProgressEvent) {
	attrs := []any{
		slog.String("state", string(event.State)),
		slog.Int("current", event.Current),
		slog.Int("total", event.Total),
	}
	if log.SessionID(ctx) == "" {
		attrs = append(attrs, slog.String(string(log.SessionIDKey), event.SessionID))
	}
	if event.CurrentPath != "" {
		attrs = append(attrs, slog.String("path", event.CurrentPath))
	}

	if event.State == pipeline.StateFailed {
		o.logger.ErrorContext(ctx, event.Status, attrs...)
		return
	}
	o.logger.InfoContext(ctx, event.Status, attrs...)
}

var _ pipeline.Observer = (*LoggingObserver)(nil)
