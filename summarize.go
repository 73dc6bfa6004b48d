package diffsum

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/helixml/diffsum/application/service"
	"github.com/helixml/diffsum/domain/change"
	"github.com/helixml/diffsum/domain/pipeline"
	"github.com/helixml/diffsum/infrastructure/enricher"
	"github.com/helixml/diffsum/infrastructure/template"
	"github.com/helixml/diffsum/internal/log"
)

// Mode is how a change was summarized.
type Mode string

// Summarization modes.
const (
	ModeSingleShot Mode = "single_shot"
	ModeLayered    Mode = "layered"
)

// SummarizeRequest describes a change to write a commit message for.
// Empty fields take the client's configured defaults.
type SummarizeRequest struct {
	Units        []change.Unit
	BranchHint   string
	RepoPath     string
	TemplateID   string
	Language     string
	Model        string
	ForceLayered bool
}

// Outcome is a generated commit message and how it was produced.
type Outcome struct {
	Mode      Mode
	SessionID string
	Message   string
	Summaries []change.Summary
	RecordIDs []string
	Duration  time.Duration
}

// Summarize writes a commit message for the request's units. Changes over
// the model's safe budget go through the layered pipeline when layered mode
// is enabled; everything else is sent in a single request. Failures are
// returned as *pipeline.Error.
func (c *Client) Summarize(ctx context.Context, req SummarizeRequest, observer pipeline.Observer) (Outcome, error) {
	if c.closed.Load() {
		return Outcome{}, ErrClientClosed
	}
	if c.readOnly {
		return Outcome{}, ErrNoProvider
	}
	if len(req.Units) == 0 {
		return Outcome{}, &pipeline.Error{Kind: pipeline.ErrNoUnits, State: pipeline.StateInit}
	}
	if observer == nil {
		observer = pipeline.NoopObserver{}
	}

	run := c.withDefaults(service.RunRequest{
		Units:      req.Units,
		TemplateID: req.TemplateID,
		Language:   req.Language,
		BranchHint: req.BranchHint,
		Model:      req.Model,
		RepoPath:   req.RepoPath,
	})

	if c.useLayered(req, run.Model) {
		res, err := c.Pipeline.Run(ctx, run, observer)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{
			Mode:      ModeLayered,
			SessionID: res.SessionID(),
			Message:   res.Message(),
			Summaries: res.Summaries(),
			RecordIDs: res.AuditRecordIDs(),
			Duration:  res.Duration(),
		}, nil
	}

	return c.singleShot(ctx, run, observer)
}

func (c *Client) useLayered(req SummarizeRequest, model string) bool {
	if !c.layered {
		return false
	}
	if req.ForceLayered {
		return true
	}
	return c.Estimate(change.JoinDiffs(req.Units), model).OverBudget
}

func (c *Client) singleShot(ctx context.Context, run service.RunRequest, observer pipeline.Observer) (Outcome, error) {
	start := time.Now()
	session := pipeline.NewSession(1)
	ctx = log.WithSessionID(ctx, session.ID())

	event := func(state pipeline.State, current int, status string) pipeline.ProgressEvent {
		return pipeline.ProgressEvent{
			SessionID: session.ID(),
			State:     state,
			Current:   current,
			Total:     1,
			Status:    status,
		}
	}

	observer.OnProgress(ctx, event(pipeline.StateAggregating, 0, "generating commit message"))

	message, rec, err := c.summarizer.SingleShot(ctx, run.Units, enricher.AggregateRequest{
		BranchHint: run.BranchHint,
		TemplateID: run.TemplateID,
		Language:   run.Language,
		SessionID:  session.ID(),
		StepIndex:  1,
		TotalSteps: 1,
		Model:      run.Model,
		RepoPath:   run.RepoPath,
	})

	var recordIDs []string
	if rec.ID() != "" {
		if _, recErr := c.Audit.Record(context.WithoutCancel(ctx), rec); recErr != nil {
			c.logger.WarnContext(ctx, "failed to write audit record", slog.Any("error", recErr))
		}
		recordIDs = append(recordIDs, rec.ID())
	}

	if err != nil {
		kind := pipeline.ErrBackend
		switch {
		case ctx.Err() != nil:
			kind = pipeline.ErrCancelled
		case errors.Is(err, template.ErrNotFound):
			kind = pipeline.ErrTemplateNotFound
		}
		observer.OnProgress(context.WithoutCancel(ctx), event(pipeline.StateFailed, 0, err.Error()))
		c.logger.ErrorContext(ctx, "single-shot summary failed", slog.Any("error", err))
		return Outcome{}, &pipeline.Error{
			Kind:      kind,
			SessionID: session.ID(),
			State:     pipeline.StateFailed,
			Step:      1,
			Err:       err,
		}
	}

	observer.OnProgress(ctx, event(pipeline.StateCompleted, 1, "done"))
	return Outcome{
		Mode:      ModeSingleShot,
		SessionID: session.ID(),
		Message:   message,
		RecordIDs: recordIDs,
		Duration:  time.Since(start),
	}, nil
}
