package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/helixml/diffsum/domain/audit"
	"github.com/helixml/diffsum/domain/budget"
	"github.com/helixml/diffsum/domain/change"
	"github.com/helixml/diffsum/domain/pipeline"
	"github.com/helixml/diffsum/infrastructure/enricher"
	"github.com/helixml/diffsum/infrastructure/template"
	"github.com/helixml/diffsum/internal/log"
)

// Summarizer makes the generation calls of a pipeline run.
type Summarizer interface {
	SummarizeUnit(ctx context.Context, req enricher.UnitRequest) (change.Summary, audit.Record, error)
	Aggregate(ctx context.Context, req enricher.AggregateRequest) (string, audit.Record, error)
	CheckTemplate(id string) error
}

// RunRequest describes one pipeline run.
type RunRequest struct {
	Units      []change.Unit
	TemplateID string
	Language   string
	BranchHint string
	Model      string
	RepoPath   string
}

// Pipeline runs the layered summarization: one call per change unit, then
// one aggregation call over the unit summaries.
type Pipeline struct {
	summarizer  Summarizer
	auditLog    *AuditLog
	capacities  budget.CapacityTable
	gate        budget.Gate
	parallelism int
	logger      *slog.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithParallelism summarizes up to n units concurrently. Values below 2 keep
// the run sequential.
func WithParallelism(n int) PipelineOption {
	return func(p *Pipeline) {
		if n < 1 {
			n = 1
		}
		p.parallelism = n
	}
}

// WithCapacityTable sets the model capacity table used by
// ShouldUseLayeredForModel.
func WithCapacityTable(t budget.CapacityTable) PipelineOption {
	return func(p *Pipeline) { p.capacities = t }
}

// WithGate sets the budget gate.
func WithGate(g budget.Gate) PipelineOption {
	return func(p *Pipeline) { p.gate = g }
}

// NewPipeline creates a Pipeline.
func NewPipeline(summarizer Summarizer, auditLog *AuditLog, logger *slog.Logger, opts ...PipelineOption) (*Pipeline, error) {
	if summarizer == nil {
		return nil, errors.New("NewPipeline: nil summarizer")
	}
	if auditLog == nil {
		return nil, errors.New("NewPipeline: nil audit log")
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pipeline{
		summarizer:  summarizer,
		auditLog:    auditLog,
		capacities:  budget.DefaultCapacityTable(),
		gate:        budget.NewGate(budget.DefaultSafeLimit),
		parallelism: 1,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// ShouldUseLayered reports whether sending diffText in one request would
// likely exceed the budget of a model with the given capacity. The request
// is sized with the fixed request overhead.
func (p *Pipeline) ShouldUseLayered(diffText string, declaredMax int, known bool) bool {
	return p.gate.IsOverBudget(budget.EstimateTexts(diffText), declaredMax, known)
}

// ShouldUseLayeredForModel looks up the model's capacity and applies the
// budget gate. Unknown models use the default safe limit.
func (p *Pipeline) ShouldUseLayeredForModel(diffText, model string) bool {
	return p.CheckBudget(diffText, model, 0).OverBudget
}

// BudgetCheck is the outcome of sizing a diff against a model. Tokens is
// the estimate of the diff text; RequestTokens adds the request overhead and
// is what the gate compares with Limit.
type BudgetCheck struct {
	Model         string
	Tokens        int
	RequestTokens int
	DeclaredMax   int
	Known         bool
	Limit         int
	OverBudget    bool
}

// CheckBudget estimates diffText and compares it with the safe limit of the
// model. A positive declaredMax overrides the capacity table.
func (p *Pipeline) CheckBudget(diffText, model string, declaredMax int) BudgetCheck {
	known := declaredMax > 0
	if !known {
		declaredMax, known = p.capacities.Lookup(model)
	}
	if !known {
		p.logger.Debug("using default safe limit",
			slog.String("model", model),
			slog.String("reason", pipeline.ErrBudgetConfigMissing.Error()),
			slog.Int("limit", p.gate.Limit(0, false)),
		)
	}

	requestTokens := budget.EstimateTexts(diffText)
	return BudgetCheck{
		Model:         model,
		Tokens:        budget.Estimate(diffText),
		RequestTokens: requestTokens,
		DeclaredMax:   declaredMax,
		Known:         known,
		Limit:         p.gate.Limit(declaredMax, known),
		OverBudget:    p.gate.IsOverBudget(requestTokens, declaredMax, known),
	}
}

// AuditRecords returns the audit records of one session in write order.
func (p *Pipeline) AuditRecords(ctx context.Context, sessionID string) ([]audit.Record, error) {
	return p.auditLog.BySession(ctx, sessionID)
}

// Run executes the pipeline. Progress is reported to observer, which may be
// nil. Any failure ends the run; the audit records written so far remain
// readable through the session ID carried by *pipeline.Error.
func (p *Pipeline) Run(ctx context.Context, req RunRequest, observer pipeline.Observer) (pipeline.Result, error) {
	if len(req.Units) == 0 {
		return pipeline.Result{}, &pipeline.Error{Kind: pipeline.ErrNoUnits, State: pipeline.StateInit}
	}
	if observer == nil {
		observer = pipeline.NoopObserver{}
	}
	if req.TemplateID == "" {
		req.TemplateID = template.DefaultID
	}

	session := pipeline.NewSession(len(req.Units) + 1)
	if err := p.summarizer.CheckTemplate(req.TemplateID); err != nil {
		p.logger.ErrorContext(log.WithSessionID(ctx, session.ID()), "pipeline rejected",
			slog.String("template_id", req.TemplateID),
			slog.String("error", err.Error()),
		)
		return pipeline.Result{}, &pipeline.Error{
			Kind:      pipeline.ErrTemplateNotFound,
			SessionID: session.ID(),
			State:     pipeline.StateInit,
			Err:       err,
		}
	}

	units := make([]change.Unit, len(req.Units))
	copy(units, req.Units)

	r := &run{
		pipeline:  p,
		req:       req,
		units:     units,
		observer:  observer,
		sessionID: session.ID(),
		total:     session.Total(),
		session:   session,
		start:     time.Now(),
	}
	ctx = log.WithSessionID(ctx, r.sessionID)

	r.emit(ctx, pipeline.StateInit, "starting", "")

	estimate := budget.EstimateTexts(change.JoinDiffs(units))
	r.emit(ctx, pipeline.StateEstimating, "estimating tokens", "")
	p.logger.InfoContext(ctx, "pipeline started",
		slog.Int("units", len(units)),
		slog.Int("estimated_tokens", estimate),
		slog.Int("parallelism", p.parallelism),
	)

	var err error
	if p.parallelism > 1 && len(units) > 1 {
		err = r.summarizeParallel(ctx)
	} else {
		err = r.summarizeSequential(ctx)
	}
	if err != nil {
		return pipeline.Result{}, err
	}

	if ctx.Err() != nil {
		return pipeline.Result{}, r.cancel(ctx, pipeline.StateAggregating)
	}

	message, err := r.aggregate(ctx)
	if err != nil {
		return pipeline.Result{}, err
	}

	duration := time.Since(r.start)
	r.advance(r.total)
	r.emit(ctx, pipeline.StateCompleted, "completed", "")
	p.logger.InfoContext(ctx, "pipeline completed",
		slog.Duration("duration", duration),
	)

	return pipeline.NewResult(r.sessionID, message, r.summaries, duration, r.recordIDs), nil
}

// run holds the mutable state of one Run call.
type run struct {
	pipeline  *Pipeline
	req       RunRequest
	units     []change.Unit
	observer  pipeline.Observer
	sessionID string
	total     int
	start     time.Time

	mu        sync.Mutex
	session   pipeline.Session
	summaries []change.Summary
	recordIDs []string
}

func (r *run) summarizeSequential(ctx context.Context) error {
	total := r.total
	for i, unit := range r.units {
		if ctx.Err() != nil {
			return r.cancel(ctx, pipeline.StateSummarizing)
		}

		r.emit(ctx, pipeline.StateSummarizing, fmt.Sprintf("summarizing %s (%d/%d)", unit.Path(), i+1, total), unit.Path())

		summary, rec, err := r.pipeline.summarizer.SummarizeUnit(ctx, r.unitRequest(unit, i+1))
		id := r.record(ctx, rec)
		if err != nil {
			return r.fail(ctx, pipeline.StateSummarizing, i+1, unit.Path(), err)
		}

		r.mu.Lock()
		r.summaries = append(r.summaries, summary)
		r.recordIDs = append(r.recordIDs, id)
		r.mu.Unlock()

		r.advance(i + 1)
		r.emit(ctx, pipeline.StateSummarizing, fmt.Sprintf("summarized %s", unit.Path()), unit.Path())
	}
	return nil
}

// summarizeParallel summarizes units concurrently. Each unit keeps its step
// index and results are collected in unit order.
func (r *run) summarizeParallel(ctx context.Context) error {
	summaries := make([]change.Summary, len(r.units))
	ids := make([]string, len(r.units))
	done := make([]bool, len(r.units))
	completed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.pipeline.parallelism)

	for i, unit := range r.units {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			summary, rec, err := r.pipeline.summarizer.SummarizeUnit(gctx, r.unitRequest(unit, i+1))
			id := r.record(ctx, rec)
			if err != nil {
				return &pipeline.Error{
					Kind:      kindOf(err),
					SessionID: r.sessionID,
					State:     pipeline.StateSummarizing,
					Step:      i + 1,
					Path:      unit.Path(),
					Err:       err,
				}
			}

			r.mu.Lock()
			summaries[i] = summary
			ids[i] = id
			done[i] = true
			completed++
			r.session = r.session.Advance(completed)
			event := r.eventLocked(pipeline.StateSummarizing, fmt.Sprintf("summarized %s", unit.Path()), unit.Path())
			event.Summaries = completedInOrder(summaries, done)
			r.observer.OnProgress(ctx, event)
			r.mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return r.cancel(ctx, pipeline.StateSummarizing)
		}
		var perr *pipeline.Error
		if errors.As(err, &perr) {
			r.emit(ctx, pipeline.StateFailed, perr.Error(), perr.Path)
			r.pipeline.logger.ErrorContext(ctx, "pipeline failed", slog.String("error", perr.Error()))
			return perr
		}
		return r.fail(ctx, pipeline.StateSummarizing, 0, "", err)
	}

	r.mu.Lock()
	r.summaries = summaries
	r.recordIDs = ids
	r.mu.Unlock()
	return nil
}

func (r *run) aggregate(ctx context.Context) (string, error) {
	total := r.total
	r.emit(ctx, pipeline.StateAggregating, "aggregating summaries", "")

	message, rec, err := r.pipeline.summarizer.Aggregate(ctx, enricher.AggregateRequest{
		Summaries:  r.summaries,
		BranchHint: r.req.BranchHint,
		TemplateID: r.req.TemplateID,
		Language:   r.req.Language,
		SessionID:  r.sessionID,
		StepIndex:  total,
		TotalSteps: total,
		Model:      r.req.Model,
		RepoPath:   r.req.RepoPath,
	})
	id := r.record(ctx, rec)
	if err != nil {
		return "", r.fail(ctx, pipeline.StateAggregating, total, "", err)
	}

	r.mu.Lock()
	r.recordIDs = append(r.recordIDs, id)
	r.mu.Unlock()
	return message, nil
}

func (r *run) unitRequest(unit change.Unit, step int) enricher.UnitRequest {
	return enricher.UnitRequest{
		Unit:       unit,
		SessionID:  r.sessionID,
		StepIndex:  step,
		TotalSteps: r.total,
		Model:      r.req.Model,
		RepoPath:   r.req.RepoPath,
	}
}

// record persists rec and returns its ID. Records without an ID come from
// calls that never reached the backend and are skipped. Audit failures are
// logged and do not stop the run.
func (r *run) record(ctx context.Context, rec audit.Record) string {
	if rec.ID() == "" {
		return ""
	}
	id, err := r.pipeline.auditLog.Record(context.WithoutCancel(ctx), rec)
	if err != nil {
		r.pipeline.logger.WarnContext(ctx, "failed to write audit record",
			slog.String("record_id", rec.ID()),
			slog.String("error", err.Error()),
		)
		return rec.ID()
	}
	return id
}

// fail ends the run after a summarizer error.
func (r *run) fail(ctx context.Context, state pipeline.State, step int, path string, err error) error {
	if ctx.Err() != nil {
		return r.cancel(ctx, state)
	}

	perr := &pipeline.Error{
		Kind:      kindOf(err),
		SessionID: r.sessionID,
		State:     state,
		Step:      step,
		Path:      path,
		Err:       err,
	}
	r.emit(ctx, pipeline.StateFailed, perr.Error(), path)
	r.pipeline.logger.ErrorContext(ctx, "pipeline failed",
		slog.String("state", string(state)),
		slog.Int("step", step),
		slog.String("error", err.Error()),
	)
	return perr
}

// cancel writes the cancellation record and ends the run.
func (r *run) cancel(ctx context.Context, state pipeline.State) error {
	current := r.currentStep()
	total := r.total
	detached := context.WithoutCancel(ctx)

	rec := audit.NewFailure(r.sessionID, &audit.Step{
		Type:        audit.StepCancelled,
		Index:       current,
		Total:       total,
		Description: fmt.Sprintf("cancelled during %s", state),
	}, audit.Request{Model: r.req.Model}, pipeline.ErrCancelled.Error(), time.Since(r.start)).WithRepoPath(r.req.RepoPath)
	r.record(detached, rec)

	r.emit(detached, pipeline.StateFailed, "cancelled", "")
	r.pipeline.logger.WarnContext(ctx, "pipeline cancelled",
		slog.Int("current", current),
		slog.Int("total", total),
	)

	return &pipeline.Error{
		Kind:      pipeline.ErrCancelled,
		SessionID: r.sessionID,
		State:     state,
		Step:      current,
		Err:       context.Cause(ctx),
	}
}

func (r *run) advance(n int) {
	r.mu.Lock()
	r.session = r.session.Advance(n)
	r.mu.Unlock()
}

func (r *run) currentStep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.Current()
}

func (r *run) emit(ctx context.Context, state pipeline.State, status, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer.OnProgress(ctx, r.eventLocked(state, status, path))
}

func (r *run) eventLocked(state pipeline.State, status, path string) pipeline.ProgressEvent {
	summaries := make([]change.Summary, len(r.summaries))
	copy(summaries, r.summaries)
	return pipeline.ProgressEvent{
		SessionID:   r.sessionID,
		State:       state,
		Current:     r.session.Current(),
		Total:       r.total,
		Status:      status,
		CurrentPath: path,
		Summaries:   summaries,
	}
}

func completedInOrder(summaries []change.Summary, done []bool) []change.Summary {
	out := make([]change.Summary, 0, len(summaries))
	for i, ok := range done {
		if ok {
			out = append(out, summaries[i])
		}
	}
	return out
}

// kindOf maps a summarizer error to a pipeline error kind.
func kindOf(err error) error {
	switch {
	case errors.Is(err, template.ErrNotFound):
		return pipeline.ErrTemplateNotFound
	default:
		return pipeline.ErrBackend
	}
}
