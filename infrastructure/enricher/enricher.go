// Package enricher turns change units into natural-language summaries and
// commit messages using a text generation backend.
package enricher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/helixml/diffsum/domain/audit"
	"github.com/helixml/diffsum/domain/budget"
	"github.com/helixml/diffsum/domain/change"
	"github.com/helixml/diffsum/infrastructure/cache"
	"github.com/helixml/diffsum/infrastructure/provider"
	"github.com/helixml/diffsum/infrastructure/template"
)

// Generation limits.
const (
	UnitMaxTokens      = 200
	AggregateMaxTokens = 1000
	Temperature        = 0.3
)

// unitCacheID namespaces per-file summaries in the response cache.
const unitCacheID = "file_analysis"

// cacheHitDescription marks audit records served from the cache.
const cacheHitDescription = "cache hit"

const unitSystemPrompt = `You summarize a single file's change from a git diff.
Describe what changed and why it matters in 20-50 words.
Start with a verb such as "Add", "Fix", "Update" or "Remove".
Output only the summary, with no preamble.`

const aggregateNote = `The input below is a set of AI-generated summaries, one per changed file.
It is not the raw diff. Do not invent low-level details the summaries do not state.
Combine them into one commit message that covers the whole change.`

// PromptDebugger reports whether prompts should be logged verbatim.
type PromptDebugger interface {
	DebugPrompts() bool
}

// UnitRequest asks for the summary of one change unit.
type UnitRequest struct {
	Unit       change.Unit
	SessionID  string
	StepIndex  int
	TotalSteps int
	Model      string
	RepoPath   string
}

// AggregateRequest asks for the commit message of a set of unit summaries.
type AggregateRequest struct {
	Summaries  []change.Summary
	BranchHint string
	TemplateID string
	Language   string
	SessionID  string
	StepIndex  int
	TotalSteps int
	Model      string
	RepoPath   string
}

// Summarizer makes the per-unit and aggregation generation calls.
type Summarizer struct {
	generator provider.TextGenerator
	templates template.Provider
	cache     cache.Cache
	debug     PromptDebugger
	log       *slog.Logger
}

// SummarizerOption configures a Summarizer.
type SummarizerOption func(*Summarizer)

// WithCache consults c before each backend call and stores successful responses.
func WithCache(c cache.Cache) SummarizerOption {
	return func(s *Summarizer) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithPromptDebugger logs full prompts at debug level while d reports true.
func WithPromptDebugger(d PromptDebugger) SummarizerOption {
	return func(s *Summarizer) { s.debug = d }
}

// NewSummarizer creates a Summarizer.
func NewSummarizer(generator provider.TextGenerator, templates template.Provider, log *slog.Logger, opts ...SummarizerOption) (*Summarizer, error) {
	if generator == nil {
		return nil, errors.New("NewSummarizer: nil generator")
	}
	if templates == nil {
		return nil, errors.New("NewSummarizer: nil templates")
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Summarizer{
		generator: generator,
		templates: templates,
		cache:     cache.Noop{},
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CheckTemplate returns template.ErrNotFound when id is not loaded.
func (s *Summarizer) CheckTemplate(id string) error {
	if !s.templates.Has(id) {
		return fmt.Errorf("%w: %s", template.ErrNotFound, id)
	}
	return nil
}

// SummarizeUnit summarizes one file's change. The returned record is always
// populated once a backend call was attempted, including on failure.
func (s *Summarizer) SummarizeUnit(ctx context.Context, req UnitRequest) (change.Summary, audit.Record, error) {
	path := req.Unit.Path()
	step := &audit.Step{
		Type:     audit.StepFileAnalysis,
		Index:    req.StepIndex,
		Total:    req.TotalSteps,
		FilePath: path,
	}

	user := fmt.Sprintf("File: %s\n\n```diff\n%s\n```", path, req.Unit.Diff())
	key := cache.NewKey(cache.KeyInput{
		TemplateID: unitCacheID,
		Model:      req.Model,
		RepoPath:   req.RepoPath,
		Parts:      []cache.Part{{Path: path, Content: req.Unit.Diff()}},
	})

	ex, err := s.exchange(ctx, exchangeParams{
		system:    unitSystemPrompt,
		user:      user,
		model:     req.Model,
		maxTokens: UnitMaxTokens,
		key:       key,
		sessionID: req.SessionID,
		step:      step,
		repoPath:  req.RepoPath,
	})
	if err != nil {
		return change.Summary{}, ex.record, fmt.Errorf("summarize %s: %w", path, err)
	}

	return change.NewSummary(path, ex.clean, budget.Estimate(ex.raw)), ex.record, nil
}

// Aggregate combines unit summaries into the final commit message. An
// unknown template fails before any backend call and returns a zero record.
func (s *Summarizer) Aggregate(ctx context.Context, req AggregateRequest) (string, audit.Record, error) {
	system, err := s.templates.RenderSystemPrompt(req.TemplateID, template.Context{
		Language:   req.Language,
		BranchHint: req.BranchHint,
	})
	if err != nil {
		return "", audit.Record{}, fmt.Errorf("render template: %w", err)
	}
	system = system + "\n\n" + aggregateNote

	var b strings.Builder
	if req.BranchHint != "" {
		fmt.Fprintf(&b, "Branch: %s\n\n", req.BranchHint)
	}
	b.WriteString("Per-file summaries:\n")
	parts := make([]cache.Part, 0, len(req.Summaries))
	for _, summary := range req.Summaries {
		fmt.Fprintf(&b, "\n### %s\n%s\n", summary.Path(), summary.Text())
		parts = append(parts, cache.Part{Path: summary.Path(), Content: summary.Text()})
	}

	key := cache.NewKey(cache.KeyInput{
		TemplateID: req.TemplateID,
		Model:      req.Model,
		Language:   req.Language,
		RepoPath:   req.RepoPath,
		Parts:      append(parts, cache.Part{Path: "branch", Content: req.BranchHint}),
	})

	ex, err := s.exchange(ctx, exchangeParams{
		system:    system,
		user:      b.String(),
		model:     req.Model,
		maxTokens: AggregateMaxTokens,
		key:       key,
		sessionID: req.SessionID,
		step: &audit.Step{
			Type:  audit.StepAggregation,
			Index: req.StepIndex,
			Total: req.TotalSteps,
		},
		repoPath: req.RepoPath,
	})
	if err != nil {
		return "", ex.record, fmt.Errorf("aggregate: %w", err)
	}

	return ex.clean, ex.record, nil
}

// SingleShot generates a commit message from the whole diff in one call,
// for changes small enough to skip the layered path.
func (s *Summarizer) SingleShot(ctx context.Context, units []change.Unit, req AggregateRequest) (string, audit.Record, error) {
	system, err := s.templates.RenderSystemPrompt(req.TemplateID, template.Context{
		Language:   req.Language,
		BranchHint: req.BranchHint,
	})
	if err != nil {
		return "", audit.Record{}, fmt.Errorf("render template: %w", err)
	}

	parts := make([]cache.Part, 0, len(units))
	for _, u := range units {
		parts = append(parts, cache.Part{Path: u.Path(), Content: u.Diff()})
	}

	ex, err := s.exchange(ctx, exchangeParams{
		system:    system,
		user:      "```diff\n" + change.JoinDiffs(units) + "\n```",
		model:     req.Model,
		maxTokens: AggregateMaxTokens,
		key: cache.NewKey(cache.KeyInput{
			TemplateID: "single_shot/" + req.TemplateID,
			Model:      req.Model,
			Language:   req.Language,
			RepoPath:   req.RepoPath,
			Parts:      parts,
		}),
		sessionID: req.SessionID,
		step:      &audit.Step{Type: audit.StepSingleShot, Index: 1, Total: 1},
		repoPath:  req.RepoPath,
	})
	if err != nil {
		return "", ex.record, fmt.Errorf("single shot: %w", err)
	}
	return ex.clean, ex.record, nil
}

type exchangeParams struct {
	system    string
	user      string
	model     string
	maxTokens int
	key       cache.Key
	sessionID string
	step      *audit.Step
	repoPath  string
}

type exchangeResult struct {
	raw    string
	clean  string
	record audit.Record
}

// exchange performs one cached, audited backend call.
func (s *Summarizer) exchange(ctx context.Context, p exchangeParams) (exchangeResult, error) {
	messages := []provider.Message{
		provider.SystemMessage(p.system),
		provider.UserMessage(p.user),
	}
	auditReq := audit.Request{
		Model:       p.model,
		Temperature: Temperature,
		MaxTokens:   p.maxTokens,
		Messages: []audit.Message{
			{Role: provider.RoleSystem, Content: p.system},
			{Role: provider.RoleUser, Content: p.user},
		},
	}

	if s.debug != nil && s.debug.DebugPrompts() {
		s.log.Debug("generation prompt",
			slog.String("step", string(p.step.Type)),
			slog.Int("estimated_tokens", budget.EstimateTexts(p.system, p.user)),
			slog.String("system", p.system),
			slog.String("user", p.user),
		)
	}

	if entry, ok := s.cache.Get(ctx, p.key); ok {
		step := *p.step
		step.Description = cacheHitDescription
		clean := Clean(entry.Content)
		record := audit.NewSuccess(p.sessionID, &step, auditReq, audit.Response{
			Content:      entry.Content,
			CleanContent: clean,
			Model:        entry.Model,
			FinishReason: entry.FinishReason,
		}, 0).WithRepoPath(p.repoPath)

		s.log.Debug("response served from cache", slog.String("step", string(p.step.Type)), slog.String("path", p.step.FilePath))
		return exchangeResult{raw: entry.Content, clean: clean, record: record}, nil
	}

	chatReq := provider.NewChatCompletionRequest(messages).
		WithModel(p.model).
		WithMaxTokens(p.maxTokens).
		WithTemperature(Temperature)

	start := time.Now()
	resp, err := s.generator.ChatCompletion(ctx, chatReq)
	elapsed := time.Since(start)
	if err != nil {
		record := audit.NewFailure(p.sessionID, p.step, auditReq, err.Error(), elapsed).WithRepoPath(p.repoPath)
		return exchangeResult{record: record}, err
	}

	raw := resp.Content()
	clean := Clean(raw)

	var usage *audit.Usage
	if u := resp.Usage(); u != nil {
		usage = &audit.Usage{
			PromptTokens:     u.PromptTokens(),
			CompletionTokens: u.CompletionTokens(),
			TotalTokens:      u.TotalTokens(),
		}
	}

	record := audit.NewSuccess(p.sessionID, p.step, auditReq, audit.Response{
		Content:      raw,
		CleanContent: clean,
		Model:        resp.Model(),
		FinishReason: resp.FinishReason(),
		Usage:        usage,
	}, elapsed).WithRepoPath(p.repoPath)

	if err := s.cache.Put(ctx, p.key, cache.Entry{
		Content:      raw,
		Model:        resp.Model(),
		FinishReason: resp.FinishReason(),
		CreatedAt:    time.Now().UTC(),
	}); err != nil {
		s.log.Warn("failed to cache response", slog.String("error", err.Error()))
	}

	return exchangeResult{raw: raw, clean: clean, record: record}, nil
}
