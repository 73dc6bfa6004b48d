package dto

import (
	"github.com/helixml/diffsum"
	"github.com/helixml/diffsum/application/service"
	"github.com/helixml/diffsum/domain/change"
	"github.com/helixml/diffsum/domain/pipeline"
)

// EstimateRequest is the body of POST /api/v1/estimate.
type EstimateRequest struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

// EstimateResponse reports how a diff fits a model.
type EstimateResponse struct {
	Model         string `json:"model"`
	Tokens        int    `json:"tokens"`
	RequestTokens int    `json:"request_tokens"`
	DeclaredMax   int    `json:"declared_max"`
	Known         bool   `json:"known"`
	Limit         int    `json:"limit"`
	Layered       bool   `json:"layered"`
}

// SummarizeRequest is the body of POST /api/v1/summarize. Exactly one of
// Patch or RepoPath names the change.
type SummarizeRequest struct {
	Patch        string `json:"patch,omitempty"`
	RepoPath     string `json:"repo_path,omitempty"`
	Rev          string `json:"rev,omitempty"`
	BranchHint   string `json:"branch_hint,omitempty"`
	TemplateID   string `json:"template_id,omitempty"`
	Language     string `json:"language,omitempty"`
	Model        string `json:"model,omitempty"`
	ForceLayered bool   `json:"force_layered,omitempty"`
}

// UnitSummary is the summary of one changed file.
type UnitSummary struct {
	Path   string `json:"path"`
	Text   string `json:"text"`
	Tokens int    `json:"tokens"`
}

// SummarizeResponse is a generated commit message.
type SummarizeResponse struct {
	Mode       string        `json:"mode"`
	SessionID  string        `json:"session_id"`
	Message    string        `json:"message"`
	Summaries  []UnitSummary `json:"summaries"`
	RecordIDs  []string      `json:"record_ids"`
	DurationMS int64         `json:"duration_ms"`
}

// ProgressEvent is a progress update of a streamed run.
type ProgressEvent struct {
	SessionID   string        `json:"session_id"`
	State       string        `json:"state"`
	Current     int           `json:"current"`
	Total       int           `json:"total"`
	Status      string        `json:"status,omitempty"`
	CurrentPath string        `json:"current_path,omitempty"`
	Summaries   []UnitSummary `json:"summaries,omitempty"`
}

// StreamError ends a streamed run that failed. Fallback is a message built
// from the diff statistics.
type StreamError struct {
	SessionID string `json:"session_id,omitempty"`
	Error     string `json:"error"`
	Fallback  string `json:"fallback"`
}

// TemplateInfo describes an aggregation template.
type TemplateInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NewUnitSummaries converts domain summaries.
func NewUnitSummaries(summaries []change.Summary) []UnitSummary {
	out := make([]UnitSummary, len(summaries))
	for i, s := range summaries {
		out[i] = UnitSummary{Path: s.Path(), Text: s.Text(), Tokens: s.Tokens()}
	}
	return out
}

// NewProgressEvent converts a domain progress event.
func NewProgressEvent(e pipeline.ProgressEvent) ProgressEvent {
	out := ProgressEvent{
		SessionID:   e.SessionID,
		State:       string(e.State),
		Current:     e.Current,
		Total:       e.Total,
		Status:      e.Status,
		CurrentPath: e.CurrentPath,
	}
	if len(e.Summaries) > 0 {
		out.Summaries = NewUnitSummaries(e.Summaries)
	}
	return out
}

// NewEstimateResponse converts a budget check.
func NewEstimateResponse(check service.BudgetCheck) EstimateResponse {
	return EstimateResponse{
		Model:         check.Model,
		Tokens:        check.Tokens,
		RequestTokens: check.RequestTokens,
		DeclaredMax:   check.DeclaredMax,
		Known:         check.Known,
		Limit:         check.Limit,
		Layered:       check.OverBudget,
	}
}

// NewSummarizeResponse converts a summarization outcome.
func NewSummarizeResponse(out diffsum.Outcome) SummarizeResponse {
	return SummarizeResponse{
		Mode:       string(out.Mode),
		SessionID:  out.SessionID,
		Message:    out.Message,
		Summaries:  NewUnitSummaries(out.Summaries),
		RecordIDs:  out.RecordIDs,
		DurationMS: out.Duration.Milliseconds(),
	}
}
