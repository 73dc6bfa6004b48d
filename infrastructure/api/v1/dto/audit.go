// Package dto holds the request and response bodies of the v1 API.
package dto

import (
	"time"

	"github.com/helixml/diffsum/domain/audit"
)

// AuditStep is the pipeline position of a recorded exchange.
type AuditStep struct {
	Type        string `json:"type"`
	Index       int    `json:"index"`
	Total       int    `json:"total"`
	FilePath    string `json:"file_path,omitempty"`
	Description string `json:"description,omitempty"`
}

// AuditMessage is one message of a recorded request.
type AuditMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AuditRequest is the outbound half of a recorded exchange.
type AuditRequest struct {
	Model       string         `json:"model"`
	Temperature float64        `json:"temperature"`
	MaxTokens   int            `json:"max_tokens"`
	Messages    []AuditMessage `json:"messages"`
}

// AuditUsage is backend-reported token usage.
type AuditUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// AuditResponse is the inbound half of a recorded exchange.
type AuditResponse struct {
	Content      string      `json:"content"`
	CleanContent string      `json:"clean_content"`
	Model        string      `json:"model"`
	FinishReason string      `json:"finish_reason,omitempty"`
	Usage        *AuditUsage `json:"usage,omitempty"`
}

// AuditRecord is one exchange of the audit log.
type AuditRecord struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	SessionID  string         `json:"session_id"`
	RepoPath   string         `json:"repo_path,omitempty"`
	Step       *AuditStep     `json:"step,omitempty"`
	Request    AuditRequest   `json:"request"`
	Response   *AuditResponse `json:"response,omitempty"`
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
	DurationMS int64          `json:"duration_ms"`
}

// AuditListResponse is the body of GET /api/v1/audit.
type AuditListResponse struct {
	Data  []AuditRecord `json:"data"`
	Total int           `json:"total"`
}

// NewAuditRecord converts a domain record.
func NewAuditRecord(r audit.Record) AuditRecord {
	out := AuditRecord{
		ID:         r.ID(),
		Timestamp:  r.Timestamp(),
		SessionID:  r.SessionID(),
		RepoPath:   r.RepoPath(),
		Success:    r.Success(),
		Error:      r.Error(),
		DurationMS: r.Duration().Milliseconds(),
	}

	if s := r.Step(); s != nil {
		out.Step = &AuditStep{
			Type:        string(s.Type),
			Index:       s.Index,
			Total:       s.Total,
			FilePath:    s.FilePath,
			Description: s.Description,
		}
	}

	req := r.Request()
	out.Request = AuditRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Messages:    make([]AuditMessage, len(req.Messages)),
	}
	for i, m := range req.Messages {
		out.Request.Messages[i] = AuditMessage{Role: m.Role, Content: m.Content}
	}

	if resp := r.Response(); resp != nil {
		out.Response = &AuditResponse{
			Content:      resp.Content,
			CleanContent: resp.CleanContent,
			Model:        resp.Model,
			FinishReason: resp.FinishReason,
		}
		if u := resp.Usage; u != nil {
			out.Response.Usage = &AuditUsage{
				PromptTokens:     u.PromptTokens,
				CompletionTokens: u.CompletionTokens,
				TotalTokens:      u.TotalTokens,
			}
		}
	}

	return out
}

// NewAuditListResponse converts a list of domain records.
func NewAuditListResponse(records []audit.Record) AuditListResponse {
	data := make([]AuditRecord, len(records))
	for i, r := range records {
		data[i] = NewAuditRecord(r)
	}
	return AuditListResponse{Data: data, Total: len(data)}
}
