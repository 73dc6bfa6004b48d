package persistence

import (
	"time"

	"github.com/helixml/diffsum/domain/audit"
)

// AuditMapper maps between domain Record and persistence AuditRecordModel.
type AuditMapper struct{}

// ToDomain converts an AuditRecordModel to a domain Record.
func (m AuditMapper) ToDomain(e AuditRecordModel) audit.Record {
	var step *audit.Step
	if e.HasStep {
		step = &audit.Step{
			Type:        audit.StepType(e.StepType),
			Index:       e.StepIndex,
			Total:       e.StepTotal,
			FilePath:    e.FilePath,
			Description: e.Description,
		}
	}

	messages := make([]audit.Message, len(e.Request.Messages))
	for i, msg := range e.Request.Messages {
		messages[i] = audit.Message{Role: msg.Role, Content: msg.Content}
	}
	req := audit.Request{
		Model:       e.Request.Model,
		Temperature: e.Request.Temperature,
		MaxTokens:   e.Request.MaxTokens,
		Messages:    messages,
	}

	var resp *audit.Response
	if e.Response != nil {
		resp = &audit.Response{
			Content:      e.Response.Content,
			CleanContent: e.Response.CleanContent,
			Model:        e.Response.Model,
			FinishReason: e.Response.FinishReason,
		}
		if u := e.Response.Usage; u != nil {
			resp.Usage = &audit.Usage{
				PromptTokens:     u.PromptTokens,
				CompletionTokens: u.CompletionTokens,
				TotalTokens:      u.TotalTokens,
			}
		}
	}

	return audit.Reconstruct(
		e.ID,
		e.RecordedAt.UTC(),
		e.SessionID,
		step,
		e.RepoPath,
		req,
		resp,
		e.Success,
		e.Error,
		time.Duration(e.DurationNS),
	)
}

// ToModel converts a domain Record to an AuditRecordModel.
func (m AuditMapper) ToModel(r audit.Record) AuditRecordModel {
	model := AuditRecordModel{
		ID:         r.ID(),
		RecordedAt: r.Timestamp(),
		SessionID:  r.SessionID(),
		RepoPath:   r.RepoPath(),
		Success:    r.Success(),
		Error:      r.Error(),
		DurationNS: int64(r.Duration()),
	}

	if step := r.Step(); step != nil {
		model.HasStep = true
		model.StepType = string(step.Type)
		model.StepIndex = step.Index
		model.StepTotal = step.Total
		model.FilePath = step.FilePath
		model.Description = step.Description
	}

	req := r.Request()
	model.Request = requestColumn{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Messages:    make([]messageColumn, len(req.Messages)),
	}
	for i, msg := range req.Messages {
		model.Request.Messages[i] = messageColumn{Role: msg.Role, Content: msg.Content}
	}

	if resp := r.Response(); resp != nil {
		model.Response = &responseColumn{
			Content:      resp.Content,
			CleanContent: resp.CleanContent,
			Model:        resp.Model,
			FinishReason: resp.FinishReason,
		}
		if u := resp.Usage; u != nil {
			model.Response.Usage = &usageColumn{
				PromptTokens:     u.PromptTokens,
				CompletionTokens: u.CompletionTokens,
				TotalTokens:      u.TotalTokens,
			}
		}
	}

	return model
}
