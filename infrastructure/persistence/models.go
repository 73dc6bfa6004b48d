package persistence

import "time"

// AuditRecordModel represents an audit record in the database.
// Request and response are stored as JSON documents.
type AuditRecordModel struct {
	ID          string          `gorm:"column:id;primaryKey;size:26"`
	RecordedAt  time.Time       `gorm:"column:recorded_at;not null;index"`
	SessionID   string          `gorm:"column:session_id;size:64;index"`
	RepoPath    string          `gorm:"column:repo_path;index"`
	HasStep     bool            `gorm:"column:has_step;not null;default:false"`
	StepType    string          `gorm:"column:step_type;size:32"`
	StepIndex   int             `gorm:"column:step_index"`
	StepTotal   int             `gorm:"column:step_total"`
	FilePath    string          `gorm:"column:file_path"`
	Description string          `gorm:"column:description"`
	Request     requestColumn   `gorm:"column:request;type:text;serializer:json"`
	Response    *responseColumn `gorm:"column:response;type:text;serializer:json"`
	Success     bool            `gorm:"column:success;not null"`
	Error       string          `gorm:"column:error;type:text"`
	DurationNS  int64           `gorm:"column:duration_ns;not null;default:0"`
}

// TableName returns the table name.
func (AuditRecordModel) TableName() string {
	return "audit_records"
}

type messageColumn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type requestColumn struct {
	Model       string          `json:"model"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
	Messages    []messageColumn `json:"messages"`
}

type usageColumn struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type responseColumn struct {
	Content      string       `json:"content"`
	CleanContent string       `json:"clean_content"`
	Model        string       `json:"model"`
	FinishReason string       `json:"finish_reason,omitempty"`
	Usage        *usageColumn `json:"usage,omitempty"`
}
