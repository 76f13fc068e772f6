package responses

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of an AI response record:
// pending → complete | error, finalized exactly once.
type Status string

const (
	StatusPending  Status = "pending"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// Usage holds token counts for one request. Estimated values (chars/4) are
// marked so consumers know they are approximate rather than billing-accurate.
type Usage struct {
	PromptTokens     int  `json:"prompt_tokens"`
	CompletionTokens int  `json:"completion_tokens"`
	TotalTokens      int  `json:"total_tokens"`
	Estimated        bool `json:"estimated,omitempty"`
}

// Record is one AI request/response, created pending at request start,
// grown by chunk appends, and finalized once.
type Record struct {
	ID             string          `json:"id"`
	Method         string          `json:"method"`
	Provider       string          `json:"provider"`
	Model          string          `json:"model"`
	Status         Status          `json:"status"`
	Response       string          `json:"response"`
	ChunkCount     int             `json:"chunk_count"`
	StructuredData json.RawMessage `json:"structured_data,omitempty"`
	ParseError     *string         `json:"parse_error,omitempty"`
	Usage          *Usage          `json:"usage,omitempty"`
	FinishReason   *string         `json:"finish_reason,omitempty"`
	ErrorMessage   *string         `json:"error_message,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
