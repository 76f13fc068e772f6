package events

import "time"

// Stream name for AI response events.
const StreamAI = "PODIUM_AI"

// Subject layout: podium.ai.responses.{response_id}.{kind}
const (
	SubjectResponsePrefix = "podium.ai.responses"

	KindChunk     = "chunk"
	KindCompleted = "completed"
	KindFailed    = "failed"
)

// ChunkEvent is published once per persisted stream flush. Subscribers see
// chunks in flush order; Seq is the 1-based append position.
type ChunkEvent struct {
	ResponseID string    `json:"response_id"`
	Seq        int       `json:"seq"`
	Content    string    `json:"content"`
	EmittedAt  time.Time `json:"emitted_at"`
}

// CompletedEvent is published when a response record reaches its terminal
// complete status.
type CompletedEvent struct {
	ResponseID   string `json:"response_id"`
	FinishReason string `json:"finish_reason,omitempty"`
	TotalTokens  int    `json:"total_tokens,omitempty"`
}

// FailedEvent is published when a response record reaches its terminal
// error status.
type FailedEvent struct {
	ResponseID string `json:"response_id"`
	Message    string `json:"message"`
}
