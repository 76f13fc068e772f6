package responses

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned when no record exists for the given id.
var ErrNotFound = errors.New("ai response not found")

// ErrFinalized is returned when appending to or finalizing a record that has
// already left the pending state.
var ErrFinalized = errors.New("ai response already finalized")

// Store persists AI response records. AppendChunk calls for one record id
// must be applied in the order issued; chunk ordering is what keeps the
// persisted transcript coherent for subscribers.
type Store interface {
	// Create inserts a new pending record and returns its id.
	Create(ctx context.Context, method, provider, model string) (string, error)

	// AppendChunk appends content to the accumulated response text and
	// returns the 1-based chunk sequence number.
	AppendChunk(ctx context.Context, id, content string) (int, error)

	// MarkComplete finalizes the record as complete with the full response
	// text, usage, finish reason, and optional structured payload or parse
	// error.
	MarkComplete(ctx context.Context, id, response string, usage Usage, finishReason string, structured json.RawMessage, parseError string) error

	// MarkError finalizes the record as failed.
	MarkError(ctx context.Context, id, message string) error

	// Get returns the record by id.
	Get(ctx context.Context, id string) (*Record, error)
}
