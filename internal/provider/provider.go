// Package provider holds the inference-provider boundary. The rest of the
// pipeline depends only on the Client interface; providers are constructed
// once at startup and injected, never held in package globals.
package provider

import (
	"context"
	"errors"

	"github.com/podiumhq/podium/internal/responses"
)

// ErrProvider wraps any transport or upstream failure from an inference
// call. The pipeline releases the reservation and re-raises on these.
var ErrProvider = errors.New("inference provider failure")

// StreamResult carries the post-stream metadata a provider may only know
// after the stream closes. Usage is nil when the provider reported nothing.
type StreamResult struct {
	FinishReason string
	Usage        *responses.Usage
}

// ObjectResult is the outcome of a one-shot structured generation call. Text
// is the raw payload, possibly truncated when FinishReason is "length".
type ObjectResult struct {
	Text         string
	FinishReason string
	Usage        *responses.Usage
}

// Client is a single inference provider.
type Client interface {
	// Name identifies the provider for response records ("openai", ...).
	Name() string

	// Model returns the model identifier requests are issued against.
	Model() string

	// StreamChat runs a streaming chat completion, invoking onDelta for
	// each text delta in arrival order. A non-nil error from onDelta
	// aborts the stream.
	StreamChat(ctx context.Context, prompt string, onDelta func(delta string) error) (*StreamResult, error)

	// GenerateObject runs a one-shot JSON-mode completion. The returned
	// text may be truncated at the token budget.
	GenerateObject(ctx context.Context, prompt string, maxTokens int) (*ObjectResult, error)
}
