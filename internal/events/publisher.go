package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// Publisher provides typed methods for publishing response events to
// JetStream. A nil *Publisher is a no-op, so callers without NATS configured
// (tests, local dev) can skip the wiring entirely.
type Publisher struct {
	js jetstream.JetStream
}

// NewPublisher creates a new Publisher.
func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

// PublishChunk publishes a persisted stream flush for a response.
func (p *Publisher) PublishChunk(ctx context.Context, ev ChunkEvent) error {
	return p.publish(ctx, subject(ev.ResponseID, KindChunk), ev)
}

// PublishCompleted publishes the terminal complete event for a response.
func (p *Publisher) PublishCompleted(ctx context.Context, ev CompletedEvent) error {
	return p.publish(ctx, subject(ev.ResponseID, KindCompleted), ev)
}

// PublishFailed publishes the terminal error event for a response.
func (p *Publisher) PublishFailed(ctx context.Context, ev FailedEvent) error {
	return p.publish(ctx, subject(ev.ResponseID, KindFailed), ev)
}

func (p *Publisher) publish(ctx context.Context, subj string, data any) error {
	if p == nil {
		return nil
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling event for %s: %w", subj, err)
	}
	if _, err := p.js.Publish(ctx, subj, payload); err != nil {
		return fmt.Errorf("publishing to %s: %w", subj, err)
	}
	return nil
}

func subject(responseID, kind string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectResponsePrefix, responseID, kind)
}
