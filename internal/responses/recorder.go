package responses

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/podiumhq/podium/internal/events"
)

// Recorder wraps a Store and fans every persisted write out to event
// subscribers. It satisfies Store, so the stream assembler and pipeline use
// it interchangeably with a bare store. Event publish failures are logged
// and swallowed: subscribers are a projection of the durable record, never
// the other way around.
type Recorder struct {
	store Store
	pub   *events.Publisher
}

func NewRecorder(store Store, pub *events.Publisher) *Recorder {
	return &Recorder{store: store, pub: pub}
}

func (r *Recorder) Create(ctx context.Context, method, provider, model string) (string, error) {
	return r.store.Create(ctx, method, provider, model)
}

func (r *Recorder) AppendChunk(ctx context.Context, id, content string) (int, error) {
	seq, err := r.store.AppendChunk(ctx, id, content)
	if err != nil {
		return 0, err
	}

	if perr := r.pub.PublishChunk(ctx, events.ChunkEvent{
		ResponseID: id,
		Seq:        seq,
		Content:    content,
		EmittedAt:  time.Now().UTC(),
	}); perr != nil {
		slog.Warn("publishing chunk event", "response_id", id, "seq", seq, "error", perr)
	}
	return seq, nil
}

func (r *Recorder) MarkComplete(ctx context.Context, id, response string, usage Usage, finishReason string, structured json.RawMessage, parseError string) error {
	if err := r.store.MarkComplete(ctx, id, response, usage, finishReason, structured, parseError); err != nil {
		return err
	}

	if perr := r.pub.PublishCompleted(ctx, events.CompletedEvent{
		ResponseID:   id,
		FinishReason: finishReason,
		TotalTokens:  usage.TotalTokens,
	}); perr != nil {
		slog.Warn("publishing completed event", "response_id", id, "error", perr)
	}
	return nil
}

func (r *Recorder) MarkError(ctx context.Context, id, message string) error {
	if err := r.store.MarkError(ctx, id, message); err != nil {
		return err
	}

	if perr := r.pub.PublishFailed(ctx, events.FailedEvent{
		ResponseID: id,
		Message:    message,
	}); perr != nil {
		slog.Warn("publishing failed event", "response_id", id, "error", perr)
	}
	return nil
}

func (r *Recorder) Get(ctx context.Context, id string) (*Record, error) {
	return r.store.Get(ctx, id)
}
