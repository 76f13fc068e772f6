package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
)

// ResponseEvent is a decoded event delivered to a response subscriber.
// Exactly one of the payload fields is set, matching Kind.
type ResponseEvent struct {
	Kind      string
	Chunk     *ChunkEvent
	Completed *CompletedEvent
	Failed    *FailedEvent
	Raw       []byte
}

// Subscriber delivers per-response events from JetStream in publish order.
type Subscriber struct {
	js jetstream.JetStream
}

// NewSubscriber creates a new Subscriber.
func NewSubscriber(js jetstream.JetStream) *Subscriber {
	return &Subscriber{js: js}
}

// SubscribeResponse delivers all events for one response id to handler,
// starting from the beginning of the stream so late subscribers replay
// earlier chunks. The returned stop function must be called to release the
// consumer.
func (s *Subscriber) SubscribeResponse(ctx context.Context, responseID string, handler func(ResponseEvent)) (func(), error) {
	cons, err := s.js.OrderedConsumer(ctx, StreamAI, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{fmt.Sprintf("%s.%s.>", SubjectResponsePrefix, responseID)},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("creating ordered consumer: %w", err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		handler(decode(msg.Subject(), msg.Data()))
	})
	if err != nil {
		return nil, fmt.Errorf("consuming response events: %w", err)
	}

	return cc.Stop, nil
}

func decode(subj string, data []byte) ResponseEvent {
	kind := subj[strings.LastIndex(subj, ".")+1:]
	ev := ResponseEvent{Kind: kind, Raw: data}
	switch kind {
	case KindChunk:
		ev.Chunk = &ChunkEvent{}
		unmarshal(data, ev.Chunk)
	case KindCompleted:
		ev.Completed = &CompletedEvent{}
		unmarshal(data, ev.Completed)
	case KindFailed:
		ev.Failed = &FailedEvent{}
		unmarshal(data, ev.Failed)
	}
	return ev
}

// Malformed payloads still reach the handler via Raw with a zero-value
// decoded struct; the relay forwards Raw bytes regardless.
func unmarshal(data []byte, v any) {
	_ = json.Unmarshal(data, v)
}
