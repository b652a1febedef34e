package notify

import (
	"context"
	"fmt"
	"time"
)

// JSONPublisher appends one JSON document to a durable stream. The Redis
// stream client satisfies this.
type JSONPublisher interface {
	PublishJSON(ctx context.Context, v any) error
}

// StreamTransport mirrors every notification onto a stream so downstream
// consumers can replay them independently of the chat channels.
type StreamTransport struct {
	publisher JSONPublisher
}

func NewStream(publisher JSONPublisher) *StreamTransport {
	return &StreamTransport{publisher: publisher}
}

func (s *StreamTransport) Name() string { return "stream" }

func (s *StreamTransport) Send(ctx context.Context, msg Message) error {
	envelope := map[string]any{
		"kind":    string(msg.Kind),
		"text":    msg.Text,
		"payload": msg.Payload,
		"sent_at": time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.publisher.PublishJSON(ctx, envelope); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// NoopTransport drops every message. Used when no channels are configured.
type NoopTransport struct{}

func (NoopTransport) Name() string                        { return "noop" }
func (NoopTransport) Send(context.Context, Message) error { return nil }
