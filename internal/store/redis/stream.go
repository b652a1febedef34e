// Package redis streams notifications onto Redis Streams so downstream
// consumers can process scan events in a separate process.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// defaultMaxStreamLen bounds the stream with approximate trimming so an
// unattended scanner cannot grow Redis without limit.
const defaultMaxStreamLen = 10_000

// Stream provides the Redis Streams transport.
type Stream struct {
	client *redis.Client
}

func NewStream(url string) (*Stream, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Stream{client: client}, nil
}

func (s *Stream) Close() error {
	return s.client.Close()
}

func (s *Stream) Client() *redis.Client {
	return s.client
}

// Publish appends a raw payload to the stream. The payload must be a
// string, a byte slice, or a fmt.Stringer.
func (s *Stream) Publish(ctx context.Context, stream string, payload any) (string, error) {
	data, err := streamPayload(payload)
	if err != nil {
		return "", err
	}
	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: defaultMaxStreamLen,
		Approx: true,
		Values: map[string]any{"payload": data},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", stream, err)
	}
	return id, nil
}

// PublishJSON marshals v and appends it to the stream.
func (s *Stream) PublishJSON(ctx context.Context, stream string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal stream entry: %w", err)
	}
	return s.Publish(ctx, stream, data)
}

// ReadJSON blocks until an entry newer than lastID arrives, decodes it into
// dst, and returns the entry id to resume from.
func (s *Stream) ReadJSON(ctx context.Context, stream, lastID string, dst any) (string, error) {
	if lastID == "" {
		lastID = "0"
	}
	res, err := s.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   1,
		Block:   0,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xread %s: %w", stream, err)
	}
	if len(res) == 0 || len(res[0].Messages) == 0 {
		return "", fmt.Errorf("xread %s: empty response", stream)
	}

	msg := res[0].Messages[0]
	payload, ok := msg.Values["payload"].(string)
	if !ok {
		return "", fmt.Errorf("stream %s entry %s has no payload", stream, msg.ID)
	}
	if err := json.Unmarshal([]byte(payload), dst); err != nil {
		return "", fmt.Errorf("decode stream entry %s: %w", msg.ID, err)
	}
	return msg.ID, nil
}

// LoadStreamCheckpoint returns the saved resume offset for key, or empty
// when none was persisted yet.
func (s *Stream) LoadStreamCheckpoint(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", nil
	}
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load checkpoint %s: %w", key, err)
	}
	return value, nil
}

// PersistStreamCheckpoint saves the resume offset for key. An empty key is
// a no-op so callers can disable checkpointing by configuration.
func (s *Stream) PersistStreamCheckpoint(ctx context.Context, key, value string) error {
	if key == "" {
		return nil
	}
	if err := validateStreamOffset(value); err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("persist checkpoint %s: %w", key, err)
	}
	return nil
}

// Publisher binds one stream name so the notify transport can publish
// without knowing stream topology.
type Publisher struct {
	stream *Stream
	name   string
}

func (s *Stream) Publisher(name string) *Publisher {
	return &Publisher{stream: s, name: name}
}

func (p *Publisher) PublishJSON(ctx context.Context, v any) error {
	_, err := p.stream.PublishJSON(ctx, p.name, v)
	return err
}

// parseStreamOffset extracts the sequence part of a stream id. Compound ids
// like "123-0" yield 123; negative values clamp to zero.
func parseStreamOffset(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	// A dash after the first character separates sequence from entry
	// counter; a leading dash is a sign.
	if idx := strings.IndexByte(s, '-'); idx > 0 {
		s = s[:idx]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse stream offset %q: %w", s, err)
	}
	if n < 0 {
		return 0, nil
	}
	return n, nil
}

// validateStreamOffset rejects offsets that cannot be resumed from.
func validateStreamOffset(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	seq := s
	if idx := strings.IndexByte(s, '-'); idx >= 0 {
		seq = s[:idx]
		rest := s[idx+1:]
		if rest == "" {
			return fmt.Errorf("invalid stream offset %q", s)
		}
		if _, err := strconv.ParseInt(rest, 10, 64); err != nil {
			return fmt.Errorf("invalid stream offset %q", s)
		}
	}
	n, err := strconv.ParseInt(seq, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid stream offset %q", s)
	}
	if n < 0 {
		return fmt.Errorf("stream offset %q must not be negative", s)
	}
	return nil
}

// streamPayload normalizes supported payload types to bytes.
func streamPayload(v any) ([]byte, error) {
	switch p := v.(type) {
	case string:
		return []byte(p), nil
	case []byte:
		return p, nil
	case fmt.Stringer:
		return []byte(p.String()), nil
	default:
		return nil, fmt.Errorf("stream payload type %T not supported", v)
	}
}

type inMemoryEntry struct {
	seq  int64
	id   string
	data []byte
}

// InMemoryStream is a stand-in for Stream used in tests and the load
// harness. It preserves ordering and blocking-read semantics without a
// Redis server.
type InMemoryStream struct {
	mu          sync.Mutex
	streams     map[string][]inMemoryEntry
	checkpoints map[string]string
	notifyCh    chan struct{}
}

func NewInMemoryStream() *InMemoryStream {
	return &InMemoryStream{
		streams:     make(map[string][]inMemoryEntry),
		checkpoints: make(map[string]string),
		notifyCh:    make(chan struct{}),
	}
}

func (s *InMemoryStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams = make(map[string][]inMemoryEntry)
	s.checkpoints = make(map[string]string)
	s.broadcastLocked()
	return nil
}

func (s *InMemoryStream) PublishJSON(_ context.Context, stream string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal stream entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	seq := int64(len(s.streams[stream]) + 1)
	entry := inMemoryEntry{seq: seq, id: fmt.Sprintf("%d-0", seq), data: data}
	s.streams[stream] = append(s.streams[stream], entry)
	s.broadcastLocked()
	return entry.id, nil
}

func (s *InMemoryStream) ReadJSON(ctx context.Context, stream, lastID string, dst any) (string, error) {
	offset, err := parseStreamOffset(lastID)
	if err != nil {
		return "", err
	}

	for {
		s.mu.Lock()
		for _, entry := range s.streams[stream] {
			if entry.seq > offset {
				data := entry.data
				id := entry.id
				s.mu.Unlock()
				if err := json.Unmarshal(data, dst); err != nil {
					return "", fmt.Errorf("decode stream entry %s: %w", id, err)
				}
				return id, nil
			}
		}
		wait := s.notifyCh
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-wait:
		}
	}
}

func (s *InMemoryStream) LoadStreamCheckpoint(_ context.Context, key string) (string, error) {
	if key == "" {
		return "", nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpoints[key], nil
}

func (s *InMemoryStream) PersistStreamCheckpoint(_ context.Context, key, value string) error {
	if key == "" {
		return nil
	}
	if err := validateStreamOffset(value); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[key] = value
	return nil
}

// broadcastLocked wakes blocked readers. Callers must hold mu.
func (s *InMemoryStream) broadcastLocked() {
	close(s.notifyCh)
	s.notifyCh = make(chan struct{})
}
