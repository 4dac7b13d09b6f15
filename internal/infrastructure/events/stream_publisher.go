package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StreamPublisher appends envelopes to a Redis stream. Each entry carries the
// event type as a separate field so consumers can filter without decoding.
type StreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
	logger *zap.Logger
}

// NewStreamPublisher writes to stream, trimming it to roughly maxLen entries
// when maxLen is positive.
func NewStreamPublisher(client *redis.Client, stream string, maxLen int64, logger *zap.Logger) (*StreamPublisher, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if stream == "" {
		return nil, fmt.Errorf("stream name is required")
	}
	return &StreamPublisher{
		client: client,
		stream: stream,
		maxLen: maxLen,
		logger: logger.With(zap.String("component", "stream_publisher"), zap.String("stream", stream)),
	}, nil
}

// Publish returns the stream entry id.
func (p *StreamPublisher) Publish(ctx context.Context, e *Envelope) (string, error) {
	payload, err := e.Serialize()
	if err != nil {
		return "", err
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"event_type": e.EventType,
			"event_id":   e.EventID.String(),
			"payload":    string(payload),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", p.stream, err)
	}

	p.logger.Debug("event published",
		zap.String("event_type", e.EventType),
		zap.String("event_id", e.EventID.String()),
		zap.String("entry_id", id))
	return id, nil
}
