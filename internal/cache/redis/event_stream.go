package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

const (
	eventStreamKey = "hedge:events"
	// eventStreamMaxLen bounds the stream with approximate trimming.
	eventStreamMaxLen = 10_000
)

// EventStream implements domain.EventStream by appending operational events
// to a capped Redis stream, giving external consumers a durable feed.
type EventStream struct {
	rdb *redis.Client
}

// NewEventStream creates an EventStream backed by the given Client.
func NewEventStream(c *Client) *EventStream {
	return &EventStream{rdb: c.Underlying()}
}

// Append adds one event to the stream.
func (s *EventStream) Append(ctx context.Context, ev domain.OperationalEvent) error {
	err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: eventStreamKey,
		MaxLen: eventStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type":     string(ev.Type),
			"severity": string(ev.Severity),
			"symbol":   ev.Symbol,
			"message":  ev.Message,
			"at":       ev.At.UnixNano(),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: append event: %w", err)
	}
	return nil
}
