package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultChannelPrefix namespaces published events in Redis.
const DefaultChannelPrefix = "matomart:events:"

// LogNotifier writes every event to the structured log.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, event Event) error {
	n.Logger.Info().
		Str("event_id", event.ID.String()).
		Str("topic", event.Topic).
		Str("aggregate_id", event.AggregateID).
		RawJSON("payload", event.Payload).
		Msg("event_emitted")
	return nil
}

// RedisPublisher publishes events on a per-topic Redis channel so storefront
// sessions can surface them to shoppers.
type RedisPublisher struct {
	Client redis.Cmdable
	Prefix string
}

// Channel returns the channel name used for topic.
func (p RedisPublisher) Channel(topic string) string {
	prefix := p.Prefix
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultChannelPrefix
	}
	return prefix + topic
}

// Notify implements Notifier.
func (p RedisPublisher) Notify(ctx context.Context, event Event) error {
	if p.Client == nil {
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.Client.Publish(ctx, p.Channel(event.Topic), data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event.Topic, err)
	}
	return nil
}
