package realtime

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisFeed relays events published on the per-workspace Redis channels into
// the local registry's rooms. Every server instance runs one feed, which is
// what lets a mutation handled by one instance reach sessions held by
// another.
type RedisFeed struct {
	rdb      *redis.Client
	registry *Registry
}

func NewRedisFeed(rdb *redis.Client, registry *Registry) *RedisFeed {
	return &RedisFeed{rdb: rdb, registry: registry}
}

// Run subscribes to all workspace channels and forwards payloads until the
// context is cancelled.
func (f *RedisFeed) Run(ctx context.Context) error {
	pubsub := f.rdb.PSubscribe(ctx, "workspace:*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			workspaceID, err := workspaceFromChannel(msg.Channel)
			if err != nil {
				slog.Warn("ignoring message on unexpected channel", "channel", msg.Channel)
				continue
			}
			f.registry.DeliverToRoom(workspaceID, []byte(msg.Payload))
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func workspaceFromChannel(channel string) (uuid.UUID, error) {
	raw := strings.TrimPrefix(channel, "workspace:")
	return uuid.Parse(raw)
}
