package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"collabboard/internal/model"
)

// WorkspaceChannel is the Redis pub/sub channel carrying one workspace's
// events. Every server instance subscribes to the channels of the
// workspaces its sessions joined and relays messages to them.
func WorkspaceChannel(workspaceID uuid.UUID) string {
	return "workspace:" + workspaceID.String()
}

// RedisPublisher publishes event envelopes to the per-workspace channel.
type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) Publish(ctx context.Context, workspaceID uuid.UUID, ev model.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := p.rdb.Publish(ctx, WorkspaceChannel(workspaceID), payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", WorkspaceChannel(workspaceID), err)
	}
	return nil
}

// RoomDeliverer is the part of the connection registry the loopback
// publisher needs: local fan-out into a workspace room.
type RoomDeliverer interface {
	DeliverToRoom(workspaceID uuid.UUID, payload []byte)
}

// LoopbackPublisher skips Redis and delivers directly to the local registry.
// Used by tests and by single-instance deployments without Redis.
type LoopbackPublisher struct {
	Rooms RoomDeliverer
}

func (p *LoopbackPublisher) Publish(ctx context.Context, workspaceID uuid.UUID, ev model.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	p.Rooms.DeliverToRoom(workspaceID, payload)
	return nil
}
