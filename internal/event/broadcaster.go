// Package event fans entity-change events out to workspace rooms. Delivery
// is fire and forget: no acknowledgment, no retry, no queueing for offline
// members. Near-duplicate events are suppressed by a sliding dedup window,
// and every event that passes the window also writes one audit record.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"collabboard/internal/activity"
	"collabboard/internal/metrics"
	"collabboard/internal/model"
)

// Publisher carries an event envelope into a workspace room. The production
// implementation publishes to Redis so every server instance can relay to
// its local sessions; tests use a loopback.
type Publisher interface {
	Publish(ctx context.Context, workspaceID uuid.UUID, ev model.Event) error
}

// Broadcast describes one entity-change event to be fanned out.
type Broadcast struct {
	WorkspaceID uuid.UUID
	Channel     string // model.ChannelCard, ChannelList or ChannelBoard
	Type        string // model.EventCreated, EventUpdated, ...
	EntityID    uuid.UUID
	ActorID     uuid.UUID
	Data        any
	Origin      string // client id that caused the mutation
	ActionID    string // client action id, for optimistic confirmation folding
}

type Broadcaster struct {
	publisher Publisher
	audit     activity.Logger
	dedup     *deduper
}

func NewBroadcaster(publisher Publisher, audit activity.Logger, dedupWindow time.Duration) *Broadcaster {
	return &Broadcaster{
		publisher: publisher,
		audit:     audit,
		dedup:     newDeduper(dedupWindow),
	}
}

// Broadcast publishes b into its workspace room unless an identical
// entity+type broadcast happened within the dedup window, in which case the
// event is dropped silently, audit record included.
func (b *Broadcaster) Broadcast(ctx context.Context, ev Broadcast) error {
	key := ev.EntityID.String() + ":" + ev.Type
	if !b.dedup.shouldEmit(key) {
		metrics.BroadcastsSuppressed.Inc()
		return nil
	}

	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	envelope := model.Event{
		Channel:   ev.Channel,
		Type:      ev.Type,
		Data:      data,
		Timestamp: time.Now(),
		Origin:    ev.Origin,
		ActionID:  ev.ActionID,
	}
	if err := b.publisher.Publish(ctx, ev.WorkspaceID, envelope); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	metrics.BroadcastsTotal.WithLabelValues(ev.Channel).Inc()

	// The audit record is tied to the broadcast, not to delivery: there is
	// no acknowledgment, so "broadcast happened" is the only fact we have.
	entry := activity.Entry{
		UserID:      ev.ActorID,
		WorkspaceID: ev.WorkspaceID,
		EntityID:    ev.EntityID,
		Action:      ev.Channel + "." + ev.Type,
		Detail:      data,
		At:          envelope.Timestamp,
	}
	if err := b.audit.Log(ctx, entry); err != nil {
		slog.Warn("failed to write activity record", "action", entry.Action, "error", err)
	}
	return nil
}
