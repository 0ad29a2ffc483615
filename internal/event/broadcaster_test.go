package event

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabboard/internal/activity"
	"collabboard/internal/model"
)

// capturePublisher records every published envelope.
type capturePublisher struct {
	mu     sync.Mutex
	events []model.Event
}

func (p *capturePublisher) Publish(ctx context.Context, workspaceID uuid.UUID, ev model.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func TestBroadcastDeduplication(t *testing.T) {
	t.Run("second broadcast within the window is suppressed", func(t *testing.T) {
		pub := &capturePublisher{}
		audit := &activity.Recorder{}
		b := NewBroadcaster(pub, audit, 5*time.Second)

		entity := uuid.New()
		ev := Broadcast{
			WorkspaceID: uuid.New(),
			Channel:     model.ChannelCard,
			Type:        model.EventUpdated,
			EntityID:    entity,
			ActorID:     uuid.New(),
			Data:        map[string]string{"title": "x"},
		}
		require.NoError(t, b.Broadcast(context.Background(), ev))
		require.NoError(t, b.Broadcast(context.Background(), ev))

		// Exactly one delivery and exactly one audit record: suppression
		// silences the side effect too.
		assert.Equal(t, 1, pub.count())
		assert.Len(t, audit.Entries(), 1)
	})

	t.Run("different event types are independent keys", func(t *testing.T) {
		pub := &capturePublisher{}
		audit := &activity.Recorder{}
		b := NewBroadcaster(pub, audit, 5*time.Second)

		entity := uuid.New()
		ev := Broadcast{WorkspaceID: uuid.New(), Channel: model.ChannelCard, EntityID: entity}
		ev.Type = model.EventUpdated
		require.NoError(t, b.Broadcast(context.Background(), ev))
		ev.Type = model.EventMoved
		require.NoError(t, b.Broadcast(context.Background(), ev))

		assert.Equal(t, 2, pub.count())
		assert.Len(t, audit.Entries(), 2)
	})

	t.Run("different entities are independent keys", func(t *testing.T) {
		pub := &capturePublisher{}
		b := NewBroadcaster(pub, &activity.Recorder{}, 5*time.Second)

		ev := Broadcast{WorkspaceID: uuid.New(), Channel: model.ChannelCard, Type: model.EventUpdated}
		ev.EntityID = uuid.New()
		require.NoError(t, b.Broadcast(context.Background(), ev))
		ev.EntityID = uuid.New()
		require.NoError(t, b.Broadcast(context.Background(), ev))

		assert.Equal(t, 2, pub.count())
	})

	t.Run("broadcast passes again after the window", func(t *testing.T) {
		pub := &capturePublisher{}
		b := NewBroadcaster(pub, &activity.Recorder{}, 5*time.Second)

		now := time.Now()
		b.dedup.now = func() time.Time { return now }

		ev := Broadcast{WorkspaceID: uuid.New(), Channel: model.ChannelCard,
			Type: model.EventUpdated, EntityID: uuid.New()}
		require.NoError(t, b.Broadcast(context.Background(), ev))

		now = now.Add(5*time.Second + time.Millisecond)
		require.NoError(t, b.Broadcast(context.Background(), ev))

		assert.Equal(t, 2, pub.count())
	})
}

func TestBroadcastAuditRecord(t *testing.T) {
	pub := &capturePublisher{}
	audit := &activity.Recorder{}
	b := NewBroadcaster(pub, audit, time.Second)

	actor := uuid.New()
	workspaceID := uuid.New()
	entity := uuid.New()
	require.NoError(t, b.Broadcast(context.Background(), Broadcast{
		WorkspaceID: workspaceID,
		Channel:     model.ChannelCard,
		Type:        model.EventMoved,
		EntityID:    entity,
		ActorID:     actor,
		Data:        map[string]int{"position": 2},
	}))

	entries := audit.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, actor, entries[0].UserID)
	assert.Equal(t, workspaceID, entries[0].WorkspaceID)
	assert.Equal(t, entity, entries[0].EntityID)
	assert.Equal(t, "card.moved", entries[0].Action)
	assert.JSONEq(t, `{"position":2}`, string(entries[0].Detail))
}

func TestBroadcastEnvelope(t *testing.T) {
	pub := &capturePublisher{}
	b := NewBroadcaster(pub, &activity.Recorder{}, time.Second)

	require.NoError(t, b.Broadcast(context.Background(), Broadcast{
		WorkspaceID: uuid.New(),
		Channel:     model.ChannelList,
		Type:        model.EventReordered,
		EntityID:    uuid.New(),
		Data:        map[string]string{"k": "v"},
		Origin:      "client-1",
		ActionID:    "action-9",
	}))

	require.Equal(t, 1, pub.count())
	got := pub.events[0]
	assert.Equal(t, model.ChannelList, got.Channel)
	assert.Equal(t, model.EventReordered, got.Type)
	assert.Equal(t, "client-1", got.Origin)
	assert.Equal(t, "action-9", got.ActionID)
	assert.False(t, got.Timestamp.IsZero())
}

func TestDeduperPrune(t *testing.T) {
	d := newDeduper(time.Second)
	now := time.Now()
	d.now = func() time.Time { return now }

	// Fill past the threshold with entries that will age out.
	for i := 0; i < maxDedupEntries; i++ {
		require.True(t, d.shouldEmit(uuid.NewString()))
	}
	assert.Equal(t, maxDedupEntries, len(d.seen))

	// Older than twice the window: the next insert trips the prune.
	now = now.Add(3 * time.Second)
	require.True(t, d.shouldEmit("fresh"))
	assert.Equal(t, 1, len(d.seen), "aged entries should have been pruned")
}
