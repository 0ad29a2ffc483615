package client

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabboard/internal/model"
)

func event(t *testing.T, channel, eventType string, data any) model.Event {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return model.Event{
		Channel:   channel,
		Type:      eventType,
		Data:      raw,
		Timestamp: time.Now(),
	}
}

func TestReconcilerCardCreated(t *testing.T) {
	f := newBoardFixture()
	rec := NewReconciler(NewEngine(f.state), "client-1")

	card := model.Card{ID: uuid.New(), ListID: f.list2, Title: "N", Position: 1}
	rec.Apply(event(t, model.ChannelCard, model.EventCreated, card))

	got := rec.engine.State()
	assert.Equal(t, []string{"X", "N"}, cardTitles(got, f.list2))
}

func TestReconcilerCardUpdatedReplacesInPlace(t *testing.T) {
	f := newBoardFixture()
	rec := NewReconciler(NewEngine(f.state), "client-1")

	card := model.Card{ID: f.cardA, ListID: f.list1, Title: "A'", Position: 0}
	rec.Apply(event(t, model.ChannelCard, model.EventUpdated, card))

	got := rec.engine.State()
	assert.Equal(t, []string{"A'", "B"}, cardTitles(got, f.list1))
}

func TestReconcilerCardMovedAcrossLists(t *testing.T) {
	f := newBoardFixture()
	rec := NewReconciler(NewEngine(f.state), "client-1")

	moved := model.Card{ID: f.cardA, ListID: f.list2, Title: "A", Position: 1}
	rec.Apply(event(t, model.ChannelCard, model.EventMoved, model.MoveCardData{
		Card:       moved,
		FromListID: f.list1,
	}))

	got := rec.engine.State()
	assert.Equal(t, []string{"B"}, cardTitles(got, f.list1))
	assert.Equal(t, []string{"X", "A"}, cardTitles(got, f.list2))
}

func TestReconcilerCardDeleted(t *testing.T) {
	f := newBoardFixture()
	rec := NewReconciler(NewEngine(f.state), "client-1")

	rec.Apply(event(t, model.ChannelCard, model.EventDeleted, model.DeleteData{ID: f.cardB}))

	got := rec.engine.State()
	assert.Equal(t, []string{"A"}, cardTitles(got, f.list1))
}

func TestReconcilerReorderSkipsDeletedIDs(t *testing.T) {
	f := newBoardFixture()
	rec := NewReconciler(NewEngine(f.state), "client-1")

	// The server's sequence references a card this client already saw
	// deleted; the unknown id is skipped rather than failing the merge.
	rec.Apply(event(t, model.ChannelCard, model.EventReordered, model.ReorderData{
		ScopeID:    f.list1,
		OrderedIDs: []uuid.UUID{f.cardB, uuid.New(), f.cardA},
	}))

	got := rec.engine.State()
	require.Equal(t, []string{"B", "A"}, cardTitles(got, f.list1))
	for i, c := range got.Cards[f.list1] {
		assert.Equal(t, i, c.Position)
	}
}

func TestReconcilerListLifecycle(t *testing.T) {
	f := newBoardFixture()
	rec := NewReconciler(NewEngine(f.state), "client-1")

	newList := model.List{ID: uuid.New(), BoardID: f.boardID, Title: "done", Position: 2}
	rec.Apply(event(t, model.ChannelList, model.EventCreated, newList))

	got := rec.engine.State()
	require.Len(t, got.Lists, 3)
	assert.NotNil(t, got.Cards[newList.ID], "a created list gets an empty card collection")

	// Duplicate create is idempotent.
	rec.Apply(event(t, model.ChannelList, model.EventCreated, newList))
	assert.Len(t, rec.engine.State().Lists, 3)

	renamed := newList
	renamed.Title = "shipped"
	rec.Apply(event(t, model.ChannelList, model.EventUpdated, renamed))
	got = rec.engine.State()
	assert.Equal(t, "shipped", got.Lists[2].Title)

	rec.Apply(event(t, model.ChannelList, model.EventReordered, model.ReorderData{
		ScopeID:    f.boardID,
		OrderedIDs: []uuid.UUID{newList.ID, f.list1, f.list2},
	}))
	got = rec.engine.State()
	assert.Equal(t, "shipped", got.Lists[0].Title)
	assert.Equal(t, 0, got.Lists[0].Position)

	rec.Apply(event(t, model.ChannelList, model.EventDeleted, model.DeleteData{ID: newList.ID}))
	got = rec.engine.State()
	assert.Len(t, got.Lists, 2)
	assert.NotContains(t, got.Cards, newList.ID)
}

func TestReconcilerBoardDeletedClearsState(t *testing.T) {
	f := newBoardFixture()
	rec := NewReconciler(NewEngine(f.state), "client-1")

	rec.Apply(event(t, model.ChannelBoard, model.EventDeleted, struct{}{}))

	got := rec.engine.State()
	assert.Equal(t, uuid.Nil, got.Board.ID)
	assert.Empty(t, got.Lists)
	assert.Empty(t, got.Cards)
}

func TestReconcilerFoldsOwnEchoIntoConfirmation(t *testing.T) {
	f := newBoardFixture()
	engine := NewEngine(f.state)
	rec := NewReconciler(engine, "client-1")

	move := &MoveCard{ActionBase: NewActionBase(), CardID: f.cardA, TargetListID: f.list2, Position: 1}
	engine.Apply(move)

	ev := event(t, model.ChannelCard, model.EventMoved, model.MoveCardData{
		Card:       model.Card{ID: f.cardA, ListID: f.list2, Title: "A", Position: 1},
		FromListID: f.list1,
	})
	ev.Origin = "client-1"
	ev.ActionID = move.ActionID()
	rec.Apply(ev)

	// One pipeline: the echo settled the pending action and merged the
	// server's payload once, so the card appears exactly once.
	got := engine.State()
	assert.Equal(t, []string{"B"}, cardTitles(got, f.list1))
	assert.Equal(t, []string{"X", "A"}, cardTitles(got, f.list2))
	assert.Empty(t, engine.Pending())
}

func TestReconcilerEchoForSettledActionMergesNormally(t *testing.T) {
	f := newBoardFixture()
	engine := NewEngine(f.state)
	rec := NewReconciler(engine, "client-1")

	ev := event(t, model.ChannelCard, model.EventMoved, model.MoveCardData{
		Card:       model.Card{ID: f.cardA, ListID: f.list2, Title: "A", Position: 0},
		FromListID: f.list1,
	})
	ev.Origin = "client-1"
	ev.ActionID = "already-settled"
	rec.Apply(ev)

	got := engine.State()
	assert.Equal(t, []string{"B"}, cardTitles(got, f.list1))
	assert.Equal(t, []string{"A", "X"}, cardTitles(got, f.list2))
}

func TestReconcilerOtherClientsEchoMerges(t *testing.T) {
	f := newBoardFixture()
	engine := NewEngine(f.state)
	rec := NewReconciler(engine, "client-1")

	ev := event(t, model.ChannelCard, model.EventDeleted, model.DeleteData{ID: f.cardX})
	ev.Origin = "client-2"
	ev.ActionID = "their-action"
	rec.Apply(ev)

	got := engine.State()
	assert.Empty(t, cardTitles(got, f.list2))
}

func TestReconcilerDropsMalformedPayload(t *testing.T) {
	f := newBoardFixture()
	rec := NewReconciler(NewEngine(f.state), "client-1")
	before := rec.engine.State()

	rec.Apply(model.Event{
		Channel: model.ChannelCard,
		Type:    model.EventDeleted,
		Data:    json.RawMessage(`{not json`),
	})

	got := rec.engine.State()
	assert.Equal(t, cardTitles(before, f.list1), cardTitles(got, f.list1))
	assert.Equal(t, cardTitles(before, f.list2), cardTitles(got, f.list2))
}

func TestReconcilerEchoReplacesTemporaryCreate(t *testing.T) {
	f := newBoardFixture()
	engine := NewEngine(f.state)
	rec := NewReconciler(engine, "client-1")

	tempID := uuid.New()
	create := &CreateCard{
		ActionBase: NewActionBase(),
		Card:       model.Card{ID: tempID, ListID: f.list1, Title: "draft"},
	}
	engine.Apply(create)

	// The pushed echo beats the HTTP response and carries the canonical id.
	canonical := model.Card{ID: uuid.New(), ListID: f.list1, Title: "draft", Position: 2}
	ev := event(t, model.ChannelCard, model.EventCreated, canonical)
	ev.Origin = "client-1"
	ev.ActionID = create.ActionID()
	rec.Apply(ev)

	got := engine.State()
	_, tempStillThere := got.CardByID(tempID)
	assert.False(t, tempStillThere, "temporary id is gone once the echo lands")
	gotCard, ok := got.CardByID(canonical.ID)
	require.True(t, ok, "the server's canonical entity is in client state")
	assert.Equal(t, "draft", gotCard.Title)
	assert.Equal(t, []string{"A", "B", "draft"}, cardTitles(got, f.list1))
	assert.Empty(t, engine.Pending())

	// The late HTTP confirmation finds nothing pending; state already holds
	// the canonical entity, so nothing is lost.
	server := f.state.Clone()
	server.insertCard(canonical, 2)
	assert.False(t, engine.Confirm(create.ActionID(), server))
	_, ok = engine.State().CardByID(canonical.ID)
	assert.True(t, ok)
}

func TestReconcilerEchoReplacesTemporaryList(t *testing.T) {
	f := newBoardFixture()
	engine := NewEngine(f.state)
	rec := NewReconciler(engine, "client-1")

	create := &CreateList{
		ActionBase: NewActionBase(),
		List:       model.List{ID: uuid.New(), BoardID: f.boardID, Title: "done"},
	}
	engine.Apply(create)

	canonical := model.List{ID: uuid.New(), BoardID: f.boardID, Title: "done", Position: 2}
	ev := event(t, model.ChannelList, model.EventCreated, canonical)
	ev.Origin = "client-1"
	ev.ActionID = create.ActionID()
	rec.Apply(ev)

	got := engine.State()
	require.Len(t, got.Lists, 3)
	assert.Equal(t, canonical.ID, got.Lists[2].ID)
	assert.Equal(t, -1, got.listIndex(create.List.ID))
	assert.Empty(t, engine.Pending())
}
