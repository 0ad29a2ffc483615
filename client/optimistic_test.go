package client

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabboard/internal/model"
)

type boardFixture struct {
	boardID uuid.UUID
	list1   uuid.UUID
	list2   uuid.UUID
	cardA   uuid.UUID
	cardB   uuid.UUID
	cardX   uuid.UUID
	state   *BoardState
}

// newBoardFixture builds a board with two lists: "todo" holding [A, B] and
// "doing" holding [X].
func newBoardFixture() boardFixture {
	f := boardFixture{
		boardID: uuid.New(),
		list1:   uuid.New(),
		list2:   uuid.New(),
		cardA:   uuid.New(),
		cardB:   uuid.New(),
		cardX:   uuid.New(),
	}
	f.state = &BoardState{
		Board: model.Board{ID: f.boardID, Title: "sprint"},
		Lists: []model.List{
			{ID: f.list1, BoardID: f.boardID, Title: "todo", Position: 0},
			{ID: f.list2, BoardID: f.boardID, Title: "doing", Position: 1},
		},
		Cards: map[uuid.UUID][]model.Card{
			f.list1: {
				{ID: f.cardA, ListID: f.list1, Title: "A", Position: 0},
				{ID: f.cardB, ListID: f.list1, Title: "B", Position: 1},
			},
			f.list2: {
				{ID: f.cardX, ListID: f.list2, Title: "X", Position: 0},
			},
		},
	}
	return f
}

func cardTitles(s *BoardState, listID uuid.UUID) []string {
	out := make([]string, 0, len(s.Cards[listID]))
	for _, c := range s.Cards[listID] {
		out = append(out, c.Title)
	}
	return out
}

func TestApplyIsVisibleBeforeConfirmation(t *testing.T) {
	f := newBoardFixture()
	e := NewEngine(f.state)

	move := &MoveCard{ActionBase: NewActionBase(), CardID: f.cardA, TargetListID: f.list2, Position: 1}
	e.Apply(move)

	got := e.State()
	assert.Equal(t, []string{"B"}, cardTitles(got, f.list1))
	assert.Equal(t, []string{"X", "A"}, cardTitles(got, f.list2))
	assert.Equal(t, []string{move.ActionID()}, e.Pending())
}

func TestRollbackRestoresExactPriorState(t *testing.T) {
	f := newBoardFixture()
	e := NewEngine(f.state)
	before := e.State()

	move := &MoveCard{ActionBase: NewActionBase(), CardID: f.cardA, TargetListID: f.list2, Position: 0}
	e.Apply(move)
	require.NotEqual(t, cardTitles(before, f.list1), cardTitles(e.State(), f.list1))

	require.True(t, e.Rollback(move.ActionID()))

	after := e.State()
	assert.Equal(t, cardTitles(before, f.list1), cardTitles(after, f.list1))
	assert.Equal(t, cardTitles(before, f.list2), cardTitles(after, f.list2))
	assert.Empty(t, e.Pending())
}

func TestRollbackPreservesOtherPendingActions(t *testing.T) {
	f := newBoardFixture()
	e := NewEngine(f.state)

	create := &CreateCard{
		ActionBase: NewActionBase(),
		Card:       model.Card{ID: uuid.New(), ListID: f.list2, Title: "C"},
	}
	move := &MoveCard{ActionBase: NewActionBase(), CardID: f.cardB, TargetListID: f.list2, Position: 0}
	e.Apply(create)
	e.Apply(move)

	// Rolling back the first action replays the second, so its effect
	// survives instead of being collapsed along with the failure.
	require.True(t, e.Rollback(create.ActionID()))

	got := e.State()
	assert.Equal(t, []string{"A"}, cardTitles(got, f.list1))
	assert.Equal(t, []string{"B", "X"}, cardTitles(got, f.list2))
	assert.Equal(t, []string{move.ActionID()}, e.Pending())
}

func TestConfirmWithServerStateReplacesTemporaryEntities(t *testing.T) {
	f := newBoardFixture()
	e := NewEngine(f.state)

	tempID := uuid.New()
	create := &CreateCard{
		ActionBase: NewActionBase(),
		Card:       model.Card{ID: tempID, ListID: f.list1, Title: "draft"},
	}
	e.Apply(create)

	// Server answers with the canonical entity under its own id.
	canonicalID := uuid.New()
	server := f.state.Clone()
	server.insertCard(model.Card{ID: canonicalID, ListID: f.list1, Title: "draft"}, 2)

	require.True(t, e.Confirm(create.ActionID(), server))

	got := e.State()
	_, tempStillThere := got.CardByID(tempID)
	assert.False(t, tempStillThere)
	canonical, ok := got.CardByID(canonicalID)
	require.True(t, ok)
	assert.Equal(t, "draft", canonical.Title)
	assert.Empty(t, e.Pending())
}

func TestConfirmWithoutServerStateKeepsEffect(t *testing.T) {
	f := newBoardFixture()
	e := NewEngine(f.state)

	move := &MoveCard{ActionBase: NewActionBase(), CardID: f.cardA, TargetListID: f.list2, Position: 1}
	e.Apply(move)
	require.True(t, e.Confirm(move.ActionID(), nil))

	got := e.State()
	assert.Equal(t, []string{"B"}, cardTitles(got, f.list1))
	assert.Equal(t, []string{"X", "A"}, cardTitles(got, f.list2))
	assert.Empty(t, e.Pending())

	// The confirmed snapshot carries it too: a later rollback of anything
	// else cannot undo a settled move.
	other := &ReorderCards{ActionBase: NewActionBase(), ListID: f.list2, OrderedIDs: []uuid.UUID{f.cardA, f.cardX}}
	e.Apply(other)
	require.True(t, e.Rollback(other.ActionID()))
	assert.Equal(t, []string{"X", "A"}, cardTitles(e.State(), f.list2))
}

func TestConfirmUnknownActionIsRejected(t *testing.T) {
	f := newBoardFixture()
	e := NewEngine(f.state)

	assert.False(t, e.Confirm("never-applied", nil))
	assert.False(t, e.Rollback("never-applied"))
}

func TestMergeRemoteReplaysPendingOnTop(t *testing.T) {
	f := newBoardFixture()
	e := NewEngine(f.state)

	// A local move is in flight while another client's card arrives.
	move := &MoveCard{ActionBase: NewActionBase(), CardID: f.cardA, TargetListID: f.list2, Position: 0}
	e.Apply(move)

	remoteID := uuid.New()
	e.MergeRemote(func(s *BoardState) {
		s.insertCard(model.Card{ID: remoteID, ListID: f.list1, Title: "R"}, 0)
	})

	got := e.State()
	assert.Equal(t, []string{"R", "B"}, cardTitles(got, f.list1))
	assert.Equal(t, []string{"A", "X"}, cardTitles(got, f.list2))
	assert.Equal(t, []string{move.ActionID()}, e.Pending())
}

func TestReduceIsPure(t *testing.T) {
	f := newBoardFixture()
	before := f.state.Clone()

	reduce(f.state, &MoveCard{ActionBase: NewActionBase(), CardID: f.cardA, TargetListID: f.list2, Position: 0})

	assert.Equal(t, cardTitles(before, f.list1), cardTitles(f.state, f.list1))
	assert.Equal(t, cardTitles(before, f.list2), cardTitles(f.state, f.list2))
}

func TestReorderActionsRenumberDense(t *testing.T) {
	f := newBoardFixture()
	e := NewEngine(f.state)

	e.Apply(&ReorderCards{
		ActionBase: NewActionBase(),
		ListID:     f.list1,
		OrderedIDs: []uuid.UUID{f.cardB, uuid.New(), f.cardA},
	})

	got := e.State()
	require.Equal(t, []string{"B", "A"}, cardTitles(got, f.list1), "unknown ids are skipped")
	for i, c := range got.Cards[f.list1] {
		assert.Equal(t, i, c.Position)
	}
}

func TestSettleDropsSpeculativeDelta(t *testing.T) {
	f := newBoardFixture()
	e := NewEngine(f.state)

	tempID := uuid.New()
	create := &CreateCard{
		ActionBase: NewActionBase(),
		Card:       model.Card{ID: tempID, ListID: f.list1, Title: "draft"},
	}
	other := &MoveCard{ActionBase: NewActionBase(), CardID: f.cardB, TargetListID: f.list2, Position: 0}
	e.Apply(create)
	e.Apply(other)

	require.True(t, e.Settle(create.ActionID()))

	// The temporary entity vanished with its action; the unrelated pending
	// move still replays.
	got := e.State()
	_, stillThere := got.CardByID(tempID)
	assert.False(t, stillThere)
	assert.Equal(t, []string{"B", "X"}, cardTitles(got, f.list2))
	assert.Equal(t, []string{other.ActionID()}, e.Pending())

	assert.False(t, e.Settle(create.ActionID()), "a settled action cannot settle twice")
}
