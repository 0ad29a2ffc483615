package client

import (
	"time"

	"github.com/google/uuid"

	"collabboard/internal/model"
)

// Action is the sealed union of the five speculative mutations. A value
// lives in the pending log from the moment the mutation is requested until
// it is confirmed or rolled back.
type Action interface {
	// ActionID identifies the action across the request, the pending log
	// and the server's echoed event.
	ActionID() string
	isAction()
}

// ActionBase carries the identity shared by all action kinds.
type ActionBase struct {
	ID string
	At time.Time
}

func (b ActionBase) ActionID() string { return b.ID }
func (ActionBase) isAction()          {}

// NewActionBase allocates an action identity.
func NewActionBase() ActionBase {
	return ActionBase{ID: uuid.NewString(), At: time.Now()}
}

// MoveCard moves a card to Position within TargetListID, which may be the
// card's current list or another one.
type MoveCard struct {
	ActionBase
	CardID       uuid.UUID
	TargetListID uuid.UUID
	Position     int
}

// ReorderCards replaces the card order of one list.
type ReorderCards struct {
	ActionBase
	ListID     uuid.UUID
	OrderedIDs []uuid.UUID
}

// ReorderLists replaces the list order of the board.
type ReorderLists struct {
	ActionBase
	OrderedIDs []uuid.UUID
}

// CreateCard appends a card carrying a client-generated temporary id. The
// server replaces it with the canonical entity on confirmation.
type CreateCard struct {
	ActionBase
	Card model.Card
}

// CreateList appends a list carrying a client-generated temporary id.
type CreateList struct {
	ActionBase
	List model.List
}

// reduce produces the next snapshot for an action. It is pure: the input is
// cloned, never mutated. The type switch is exhaustive over the sealed
// union; an unknown action leaves the state unchanged.
func reduce(s *BoardState, a Action) *BoardState {
	next := s.Clone()
	switch act := a.(type) {
	case *MoveCard:
		card, ok := next.CardByID(act.CardID)
		if !ok {
			return next
		}
		next.removeCard(act.CardID)
		card.ListID = act.TargetListID
		next.insertCard(card, act.Position)

	case *ReorderCards:
		next.Cards[act.ListID] = reorderCards(next.Cards[act.ListID], act.OrderedIDs)

	case *ReorderLists:
		next.Lists = reorderLists(next.Lists, act.OrderedIDs)

	case *CreateCard:
		card := act.Card
		next.insertCard(card, len(next.Cards[card.ListID]))

	case *CreateList:
		list := act.List
		list.Position = len(next.Lists)
		next.Lists = append(next.Lists, list)
		if next.Cards == nil {
			next.Cards = make(map[uuid.UUID][]model.Card)
		}
		if next.Cards[list.ID] == nil {
			next.Cards[list.ID] = []model.Card{}
		}
	}
	return next
}

// reorderCards rebuilds a card collection from an id sequence. Ids not
// currently present are skipped; cards missing from the sequence are
// dropped, matching the server's authoritative-order semantics.
func reorderCards(cards []model.Card, orderedIDs []uuid.UUID) []model.Card {
	byID := make(map[uuid.UUID]model.Card, len(cards))
	for _, c := range cards {
		byID[c.ID] = c
	}
	out := make([]model.Card, 0, len(orderedIDs))
	for _, id := range orderedIDs {
		c, ok := byID[id]
		if !ok {
			continue
		}
		c.Position = len(out)
		out = append(out, c)
	}
	return out
}

func reorderLists(lists []model.List, orderedIDs []uuid.UUID) []model.List {
	byID := make(map[uuid.UUID]model.List, len(lists))
	for _, l := range lists {
		byID[l.ID] = l
	}
	out := make([]model.List, 0, len(orderedIDs))
	for _, id := range orderedIDs {
		l, ok := byID[id]
		if !ok {
			continue
		}
		l.Position = len(out)
		out = append(out, l)
	}
	return out
}
