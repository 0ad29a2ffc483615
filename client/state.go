// Package client implements the board-client runtime: a speculative local
// state engine that applies mutations before the server answers, a
// reconciler that merges server-pushed events into live state, and the
// websocket transport feeding it.
package client

import (
	"github.com/google/uuid"

	"collabboard/internal/model"
	"collabboard/internal/store"
)

// BoardState is the client's snapshot of one board: ordered lists and the
// ordered cards of each list. All engine and reconciler operations work on
// clones, never in place.
type BoardState struct {
	Board model.Board
	Lists []model.List
	Cards map[uuid.UUID][]model.Card
}

// NewBoardState converts a server bootstrap snapshot.
func NewBoardState(snap store.BoardSnapshot) *BoardState {
	s := &BoardState{
		Board: snap.Board,
		Lists: append([]model.List(nil), snap.Lists...),
		Cards: make(map[uuid.UUID][]model.Card, len(snap.Cards)),
	}
	for listID, cards := range snap.Cards {
		s.Cards[listID] = append([]model.Card(nil), cards...)
	}
	return s
}

func (s *BoardState) Clone() *BoardState {
	if s == nil {
		return nil
	}
	out := &BoardState{
		Board: s.Board,
		Lists: append([]model.List(nil), s.Lists...),
		Cards: make(map[uuid.UUID][]model.Card, len(s.Cards)),
	}
	for listID, cards := range s.Cards {
		out.Cards[listID] = append([]model.Card(nil), cards...)
	}
	return out
}

// CardByID finds a card anywhere on the board.
func (s *BoardState) CardByID(id uuid.UUID) (model.Card, bool) {
	for _, cards := range s.Cards {
		for _, c := range cards {
			if c.ID == id {
				return c, true
			}
		}
	}
	return model.Card{}, false
}

// removeCard deletes the card from every list's collection.
func (s *BoardState) removeCard(id uuid.UUID) {
	for listID, cards := range s.Cards {
		for i, c := range cards {
			if c.ID == id {
				s.Cards[listID] = append(cards[:i:i], cards[i+1:]...)
				break
			}
		}
	}
}

// insertCard places the card at pos in the target list, clamped to the
// collection bounds, and renumbers that list's positions to stay dense.
func (s *BoardState) insertCard(card model.Card, pos int) {
	cards := s.Cards[card.ListID]
	if pos < 0 {
		pos = 0
	}
	if pos > len(cards) {
		pos = len(cards)
	}
	cards = append(cards[:pos:pos], append([]model.Card{card}, cards[pos:]...)...)
	for i := range cards {
		cards[i].Position = i
	}
	if s.Cards == nil {
		s.Cards = make(map[uuid.UUID][]model.Card)
	}
	s.Cards[card.ListID] = cards
}

// listIndex returns the index of a list, or -1.
func (s *BoardState) listIndex(id uuid.UUID) int {
	for i, l := range s.Lists {
		if l.ID == id {
			return i
		}
	}
	return -1
}
