package client

import (
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"collabboard/internal/model"
)

// Reconciler merges server-pushed events into the engine's confirmed state.
// An event that this client itself originated, still matched by a pending
// action, is folded into that action's confirmation instead of being merged
// a second time through a separate path.
type Reconciler struct {
	engine   *Engine
	clientID string
}

func NewReconciler(engine *Engine, clientID string) *Reconciler {
	return &Reconciler{engine: engine, clientID: clientID}
}

// Apply routes one pushed envelope. Unknown channels and malformed payloads
// are logged and dropped; the next full snapshot fetch repairs any drift.
func (r *Reconciler) Apply(ev model.Event) {
	if ev.Origin != "" && ev.Origin == r.clientID && ev.ActionID != "" {
		// Our own echo. Settle the pending action without replaying its
		// speculative delta, then merge the payload below like any remote
		// event: the payload carries the server's version of the effect,
		// canonical ids included, so a create's temporary entity is
		// replaced rather than confirmed. If the action already settled
		// via the HTTP response or rolled back, the merge alone applies.
		r.engine.Settle(ev.ActionID)
	}

	switch ev.Channel {
	case model.ChannelCard:
		r.applyCard(ev)
	case model.ChannelList:
		r.applyList(ev)
	case model.ChannelBoard:
		r.applyBoard(ev)
	default:
		slog.Warn("event on unknown channel", "channel", ev.Channel)
	}
}

func (r *Reconciler) applyCard(ev model.Event) {
	switch ev.Type {
	case model.EventCreated, model.EventUpdated:
		var card model.Card
		if !decode(ev, &card) {
			return
		}
		r.engine.MergeRemote(func(s *BoardState) {
			upsertCard(s, card)
		})

	case model.EventMoved:
		var move model.MoveCardData
		if !decode(ev, &move) {
			return
		}
		r.engine.MergeRemote(func(s *BoardState) {
			// Remove from any other list first, then place by the server's
			// authoritative position.
			s.removeCard(move.Card.ID)
			s.insertCard(move.Card, move.Card.Position)
		})

	case model.EventDeleted:
		var del model.DeleteData
		if !decode(ev, &del) {
			return
		}
		r.engine.MergeRemote(func(s *BoardState) {
			s.removeCard(del.ID)
		})

	case model.EventReordered:
		var data model.ReorderData
		if !decode(ev, &data) {
			return
		}
		r.engine.MergeRemote(func(s *BoardState) {
			// Ids that raced with a concurrent delete are silently skipped;
			// only a follow-up fetch can recover those.
			s.Cards[data.ScopeID] = reorderCards(s.Cards[data.ScopeID], data.OrderedIDs)
		})
	}
}

func (r *Reconciler) applyList(ev model.Event) {
	switch ev.Type {
	case model.EventCreated:
		var list model.List
		if !decode(ev, &list) {
			return
		}
		r.engine.MergeRemote(func(s *BoardState) {
			if s.listIndex(list.ID) >= 0 {
				return
			}
			s.Lists = append(s.Lists, list)
			if s.Cards == nil {
				s.Cards = make(map[uuid.UUID][]model.Card)
			}
			if s.Cards[list.ID] == nil {
				s.Cards[list.ID] = []model.Card{}
			}
		})

	case model.EventUpdated:
		var list model.List
		if !decode(ev, &list) {
			return
		}
		r.engine.MergeRemote(func(s *BoardState) {
			if i := s.listIndex(list.ID); i >= 0 {
				s.Lists[i] = list
			}
		})

	case model.EventReordered:
		var data model.ReorderData
		if !decode(ev, &data) {
			return
		}
		r.engine.MergeRemote(func(s *BoardState) {
			s.Lists = reorderLists(s.Lists, data.OrderedIDs)
		})

	case model.EventDeleted:
		var del model.DeleteData
		if !decode(ev, &del) {
			return
		}
		r.engine.MergeRemote(func(s *BoardState) {
			if i := s.listIndex(del.ID); i >= 0 {
				s.Lists = append(s.Lists[:i:i], s.Lists[i+1:]...)
			}
			delete(s.Cards, del.ID)
		})
	}
}

func (r *Reconciler) applyBoard(ev model.Event) {
	switch ev.Type {
	case model.EventUpdated:
		var board model.Board
		if !decode(ev, &board) {
			return
		}
		r.engine.MergeRemote(func(s *BoardState) {
			s.Board = board
		})

	case model.EventDeleted:
		r.engine.MergeRemote(func(s *BoardState) {
			*s = BoardState{Cards: make(map[uuid.UUID][]model.Card)}
		})
	}
}

// upsertCard replaces the card by id in its target list, removing it from
// any other list it may still appear in.
func upsertCard(s *BoardState, card model.Card) {
	cards := s.Cards[card.ListID]
	for i, c := range cards {
		if c.ID == card.ID {
			cards[i] = card
			return
		}
	}
	s.removeCard(card.ID)
	s.insertCard(card, card.Position)
}

func decode(ev model.Event, v any) bool {
	if err := json.Unmarshal(ev.Data, v); err != nil {
		slog.Warn("dropping undecodable event", "channel", ev.Channel, "type", ev.Type, "error", err)
		return false
	}
	return true
}
