package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"collabboard/internal/model"
)

// MemoryStore implements Store with in-memory maps. It is used by tests and
// by the agent binary; the server runs on the postgres implementation.
//
// Atomic takes a single store-wide mutex for the duration of the callback,
// which gives serializable transactions. Rollback is implemented by applying
// fn to a deep copy and swapping it in only on success.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	boards map[uuid.UUID]model.Board
	lists  map[uuid.UUID]model.List
	cards  map[uuid.UUID]model.Card
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		boards: make(map[uuid.UUID]model.Board),
		lists:  make(map[uuid.UUID]model.List),
		cards:  make(map[uuid.UUID]model.Card),
	}}
}

// Seed inserts entities outside of any transaction, for test setup.
func (m *MemoryStore) Seed(boards []model.Board, lists []model.List, cards []model.Card) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range boards {
		m.state.boards[b.ID] = b
	}
	for _, l := range lists {
		m.state.lists[l.ID] = l
	}
	for _, c := range cards {
		m.state.cards[c.ID] = c
	}
}

func (m *MemoryStore) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(&memTx{state: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (s *memState) clone() *memState {
	out := &memState{
		boards: make(map[uuid.UUID]model.Board, len(s.boards)),
		lists:  make(map[uuid.UUID]model.List, len(s.lists)),
		cards:  make(map[uuid.UUID]model.Card, len(s.cards)),
	}
	for id, b := range s.boards {
		out.boards[id] = b
	}
	for id, l := range s.lists {
		out.lists[id] = l
	}
	for id, c := range s.cards {
		out.cards[id] = c
	}
	return out
}

type memTx struct {
	state *memState
}

// inScope visits every entity in the scope, allowing the visitor to rewrite
// it. Cards are scoped by list, lists by board.
func (t *memTx) inScope(scope model.Scope, visit func(id uuid.UUID, pos int) (int, bool)) {
	switch scope.Kind {
	case model.KindCard:
		for id, c := range t.state.cards {
			if c.ListID != scope.ParentID {
				continue
			}
			if pos, ok := visit(id, c.Position); ok {
				c.Position = pos
				t.state.cards[id] = c
			}
		}
	case model.KindList:
		for id, l := range t.state.lists {
			if l.BoardID != scope.ParentID {
				continue
			}
			if pos, ok := visit(id, l.Position); ok {
				l.Position = pos
				t.state.lists[id] = l
			}
		}
	}
}

func (t *memTx) MaxPosition(ctx context.Context, scope model.Scope) (int, error) {
	max := -1
	t.inScope(scope, func(id uuid.UUID, pos int) (int, bool) {
		if pos > max {
			max = pos
		}
		return 0, false
	})
	return max, nil
}

func (t *memTx) Placement(ctx context.Context, kind model.Kind, id uuid.UUID) (uuid.UUID, int, error) {
	switch kind {
	case model.KindCard:
		c, ok := t.state.cards[id]
		if !ok {
			return uuid.Nil, 0, ErrNotFound
		}
		return c.ListID, c.Position, nil
	case model.KindList:
		l, ok := t.state.lists[id]
		if !ok {
			return uuid.Nil, 0, ErrNotFound
		}
		return l.BoardID, l.Position, nil
	}
	return uuid.Nil, 0, ErrNotFound
}

func (t *memTx) Shift(ctx context.Context, scope model.Scope, lo, hi, delta int) error {
	t.inScope(scope, func(id uuid.UUID, pos int) (int, bool) {
		if pos >= lo && pos <= hi {
			return pos + delta, true
		}
		return 0, false
	})
	return nil
}

func (t *memTx) ShiftFrom(ctx context.Context, scope model.Scope, from, delta int) error {
	t.inScope(scope, func(id uuid.UUID, pos int) (int, bool) {
		if pos >= from {
			return pos + delta, true
		}
		return 0, false
	})
	return nil
}

func (t *memTx) SetPlacement(ctx context.Context, kind model.Kind, id, parentID uuid.UUID, position int) error {
	switch kind {
	case model.KindCard:
		c, ok := t.state.cards[id]
		if !ok {
			return ErrNotFound
		}
		c.ListID = parentID
		c.Position = position
		t.state.cards[id] = c
	case model.KindList:
		l, ok := t.state.lists[id]
		if !ok {
			return ErrNotFound
		}
		l.BoardID = parentID
		l.Position = position
		t.state.lists[id] = l
	}
	return nil
}

func (t *memTx) IDsInScope(ctx context.Context, scope model.Scope) ([]uuid.UUID, error) {
	type entry struct {
		id  uuid.UUID
		pos int
	}
	var entries []entry
	t.inScope(scope, func(id uuid.UUID, pos int) (int, bool) {
		entries = append(entries, entry{id: id, pos: pos})
		return 0, false
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].pos < entries[j].pos })
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.id
	}
	return ids, nil
}

func (t *memTx) SetPositions(ctx context.Context, scope model.Scope, orderedIDs []uuid.UUID) error {
	for index, id := range orderedIDs {
		if err := t.SetPlacement(ctx, scope.Kind, id, scope.ParentID, index); err != nil {
			return err
		}
	}
	return nil
}

func (t *memTx) InsertCard(ctx context.Context, card model.Card) error {
	t.state.cards[card.ID] = card
	return nil
}

func (t *memTx) GetCard(ctx context.Context, id uuid.UUID) (model.Card, error) {
	c, ok := t.state.cards[id]
	if !ok {
		return model.Card{}, ErrNotFound
	}
	return c, nil
}

func (t *memTx) UpdateCard(ctx context.Context, card model.Card) error {
	current, ok := t.state.cards[card.ID]
	if !ok {
		return ErrNotFound
	}
	current.Title = card.Title
	current.Description = card.Description
	current.UpdatedAt = card.UpdatedAt
	t.state.cards[card.ID] = current
	return nil
}

func (t *memTx) DeleteCard(ctx context.Context, id uuid.UUID) error {
	delete(t.state.cards, id)
	return nil
}

func (t *memTx) InsertList(ctx context.Context, list model.List) error {
	t.state.lists[list.ID] = list
	return nil
}

func (t *memTx) GetList(ctx context.Context, id uuid.UUID) (model.List, error) {
	l, ok := t.state.lists[id]
	if !ok {
		return model.List{}, ErrNotFound
	}
	return l, nil
}

func (t *memTx) UpdateList(ctx context.Context, list model.List) error {
	current, ok := t.state.lists[list.ID]
	if !ok {
		return ErrNotFound
	}
	current.Title = list.Title
	current.Archived = list.Archived
	current.UpdatedAt = list.UpdatedAt
	t.state.lists[list.ID] = current
	return nil
}

func (t *memTx) DeleteList(ctx context.Context, id uuid.UUID) error {
	delete(t.state.lists, id)
	return nil
}

func (t *memTx) GetBoard(ctx context.Context, id uuid.UUID) (model.Board, error) {
	b, ok := t.state.boards[id]
	if !ok {
		return model.Board{}, ErrNotFound
	}
	return b, nil
}

func (t *memTx) UpdateBoard(ctx context.Context, board model.Board) error {
	if _, ok := t.state.boards[board.ID]; !ok {
		return ErrNotFound
	}
	t.state.boards[board.ID] = board
	return nil
}

func (t *memTx) BoardState(ctx context.Context, boardID uuid.UUID) (BoardSnapshot, error) {
	board, ok := t.state.boards[boardID]
	if !ok {
		return BoardSnapshot{}, ErrNotFound
	}
	snap := BoardSnapshot{
		Board: board,
		Cards: make(map[uuid.UUID][]model.Card),
	}
	for _, l := range t.state.lists {
		if l.BoardID == boardID {
			snap.Lists = append(snap.Lists, l)
		}
	}
	sort.Slice(snap.Lists, func(i, j int) bool { return snap.Lists[i].Position < snap.Lists[j].Position })
	for _, l := range snap.Lists {
		for _, c := range t.state.cards {
			if c.ListID == l.ID {
				snap.Cards[l.ID] = append(snap.Cards[l.ID], c)
			}
		}
		cards := snap.Cards[l.ID]
		sort.Slice(cards, func(i, j int) bool { return cards[i].Position < cards[j].Position })
	}
	return snap, nil
}
