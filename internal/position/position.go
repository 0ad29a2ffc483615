// Package position implements the authoritative ordering engine. Every
// mutation runs inside one store transaction, and every mutation on a scope
// holds that scope's lock for the whole read-then-write sequence so that two
// concurrent appends cannot compute the same max+1 within a process.
package position

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"collabboard/internal/metrics"
	"collabboard/internal/model"
	"collabboard/internal/store"
)

// ErrScopeMismatch is returned by ReorderScope when the submitted id set does
// not exactly match the scope's current members. Nothing is written.
var ErrScopeMismatch = errors.New("ordered ids do not match scope members")

// Manager serializes positional mutations per scope and keeps the position
// invariant: after any single completed operation, positions within the
// affected scope form a strictly increasing sequence with no duplicates.
type Manager struct {
	store store.Store

	// locks holds one mutex per scope seen so far. Entries are never
	// reclaimed; the map is bounded by the number of distinct scopes this
	// process has mutated.
	locks sync.Map // model.Scope -> *sync.Mutex
}

func NewManager(s store.Store) *Manager {
	return &Manager{store: s}
}

func (m *Manager) lock(scope model.Scope) *sync.Mutex {
	mu, _ := m.locks.LoadOrStore(scope, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// lockScopes acquires the locks for both scopes in a stable order so two
// cross-scope moves in opposite directions cannot deadlock.
func (m *Manager) lockScopes(a, b model.Scope) func() {
	if a == b {
		mu := m.lock(a)
		mu.Lock()
		return mu.Unlock
	}
	first, second := a, b
	if scopeKey(b) < scopeKey(a) {
		first, second = b, a
	}
	mu1, mu2 := m.lock(first), m.lock(second)
	mu1.Lock()
	mu2.Lock()
	return func() {
		mu2.Unlock()
		mu1.Unlock()
	}
}

func scopeKey(s model.Scope) string {
	return fmt.Sprintf("%d/%s", s.Kind, s.ParentID)
}

// Insert appends a new entity at the tail of the scope: the insert callback
// receives the next free position (max+1, or 0 for an empty scope) and must
// write the entity inside the same transaction.
func (m *Manager) Insert(ctx context.Context, scope model.Scope, insert func(tx store.Tx, pos int) error) error {
	mu := m.lock(scope)
	mu.Lock()
	defer mu.Unlock()

	err := m.store.Atomic(ctx, func(tx store.Tx) error {
		max, err := tx.MaxPosition(ctx, scope)
		if err != nil {
			return err
		}
		return insert(tx, max+1)
	})
	if err == nil {
		metrics.PositionMutations.WithLabelValues("insert").Inc()
	}
	return err
}

// MoveWithinScope moves an entity to newPos inside its current scope.
// Moving toward the front shifts every sibling in [newPos, oldPos) up by one;
// moving toward the back shifts every sibling in (oldPos, newPos] down by
// one; the entity itself is then set to newPos. All writes happen in one
// transaction.
func (m *Manager) MoveWithinScope(ctx context.Context, scope model.Scope, id uuid.UUID, newPos int) error {
	mu := m.lock(scope)
	mu.Lock()
	defer mu.Unlock()

	err := m.store.Atomic(ctx, func(tx store.Tx) error {
		parentID, oldPos, err := tx.Placement(ctx, scope.Kind, id)
		if err != nil {
			return err
		}
		if parentID != scope.ParentID {
			return store.ErrNotFound
		}
		switch {
		case newPos < oldPos:
			if err := tx.Shift(ctx, scope, newPos, oldPos-1, +1); err != nil {
				return err
			}
		case newPos > oldPos:
			if err := tx.Shift(ctx, scope, oldPos+1, newPos, -1); err != nil {
				return err
			}
		}
		return tx.SetPlacement(ctx, scope.Kind, id, scope.ParentID, newPos)
	})
	if err == nil {
		metrics.PositionMutations.WithLabelValues("move_within").Inc()
	}
	return err
}

// MoveAcrossScopes moves an entity from source to target at targetPos. The
// source scope closes the gap (every sibling past the entity shifts down by
// one), the target scope opens a slot (every entity at or past targetPos
// shifts up by one), and the entity is re-parented, all in one transaction.
func (m *Manager) MoveAcrossScopes(ctx context.Context, id uuid.UUID, source, target model.Scope, targetPos int) error {
	if source.Kind != target.Kind {
		return fmt.Errorf("cannot move a %s into a %s scope", source.Kind, target.Kind)
	}
	unlock := m.lockScopes(source, target)
	defer unlock()

	err := m.store.Atomic(ctx, func(tx store.Tx) error {
		parentID, oldPos, err := tx.Placement(ctx, source.Kind, id)
		if err != nil {
			return err
		}
		if parentID != source.ParentID {
			return store.ErrNotFound
		}
		if err := tx.ShiftFrom(ctx, source, oldPos+1, -1); err != nil {
			return err
		}
		if err := tx.ShiftFrom(ctx, target, targetPos, +1); err != nil {
			return err
		}
		return tx.SetPlacement(ctx, source.Kind, id, target.ParentID, targetPos)
	})
	if err == nil {
		metrics.PositionMutations.WithLabelValues("move_across").Inc()
	}
	return err
}

// ReorderScope assigns position = index for each id in orderedIDs. The id
// set must exactly match the scope's current members; otherwise
// ErrScopeMismatch is returned and nothing is written.
func (m *Manager) ReorderScope(ctx context.Context, scope model.Scope, orderedIDs []uuid.UUID) error {
	mu := m.lock(scope)
	mu.Lock()
	defer mu.Unlock()

	err := m.store.Atomic(ctx, func(tx store.Tx) error {
		current, err := tx.IDsInScope(ctx, scope)
		if err != nil {
			return err
		}
		if err := matchMembers(current, orderedIDs); err != nil {
			return err
		}
		return tx.SetPositions(ctx, scope, orderedIDs)
	})
	if err == nil {
		metrics.PositionMutations.WithLabelValues("reorder").Inc()
	}
	return err
}

// matchMembers checks the two id sets are identical, tolerating order and
// rejecting duplicates.
func matchMembers(current, submitted []uuid.UUID) error {
	if len(current) != len(submitted) {
		return fmt.Errorf("%w: scope has %d members, request has %d", ErrScopeMismatch, len(current), len(submitted))
	}
	seen := make(map[uuid.UUID]bool, len(current))
	for _, id := range current {
		seen[id] = true
	}
	var unknown []string
	for _, id := range submitted {
		if !seen[id] {
			unknown = append(unknown, id.String())
			continue
		}
		delete(seen, id)
	}
	if len(unknown) > 0 || len(seen) > 0 {
		return fmt.Errorf("%w: unknown ids [%s]", ErrScopeMismatch, strings.Join(unknown, ", "))
	}
	return nil
}
