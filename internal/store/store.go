// Package store defines the persistence interface consumed by the position
// manager and the mutation API, together with an in-memory implementation.
// The Postgres implementation lives in the postgres subpackage.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"collabboard/internal/model"
)

// ErrNotFound is returned when an entity referenced by a mutation no longer
// exists, typically because it raced with a concurrent delete.
var ErrNotFound = errors.New("entity not found")

// Store opens transactions against the entity store. Every positional
// mutation runs inside exactly one Atomic call so the position invariant
// holds for any single completed operation.
type Store interface {
	// Atomic runs fn inside one transaction. If fn returns an error the
	// transaction is rolled back and nothing is persisted.
	Atomic(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of operations available inside a transaction. Positions are
// zero-based ordinals within a scope; implementations must apply shifts as
// single statements so a completed transaction leaves the scope dense.
type Tx interface {
	// MaxPosition returns the highest position in the scope, or -1 when the
	// scope is empty.
	MaxPosition(ctx context.Context, scope model.Scope) (int, error)

	// Placement returns the current parent and position of an entity.
	// Returns ErrNotFound if the entity does not exist.
	Placement(ctx context.Context, kind model.Kind, id uuid.UUID) (parentID uuid.UUID, position int, err error)

	// Shift adds delta to the position of every entity in the scope whose
	// position lies in [lo, hi].
	Shift(ctx context.Context, scope model.Scope, lo, hi, delta int) error

	// ShiftFrom adds delta to the position of every entity in the scope whose
	// position is >= from.
	ShiftFrom(ctx context.Context, scope model.Scope, from, delta int) error

	// SetPlacement moves an entity to the given parent and position.
	SetPlacement(ctx context.Context, kind model.Kind, id, parentID uuid.UUID, position int) error

	// IDsInScope returns the ids currently in the scope, ordered by position.
	IDsInScope(ctx context.Context, scope model.Scope) ([]uuid.UUID, error)

	// SetPositions assigns position = index for each id in orderedIDs within
	// the scope.
	SetPositions(ctx context.Context, scope model.Scope, orderedIDs []uuid.UUID) error

	InsertCard(ctx context.Context, card model.Card) error
	GetCard(ctx context.Context, id uuid.UUID) (model.Card, error)
	// UpdateCard persists the card's payload fields (title, description,
	// updated_at). Placement never changes here; list and position moves go
	// through SetPlacement under the scope lock.
	UpdateCard(ctx context.Context, card model.Card) error
	// DeleteCard removes the card. Sibling positions are not renumbered;
	// gaps are tolerated because position is only a sort key.
	DeleteCard(ctx context.Context, id uuid.UUID) error

	InsertList(ctx context.Context, list model.List) error
	GetList(ctx context.Context, id uuid.UUID) (model.List, error)
	// UpdateList persists title, archived and updated_at only, like
	// UpdateCard.
	UpdateList(ctx context.Context, list model.List) error
	DeleteList(ctx context.Context, id uuid.UUID) error

	GetBoard(ctx context.Context, id uuid.UUID) (model.Board, error)
	UpdateBoard(ctx context.Context, board model.Board) error

	// BoardState returns the board with its lists and cards ordered by
	// position, for client bootstrap.
	BoardState(ctx context.Context, boardID uuid.UUID) (BoardSnapshot, error)
}

// BoardSnapshot is a full read of one board, used to seed a client's local
// state before it starts consuming pushed events.
type BoardSnapshot struct {
	Board model.Board                `json:"board"`
	Lists []model.List               `json:"lists"`
	Cards map[uuid.UUID][]model.Card `json:"cards"`
}
