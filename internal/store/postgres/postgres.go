// Package postgres implements store.Store on PostgreSQL via pgx. Each Atomic
// call runs in one pgx transaction; shifts are single UPDATE statements so a
// completed transaction leaves its scope dense.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"collabboard/internal/model"
	"collabboard/internal/store"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Atomic(ctx context.Context, fn func(tx store.Tx) error) error {
	pgtx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer pgtx.Rollback(ctx)

	if err := fn(&tx{tx: pgtx}); err != nil {
		return err
	}
	if err := pgtx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type tx struct {
	tx pgx.Tx
}

// scopeTable maps a scope to its table and parent column. Cards are scoped by
// list, lists by board.
func scopeTable(kind model.Kind) (table, parentCol string) {
	if kind == model.KindCard {
		return "cards", "list_id"
	}
	return "lists", "board_id"
}

func (t *tx) MaxPosition(ctx context.Context, scope model.Scope) (int, error) {
	table, parentCol := scopeTable(scope.Kind)
	var max int
	query := fmt.Sprintf(`SELECT COALESCE(MAX("position"), -1) FROM %s WHERE %s = $1`, table, parentCol)
	if err := t.tx.QueryRow(ctx, query, scope.ParentID).Scan(&max); err != nil {
		return 0, fmt.Errorf("max position: %w", err)
	}
	return max, nil
}

func (t *tx) Placement(ctx context.Context, kind model.Kind, id uuid.UUID) (uuid.UUID, int, error) {
	table, parentCol := scopeTable(kind)
	var parentID uuid.UUID
	var position int
	query := fmt.Sprintf(`SELECT %s, "position" FROM %s WHERE id = $1`, parentCol, table)
	err := t.tx.QueryRow(ctx, query, id).Scan(&parentID, &position)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, 0, store.ErrNotFound
	}
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("placement: %w", err)
	}
	return parentID, position, nil
}

func (t *tx) Shift(ctx context.Context, scope model.Scope, lo, hi, delta int) error {
	table, parentCol := scopeTable(scope.Kind)
	query := fmt.Sprintf(
		`UPDATE %s SET "position" = "position" + $1 WHERE %s = $2 AND "position" BETWEEN $3 AND $4`,
		table, parentCol)
	if _, err := t.tx.Exec(ctx, query, delta, scope.ParentID, lo, hi); err != nil {
		return fmt.Errorf("shift positions: %w", err)
	}
	return nil
}

func (t *tx) ShiftFrom(ctx context.Context, scope model.Scope, from, delta int) error {
	table, parentCol := scopeTable(scope.Kind)
	query := fmt.Sprintf(
		`UPDATE %s SET "position" = "position" + $1 WHERE %s = $2 AND "position" >= $3`,
		table, parentCol)
	if _, err := t.tx.Exec(ctx, query, delta, scope.ParentID, from); err != nil {
		return fmt.Errorf("shift positions from: %w", err)
	}
	return nil
}

func (t *tx) SetPlacement(ctx context.Context, kind model.Kind, id, parentID uuid.UUID, position int) error {
	table, parentCol := scopeTable(kind)
	query := fmt.Sprintf(`UPDATE %s SET %s = $1, "position" = $2 WHERE id = $3`, table, parentCol)
	tag, err := t.tx.Exec(ctx, query, parentID, position, id)
	if err != nil {
		return fmt.Errorf("set placement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) IDsInScope(ctx context.Context, scope model.Scope) ([]uuid.UUID, error) {
	table, parentCol := scopeTable(scope.Kind)
	query := fmt.Sprintf(`SELECT id FROM %s WHERE %s = $1 ORDER BY "position"`, table, parentCol)
	rows, err := t.tx.Query(ctx, query, scope.ParentID)
	if err != nil {
		return nil, fmt.Errorf("ids in scope: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (t *tx) SetPositions(ctx context.Context, scope model.Scope, orderedIDs []uuid.UUID) error {
	table, parentCol := scopeTable(scope.Kind)
	query := fmt.Sprintf(`UPDATE %s SET "position" = $1 WHERE id = $2 AND %s = $3`, table, parentCol)
	for index, id := range orderedIDs {
		tag, err := t.tx.Exec(ctx, query, index, id, scope.ParentID)
		if err != nil {
			return fmt.Errorf("set position for %s: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return store.ErrNotFound
		}
	}
	return nil
}

func (t *tx) InsertCard(ctx context.Context, card model.Card) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO cards (id, list_id, title, description, "position", updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		card.ID, card.ListID, card.Title, card.Description, card.Position, card.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert card: %w", err)
	}
	return nil
}

func (t *tx) GetCard(ctx context.Context, id uuid.UUID) (model.Card, error) {
	var c model.Card
	err := t.tx.QueryRow(ctx,
		`SELECT id, list_id, title, description, "position", updated_at FROM cards WHERE id = $1`, id).
		Scan(&c.ID, &c.ListID, &c.Title, &c.Description, &c.Position, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Card{}, store.ErrNotFound
	}
	if err != nil {
		return model.Card{}, fmt.Errorf("get card: %w", err)
	}
	return c, nil
}

func (t *tx) UpdateCard(ctx context.Context, card model.Card) error {
	// Placement columns stay untouched: a concurrent move committed between
	// the caller's read and this write must not be reverted by stale values.
	tag, err := t.tx.Exec(ctx,
		`UPDATE cards SET title = $1, description = $2, updated_at = $3 WHERE id = $4`,
		card.Title, card.Description, card.UpdatedAt, card.ID)
	if err != nil {
		return fmt.Errorf("update card: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) DeleteCard(ctx context.Context, id uuid.UUID) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM cards WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	return nil
}

func (t *tx) InsertList(ctx context.Context, list model.List) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO lists (id, board_id, title, "position", archived, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		list.ID, list.BoardID, list.Title, list.Position, list.Archived, list.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert list: %w", err)
	}
	return nil
}

func (t *tx) GetList(ctx context.Context, id uuid.UUID) (model.List, error) {
	var l model.List
	err := t.tx.QueryRow(ctx,
		`SELECT id, board_id, title, "position", archived, updated_at FROM lists WHERE id = $1`, id).
		Scan(&l.ID, &l.BoardID, &l.Title, &l.Position, &l.Archived, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.List{}, store.ErrNotFound
	}
	if err != nil {
		return model.List{}, fmt.Errorf("get list: %w", err)
	}
	return l, nil
}

func (t *tx) UpdateList(ctx context.Context, list model.List) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE lists SET title = $1, archived = $2, updated_at = $3 WHERE id = $4`,
		list.Title, list.Archived, list.UpdatedAt, list.ID)
	if err != nil {
		return fmt.Errorf("update list: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) DeleteList(ctx context.Context, id uuid.UUID) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM lists WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete list: %w", err)
	}
	return nil
}

func (t *tx) GetBoard(ctx context.Context, id uuid.UUID) (model.Board, error) {
	var b model.Board
	err := t.tx.QueryRow(ctx,
		`SELECT id, workspace_id, title, description, updated_at FROM boards WHERE id = $1`, id).
		Scan(&b.ID, &b.WorkspaceID, &b.Title, &b.Description, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Board{}, store.ErrNotFound
	}
	if err != nil {
		return model.Board{}, fmt.Errorf("get board: %w", err)
	}
	return b, nil
}

func (t *tx) UpdateBoard(ctx context.Context, board model.Board) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE boards SET title = $1, description = $2, updated_at = $3 WHERE id = $4`,
		board.Title, board.Description, board.UpdatedAt, board.ID)
	if err != nil {
		return fmt.Errorf("update board: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) BoardState(ctx context.Context, boardID uuid.UUID) (store.BoardSnapshot, error) {
	board, err := t.GetBoard(ctx, boardID)
	if err != nil {
		return store.BoardSnapshot{}, err
	}
	snap := store.BoardSnapshot{
		Board: board,
		Cards: make(map[uuid.UUID][]model.Card),
	}

	rows, err := t.tx.Query(ctx,
		`SELECT id, board_id, title, "position", archived, updated_at
		 FROM lists WHERE board_id = $1 ORDER BY "position"`, boardID)
	if err != nil {
		return store.BoardSnapshot{}, fmt.Errorf("board lists: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var l model.List
		if err := rows.Scan(&l.ID, &l.BoardID, &l.Title, &l.Position, &l.Archived, &l.UpdatedAt); err != nil {
			return store.BoardSnapshot{}, err
		}
		snap.Lists = append(snap.Lists, l)
	}
	if err := rows.Err(); err != nil {
		return store.BoardSnapshot{}, err
	}
	rows.Close()

	cardRows, err := t.tx.Query(ctx,
		`SELECT c.id, c.list_id, c.title, c.description, c."position", c.updated_at
		 FROM cards c JOIN lists l ON c.list_id = l.id
		 WHERE l.board_id = $1 ORDER BY c."position"`, boardID)
	if err != nil {
		return store.BoardSnapshot{}, fmt.Errorf("board cards: %w", err)
	}
	defer cardRows.Close()
	for cardRows.Next() {
		var c model.Card
		if err := cardRows.Scan(&c.ID, &c.ListID, &c.Title, &c.Description, &c.Position, &c.UpdatedAt); err != nil {
			return store.BoardSnapshot{}, err
		}
		snap.Cards[c.ListID] = append(snap.Cards[c.ListID], c)
	}
	return snap, cardRows.Err()
}
