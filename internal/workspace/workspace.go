// Package workspace exposes workspace membership to the connection layer and
// the mutation API. Workspace administration itself is an external service;
// the server only reads memberships.
package workspace

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"collabboard/internal/model"
)

// Directory answers membership questions. The connection registry snapshots
// WorkspacesFor once per connection at connect time; the snapshot is not
// refreshed mid-session.
type Directory interface {
	WorkspacesFor(ctx context.Context, userID uuid.UUID) ([]model.Workspace, error)
	IsMember(ctx context.Context, userID, workspaceID uuid.UUID) (bool, error)
}

// PostgresDirectory reads memberships from the workspace_members table.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

func (d *PostgresDirectory) WorkspacesFor(ctx context.Context, userID uuid.UUID) ([]model.Workspace, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT w.id, w.name FROM workspaces w
		 JOIN workspace_members m ON m.workspace_id = w.id
		 WHERE m.user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("workspaces for user: %w", err)
	}
	defer rows.Close()

	var out []model.Workspace
	for rows.Next() {
		var w model.Workspace
		if err := rows.Scan(&w.ID, &w.Name); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (d *PostgresDirectory) IsMember(ctx context.Context, userID, workspaceID uuid.UUID) (bool, error) {
	var member bool
	err := d.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM workspace_members WHERE user_id = $1 AND workspace_id = $2)`,
		userID, workspaceID).Scan(&member)
	if err != nil {
		return false, fmt.Errorf("membership check: %w", err)
	}
	return member, nil
}

// StaticDirectory is an in-memory Directory for tests and the agent.
type StaticDirectory struct {
	mu      sync.RWMutex
	members map[uuid.UUID][]model.Workspace
}

func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{members: make(map[uuid.UUID][]model.Workspace)}
}

func (d *StaticDirectory) Grant(userID uuid.UUID, ws model.Workspace) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.members[userID] = append(d.members[userID], ws)
}

func (d *StaticDirectory) WorkspacesFor(ctx context.Context, userID uuid.UUID) ([]model.Workspace, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.Workspace, len(d.members[userID]))
	copy(out, d.members[userID])
	return out, nil
}

func (d *StaticDirectory) IsMember(ctx context.Context, userID, workspaceID uuid.UUID) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, w := range d.members[userID] {
		if w.ID == workspaceID {
			return true, nil
		}
	}
	return false, nil
}
