// Package activity writes the audit trail. One record is written per
// non-suppressed broadcast, whether or not any client received the push.
package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Entry struct {
	UserID      uuid.UUID       `json:"userId"`
	WorkspaceID uuid.UUID       `json:"workspaceId"`
	EntityID    uuid.UUID       `json:"entityId"`
	Action      string          `json:"action"`
	Detail      json.RawMessage `json:"detail,omitempty"`
	At          time.Time       `json:"at"`
}

type Logger interface {
	Log(ctx context.Context, e Entry) error
}

// PostgresLogger appends to the activities table.
type PostgresLogger struct {
	pool *pgxpool.Pool
}

func NewPostgresLogger(pool *pgxpool.Pool) *PostgresLogger {
	return &PostgresLogger{pool: pool}
}

func (l *PostgresLogger) Log(ctx context.Context, e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := l.pool.Exec(ctx,
		`INSERT INTO activities (id, user_id, workspace_id, entity_id, action, detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New(), e.UserID, e.WorkspaceID, e.EntityID, e.Action, e.Detail, e.At)
	if err != nil {
		return fmt.Errorf("log activity: %w", err)
	}
	return nil
}

// SlogLogger writes entries to the structured log only. Useful when the
// activity store is unavailable and during local development.
type SlogLogger struct{}

func (SlogLogger) Log(ctx context.Context, e Entry) error {
	slog.Info("activity",
		"user", e.UserID,
		"workspace", e.WorkspaceID,
		"entity", e.EntityID,
		"action", e.Action)
	return nil
}

// Recorder keeps entries in memory for tests.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

func (r *Recorder) Log(ctx context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
