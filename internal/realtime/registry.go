package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"collabboard/internal/metrics"
)

// ErrConnectionLimit is returned when a user already has the maximum number
// of tracked sessions. The extra connection is authenticated but never
// tracked; the caller closes it without sending detail.
var ErrConnectionLimit = errors.New("connection limit reached")

// DefaultMaxConnectionsPerUser caps concurrent sessions per user.
const DefaultMaxConnectionsPerUser = 5

// Registry tracks authenticated sessions in two indexes (socket -> session,
// user -> sessions) and maintains one room per workspace. It is an owned
// object with explicit construction and teardown; there is no package-level
// state.
type Registry struct {
	maxPerUser    int
	sweepInterval time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session               // socketID -> session
	byUser   map[uuid.UUID]map[string]*Session // userID -> socketID -> session
	rooms    map[uuid.UUID]map[string]*Session // workspaceID -> socketID -> session

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRegistry(maxPerUser int, sweepInterval time.Duration) *Registry {
	if maxPerUser <= 0 {
		maxPerUser = DefaultMaxConnectionsPerUser
	}
	return &Registry{
		maxPerUser:    maxPerUser,
		sweepInterval: sweepInterval,
		sessions:      make(map[string]*Session),
		byUser:        make(map[uuid.UUID]map[string]*Session),
		rooms:         make(map[uuid.UUID]map[string]*Session),
	}
}

// Start launches the periodic sweep. The sweep drops any tracked session
// whose transport is no longer open, covering disconnects whose readPump
// teardown never ran.
func (r *Registry) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.Sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Close stops the sweep and disconnects every tracked session.
func (r *Registry) Close() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()

	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.byUser = make(map[uuid.UUID]map[string]*Session)
	r.rooms = make(map[uuid.UUID]map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	metrics.ConnectedSessions.Set(0)
	metrics.ConnectedUsers.Set(0)
}

// Add tracks a session and joins it to one room per workspace in its
// membership snapshot. Returns ErrConnectionLimit when the user is already
// at the cap; the session is then left untracked and existing sessions are
// unaffected.
func (r *Registry) Add(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.byUser[s.UserID]) >= r.maxPerUser {
		return ErrConnectionLimit
	}

	r.sessions[s.ID] = s
	if r.byUser[s.UserID] == nil {
		r.byUser[s.UserID] = make(map[string]*Session)
	}
	r.byUser[s.UserID][s.ID] = s
	for _, ws := range s.Workspaces {
		if r.rooms[ws] == nil {
			r.rooms[ws] = make(map[string]*Session)
		}
		r.rooms[ws][s.ID] = s
	}

	metrics.ConnectedSessions.Set(float64(len(r.sessions)))
	metrics.ConnectedUsers.Set(float64(len(r.byUser)))
	slog.Info("session connected",
		"session", s.ID,
		"user", s.UserID,
		"workspaces", len(s.Workspaces),
		"userSessions", len(r.byUser[s.UserID]))
	return nil
}

// Remove unregisters a session: it leaves every joined room and both
// indexes; when the user's last session goes, the user entry goes with it.
func (r *Registry) Remove(socketID string) {
	r.mu.Lock()
	s, ok := r.sessions[socketID]
	if !ok {
		r.mu.Unlock()
		return
	}
	r.removeLocked(s)
	r.mu.Unlock()

	slog.Info("session disconnected", "session", s.ID, "user", s.UserID)
}

func (r *Registry) removeLocked(s *Session) {
	delete(r.sessions, s.ID)
	if set := r.byUser[s.UserID]; set != nil {
		delete(set, s.ID)
		if len(set) == 0 {
			delete(r.byUser, s.UserID)
		}
	}
	for _, ws := range s.Workspaces {
		if room := r.rooms[ws]; room != nil {
			delete(room, s.ID)
			if len(room) == 0 {
				delete(r.rooms, ws)
			}
		}
	}
	s.Workspaces = nil
	metrics.ConnectedSessions.Set(float64(len(r.sessions)))
	metrics.ConnectedUsers.Set(float64(len(r.byUser)))
}

// Sweep scans all tracked sessions and drops the ones whose transport has
// closed. Runs on a fixed interval once Start is called; exported so tests
// can trigger it directly.
func (r *Registry) Sweep() {
	r.mu.Lock()
	var stale []*Session
	for _, s := range r.sessions {
		if !s.Alive() {
			stale = append(stale, s)
		}
	}
	for _, s := range stale {
		r.removeLocked(s)
	}
	r.mu.Unlock()

	if len(stale) > 0 {
		slog.Info("swept stale sessions", "count", len(stale))
	}
}

// ConnectionCount returns the number of tracked sessions for a user.
func (r *Registry) ConnectionCount(userID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID])
}

// RoomSize returns the number of sessions joined to a workspace room.
func (r *Registry) RoomSize(workspaceID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[workspaceID])
}

// UserCount returns the number of distinct connected users.
func (r *Registry) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// InRoom reports whether a session is currently a member of a workspace room.
func (r *Registry) InRoom(workspaceID uuid.UUID, socketID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room := r.rooms[workspaceID]
	_, ok := room[socketID]
	return ok
}

// DisconnectUser forcibly closes and removes every session of a user.
// Returns the number of sessions dropped.
func (r *Registry) DisconnectUser(userID uuid.UUID) int {
	r.mu.Lock()
	var victims []*Session
	for _, s := range r.byUser[userID] {
		victims = append(victims, s)
	}
	for _, s := range victims {
		r.removeLocked(s)
	}
	r.mu.Unlock()

	for _, s := range victims {
		s.Close()
	}
	if len(victims) > 0 {
		slog.Info("force disconnected user", "user", userID, "sessions", len(victims))
	}
	return len(victims)
}

// DeliverToRoom fans a payload out to every session in the workspace room.
// Non-blocking per session; full buffers drop.
func (r *Registry) DeliverToRoom(workspaceID uuid.UUID, payload []byte) {
	r.mu.RLock()
	members := make([]*Session, 0, len(r.rooms[workspaceID]))
	for _, s := range r.rooms[workspaceID] {
		members = append(members, s)
	}
	r.mu.RUnlock()

	for _, s := range members {
		s.Deliver(payload)
	}
}
