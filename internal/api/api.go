// Package api exposes the mutation endpoints consumed by board clients.
// Mutations go through request/response, never through the socket; the
// socket only pushes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"collabboard/internal/auth"
	"collabboard/internal/event"
	"collabboard/internal/position"
	"collabboard/internal/store"
	"collabboard/internal/workspace"
)

// ErrForbidden is returned when a mutation targets an entity outside the
// caller's workspaces.
var ErrForbidden = errors.New("not a workspace member")

type ctxKey int

const userIDKey ctxKey = iota

// Server wires the mutation handlers to their collaborators.
type Server struct {
	store     store.Store
	positions *position.Manager
	events    *event.Broadcaster
	verifier  auth.Verifier
	directory workspace.Directory
}

func NewServer(
	s store.Store,
	positions *position.Manager,
	events *event.Broadcaster,
	verifier auth.Verifier,
	directory workspace.Directory,
) *Server {
	return &Server{
		store:     s,
		positions: positions,
		events:    events,
		verifier:  verifier,
		directory: directory,
	}
}

// Routes mounts the API under /api on the given router.
func (s *Server) Routes(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.authMiddleware)

	api.HandleFunc("/boards/{boardID}", s.handleGetBoard).Methods(http.MethodGet)
	api.HandleFunc("/boards/{boardID}/lists", s.handleCreateList).Methods(http.MethodPost)
	api.HandleFunc("/boards/{boardID}/list-order", s.handleReorderLists).Methods(http.MethodPut)
	api.HandleFunc("/lists/{listID}/cards", s.handleCreateCard).Methods(http.MethodPost)
	api.HandleFunc("/lists/{listID}/card-order", s.handleReorderCards).Methods(http.MethodPut)
	api.HandleFunc("/cards/{cardID}/move", s.handleMoveCard).Methods(http.MethodPatch)
	api.HandleFunc("/cards/{cardID}", s.handleUpdateCard).Methods(http.MethodPatch)
	api.HandleFunc("/cards/{cardID}", s.handleDeleteCard).Methods(http.MethodDelete)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		userID, err := s.verifier.Verify(r.Context(), token)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

func callerID(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(userIDKey).(uuid.UUID)
	return id
}

// origin reads the client identity headers used to fold a pushed echo into
// the originating client's pending optimistic action.
func origin(r *http.Request) (clientID, actionID string) {
	return r.Header.Get("X-Client-Id"), r.Header.Get("X-Action-Id")
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(mux.Vars(r)[name])
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			slog.Warn("failed to encode response", "error", err)
		}
	}
}

// writeError maps domain errors onto status codes: scope-mismatch reorders
// are validation errors, unknown entities are not-found (the usual cause is
// a race with a concurrent delete), membership failures are forbidden.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, position.ErrScopeMismatch):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	default:
		slog.Error("mutation failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
