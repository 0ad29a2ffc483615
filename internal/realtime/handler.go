package realtime

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"collabboard/internal/auth"
	"collabboard/internal/metrics"
	"collabboard/internal/workspace"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler authenticates and upgrades incoming websocket connections. A
// missing or invalid credential is refused before the upgrade, so the dial
// fails at the handshake. A connection past the per-user cap is upgraded,
// then closed without detail; existing sessions stay untouched.
type Handler struct {
	verifier  auth.Verifier
	directory workspace.Directory
	registry  *Registry
}

func NewHandler(verifier auth.Verifier, directory workspace.Directory, registry *Registry) *Handler {
	return &Handler{verifier: verifier, directory: directory, registry: registry}
}

// bearerToken pulls the credential from the Authorization header or, for
// browser clients that cannot set headers on websocket dials, the token
// query parameter.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return tok
		}
	}
	return r.URL.Query().Get("token")
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Credential check happens before the upgrade: a bad token is refused at
	// the handshake, so the client never observes a connected socket.
	userID, err := h.verifier.Verify(r.Context(), bearerToken(r))
	if err != nil {
		metrics.SessionsRejected.WithLabelValues("auth").Inc()
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	// Membership snapshot at connect time; not refreshed mid-session.
	workspaces, err := h.directory.WorkspacesFor(r.Context(), userID)
	if err != nil {
		slog.Error("failed to load workspace memberships", "user", userID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	workspaceIDs := make([]uuid.UUID, len(workspaces))
	for i, ws := range workspaces {
		workspaceIDs[i] = ws.ID
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	session := NewSession(conn, userID, workspaceIDs)
	if err := h.registry.Add(session); err != nil {
		// Authenticated but over the cap: drop without tracking, existing
		// sessions stay untouched.
		metrics.SessionsRejected.WithLabelValues("limit").Inc()
		slog.Info("connection limit reached", "user", userID)
		conn.Close()
		return
	}

	go session.writePump()
	go session.readPump(func() {
		h.registry.Remove(session.ID)
	})
}
