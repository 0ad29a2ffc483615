package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabboard/internal/auth"
	"collabboard/internal/model"
	"collabboard/internal/workspace"
)

type handshakeFixture struct {
	server   *httptest.Server
	registry *Registry
	userID   uuid.UUID
	wsID     uuid.UUID
}

func newHandshakeFixture(t *testing.T) *handshakeFixture {
	t.Helper()
	f := &handshakeFixture{
		registry: NewRegistry(2, time.Minute),
		userID:   uuid.New(),
		wsID:     uuid.New(),
	}
	verifier := &auth.StaticVerifier{Tokens: map[string]uuid.UUID{"good-token": f.userID}}
	directory := workspace.NewStaticDirectory()
	directory.Grant(f.userID, model.Workspace{ID: f.wsID, Name: "acme"})

	f.server = httptest.NewServer(NewHandler(verifier, directory, f.registry))
	t.Cleanup(func() {
		f.server.Close()
		f.registry.Close()
	})
	return f
}

func (f *handshakeFixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestHandshakeTracksAuthenticatedConnection(t *testing.T) {
	f := newHandshakeFixture(t)

	conn := f.dial(t, "good-token")
	defer conn.Close()

	require.Eventually(t, func() bool {
		return f.registry.ConnectionCount(f.userID) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, f.registry.RoomSize(f.wsID))
}

func TestHandshakeRefusesBadToken(t *testing.T) {
	f := newHandshakeFixture(t)

	// The handshake itself is refused; the dialer never gets a socket.
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "?token=bad-token"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Nil(t, conn)
	assert.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, f.registry.UserCount())
}

func TestHandshakeRejectsOverCap(t *testing.T) {
	f := newHandshakeFixture(t)

	c1 := f.dial(t, "good-token")
	defer c1.Close()
	c2 := f.dial(t, "good-token")
	defer c2.Close()
	require.Eventually(t, func() bool {
		return f.registry.ConnectionCount(f.userID) == 2
	}, time.Second, 10*time.Millisecond)

	extra := f.dial(t, "good-token")
	defer extra.Close()
	extra.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := extra.ReadMessage()
	assert.Error(t, err, "the connection past the cap is closed")
	assert.Equal(t, 2, f.registry.ConnectionCount(f.userID))
}

func TestDisconnectUnregisters(t *testing.T) {
	f := newHandshakeFixture(t)

	conn := f.dial(t, "good-token")
	require.Eventually(t, func() bool {
		return f.registry.ConnectionCount(f.userID) == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return f.registry.ConnectionCount(f.userID) == 0
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, f.registry.RoomSize(f.wsID))
}

func TestRoomDeliveryReachesSocket(t *testing.T) {
	f := newHandshakeFixture(t)

	conn := f.dial(t, "good-token")
	defer conn.Close()
	require.Eventually(t, func() bool {
		return f.registry.RoomSize(f.wsID) == 1
	}, time.Second, 10*time.Millisecond)

	payload := []byte(`{"channel":"card","type":"created"}`)
	f.registry.DeliverToRoom(f.wsID, payload)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, got, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}
