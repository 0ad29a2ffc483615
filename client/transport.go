package client

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"collabboard/internal/model"
)

// ConnState is the transport's lifecycle state.
type ConnState int32

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// ErrRetriesExhausted is returned by Run after the bounded reconnection
// attempts are spent.
var ErrRetriesExhausted = errors.New("reconnection attempts exhausted")

const defaultMaxAttempts = 5

// Transport dials the server's push socket, decodes event envelopes and
// hands them to the reconciler. It reconnects up to MaxAttempts times with
// linear backoff; there is no re-authentication beyond redialing with the
// same credential. A handshake the server drops (bad token, connection
// limit) looks like any other dial failure: the server sends no detail.
type Transport struct {
	URL         string
	Token       string
	MaxAttempts int

	OnEvent func(model.Event)
	OnState func(ConnState)

	state atomic.Int32
}

func (t *Transport) State() ConnState {
	return ConnState(t.state.Load())
}

func (t *Transport) setState(s ConnState) {
	if ConnState(t.state.Swap(int32(s))) != s && t.OnState != nil {
		t.OnState(s)
	}
}

// Run connects and pumps events until the context is cancelled or the
// attempt budget runs out.
func (t *Transport) Run(ctx context.Context) error {
	maxAttempts := t.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			t.setState(Disconnected)
			return ctx.Err()
		}

		t.setState(Connecting)
		header := http.Header{}
		header.Set("Authorization", "Bearer "+t.Token)
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.URL, header)
		if err != nil {
			// Covers both transport failures and a server that closed the
			// handshake on an invalid credential.
			t.setState(Disconnected)
			slog.Warn("dial failed", "attempt", attempt, "error", err)
			if !sleep(ctx, backoff(attempt)) {
				return ctx.Err()
			}
			continue
		}

		t.setState(Connected)
		err = t.readLoop(ctx, conn)
		conn.Close()
		t.setState(Disconnected)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Info("connection lost", "attempt", attempt, "error", err)
		if !sleep(ctx, backoff(attempt)) {
			return ctx.Err()
		}
	}
	return ErrRetriesExhausted
}

func (t *Transport) readLoop(ctx context.Context, conn *websocket.Conn) error {
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var ev model.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			slog.Warn("dropping undecodable envelope", "error", err)
			continue
		}
		if t.OnEvent != nil {
			t.OnEvent(ev)
		}
	}
}

func backoff(attempt int) time.Duration {
	return time.Duration(attempt) * time.Second
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
