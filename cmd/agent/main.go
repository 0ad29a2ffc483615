// The collabboard agent: a headless client that authenticates against a
// server, bootstraps a board snapshot over HTTP, then mirrors the board
// through the reconciler and logs every change it applies. Useful for
// watching a board from a terminal and for exercising the client runtime
// end to end.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"collabboard/client"
	"collabboard/internal/model"
	"collabboard/internal/store"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	serverURL := flag.String("server", "http://localhost:8081", "server base URL")
	wsURL := flag.String("ws", "ws://localhost:8081/ws", "server websocket URL")
	token := flag.String("token", os.Getenv("BOARD_TOKEN"), "bearer credential")
	boardID := flag.String("board", "", "board id to mirror")
	flag.Parse()

	if *token == "" || *boardID == "" {
		fmt.Fprintln(os.Stderr, "usage: agent -board <uuid> -token <jwt> [-server url] [-ws url]")
		os.Exit(2)
	}
	id, err := uuid.Parse(*boardID)
	if err != nil {
		slog.Error("invalid board id", "board", *boardID, "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	snap, err := fetchSnapshot(ctx, *serverURL, *token, id)
	if err != nil {
		slog.Error("failed to fetch board snapshot", "error", err)
		os.Exit(1)
	}

	engine := client.NewEngine(client.NewBoardState(snap))
	reconciler := client.NewReconciler(engine, uuid.NewString())

	transport := &client.Transport{
		URL:   *wsURL,
		Token: *token,
		OnEvent: func(ev model.Event) {
			reconciler.Apply(ev)
			logBoard(engine.State(), ev)
		},
		OnState: func(s client.ConnState) {
			slog.Info("transport state changed", "state", s.String())
		},
	}

	slog.Info("mirroring board", "board", id, "lists", len(snap.Lists))
	if err := transport.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("transport stopped", "error", err)
		os.Exit(1)
	}
}

func fetchSnapshot(ctx context.Context, baseURL, token string, boardID uuid.UUID) (store.BoardSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/boards/%s", baseURL, boardID), nil)
	if err != nil {
		return store.BoardSnapshot{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return store.BoardSnapshot{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return store.BoardSnapshot{}, fmt.Errorf("snapshot request returned %s", resp.Status)
	}

	var snap store.BoardSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return store.BoardSnapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

func logBoard(state *client.BoardState, ev model.Event) {
	total := 0
	for _, cards := range state.Cards {
		total += len(cards)
	}
	slog.Info("board updated",
		"channel", ev.Channel,
		"type", ev.Type,
		"lists", len(state.Lists),
		"cards", total)
}
