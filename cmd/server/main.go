// The collabboard server: request/response mutations over HTTP, live change
// propagation over websockets, Redis pub/sub between instances, Postgres
// underneath.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"collabboard/internal/activity"
	"collabboard/internal/api"
	"collabboard/internal/auth"
	"collabboard/internal/config"
	"collabboard/internal/event"
	"collabboard/internal/position"
	"collabboard/internal/realtime"
	"collabboard/internal/store/postgres"
	"collabboard/internal/workspace"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("could not connect to Redis", "addr", cfg.RedisAddr, "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis", "addr", cfg.RedisAddr)

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	slog.Info("connected to PostgreSQL")

	st := postgres.New(pool)
	positions := position.NewManager(st)
	verifier := auth.NewJWTVerifier([]byte(cfg.AuthSecret))
	directory := workspace.NewPostgresDirectory(pool)
	audit := activity.NewPostgresLogger(pool)

	registry := realtime.NewRegistry(cfg.MaxConnectionsPerUser, cfg.SweepInterval)
	registry.Start(ctx)
	defer registry.Close()

	broadcaster := event.NewBroadcaster(event.NewRedisPublisher(rdb), audit, cfg.DedupWindow)

	feed := realtime.NewRedisFeed(rdb, registry)
	go func() {
		if err := feed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("redis feed stopped", "error", err)
		}
	}()

	router := mux.NewRouter()
	router.Handle("/ws", realtime.NewHandler(verifier, directory, registry))
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	api.NewServer(st, positions, broadcaster, verifier, directory).Routes(router)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("collabboard server starting", "addr", cfg.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
