// Package metrics exposes the server's Prometheus collectors. Everything is
// registered on the default registry and served by promhttp from cmd/server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectedSessions is the number of tracked websocket sessions.
	ConnectedSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collabboard_connected_sessions",
		Help: "Number of websocket sessions currently tracked by the registry.",
	})

	// ConnectedUsers is the number of distinct users with at least one session.
	ConnectedUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collabboard_connected_users",
		Help: "Number of distinct users with at least one tracked session.",
	})

	// BroadcastsTotal counts events that passed dedup and were published.
	BroadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collabboard_broadcasts_total",
		Help: "Events published into workspace rooms, by channel.",
	}, []string{"channel"})

	// BroadcastsSuppressed counts events dropped by the dedup window.
	BroadcastsSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collabboard_broadcasts_suppressed_total",
		Help: "Events suppressed because an identical broadcast happened within the dedup window.",
	})

	// PositionMutations counts completed positional mutations, by operation.
	PositionMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collabboard_position_mutations_total",
		Help: "Completed positional mutations, by operation.",
	}, []string{"op"})

	// SessionsRejected counts connections dropped at the handshake.
	SessionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collabboard_sessions_rejected_total",
		Help: "Connections closed during the handshake, by reason.",
	}, []string{"reason"})
)
