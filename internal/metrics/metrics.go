// Package metrics provides Prometheus instrumentation for the HookChat
// server. It exposes gauges for connection, queue, and session counts,
// counters for message and match throughput, and a histogram for time
// spent waiting in the queue.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connections tracks the current number of active WebSocket connections.
	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hookchat_connections",
		Help: "Current number of active WebSocket connections",
	})

	// WaitingUsers tracks the current number of users queued for a match.
	WaitingUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hookchat_waiting_users",
		Help: "Current number of users waiting in the match queue",
	})

	// ActiveSessions tracks the current number of live chat sessions.
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hookchat_active_sessions",
		Help: "Current number of active chat sessions",
	})

	// MessagesTotal counts relayed messages, labeled by kind ("text", "image").
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hookchat_messages_total",
		Help: "Total number of messages relayed between partners",
	}, []string{"kind"})

	// MatchesTotal counts sessions created by the matchmaker.
	MatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hookchat_matches_total",
		Help: "Total number of matches made",
	})

	// ReportsTotal counts accepted user reports.
	ReportsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hookchat_reports_total",
		Help: "Total number of user reports accepted",
	})

	// MatchWait records the time from joining the queue to match found.
	MatchWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "hookchat_match_wait_seconds",
		Help:    "Time from joining the queue to match found",
		Buckets: []float64{1, 2, 5, 10, 15, 20, 30, 60},
	})
)

func init() {
	prometheus.MustRegister(
		Connections,
		WaitingUsers,
		ActiveSessions,
		MessagesTotal,
		MatchesTotal,
		ReportsTotal,
		MatchWait,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
