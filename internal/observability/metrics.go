// Package observability provides metrics and tracing for the comment engine.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "murmur_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "murmur_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// ModerationVerdicts counts moderation pipeline outcomes by stage and verdict.
	ModerationVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "murmur_moderation_verdicts_total",
		Help: "Total moderation pipeline verdicts by stage and verdict",
	}, []string{"stage", "verdict"})

	// CacheRequests counts cache lookups by result (hit, miss, error, bypass).
	CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "murmur_cache_requests_total",
		Help: "Total cache lookups by result",
	}, []string{"result"})

	// FanoutEvents counts dispatcher events by type and outcome.
	FanoutEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "murmur_fanout_events_total",
		Help: "Total fan-out events by type and outcome",
	}, []string{"event_type", "outcome"})

	// EngineOperationLatency records engine operation latency.
	EngineOperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "murmur_engine_operation_latency_seconds",
		Help:    "Comment engine operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// WebSocketConnectionsTotal is the gauge of total WebSocket connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "murmur_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "murmur_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})
)

// DatabaseMetrics wraps DB access for recording query latency.
type DatabaseMetrics struct {
	db *gorm.DB
}

// NewDatabaseMetrics returns a new DatabaseMetrics instance.
func NewDatabaseMetrics(db *gorm.DB) *DatabaseMetrics {
	return &DatabaseMetrics{db: db}
}

// ObserveQuery records the latency of a database query.
func (m *DatabaseMetrics) ObserveQuery(operation, table string, start time.Time) {
	latency := time.Since(start).Seconds()
	DatabaseQueryLatency.WithLabelValues(operation, table).Observe(latency)
}

// TrackQuery returns a function that records query latency when called (e.g. defer).
func (m *DatabaseMetrics) TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		m.ObserveQuery(operation, table, start)
	}
}
