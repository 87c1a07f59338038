package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)

	HttpRequestsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests being processed",
		},
		[]string{"service"},
	)

	// Trip lifecycle
	TripTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trip_transitions_total",
			Help: "Trip status transition attempts by source, target and result",
		},
		[]string{"from", "to", "result"},
	)

	TripsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trips_created_total",
			Help: "Total number of trips created",
		},
		[]string{"kind"},
	)

	SideEffectFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trip_side_effect_failures_total",
			Help: "Best-effort transition side effects that failed after retries",
		},
		[]string{"effect"},
	)

	// Realtime position exchange
	PositionPublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "position_publishes_total",
			Help: "Position publish attempts by result (sent, filtered, failed)",
		},
		[]string{"role", "result"},
	)

	OpenChannelsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "position_channels_open",
			Help: "Current number of open realtime position channels",
		},
	)

	WebSocketConnectionsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "websocket_connections_total",
			Help: "Current number of active WebSocket connections",
		},
		[]string{"service"},
	)

	// Driver presence
	PresenceWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_writes_total",
			Help: "Presence persistence attempts by result",
		},
		[]string{"result"},
	)

	SensorRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sensor_watch_retries_total",
			Help: "Watch restarts after a position timeout",
		},
	)

	// Storage and broker
	DatabaseQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	BrokerMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_messages_published_total",
			Help: "Total number of messages published to the broker",
		},
		[]string{"exchange", "status"},
	)
)

// RecordHTTPMetrics records HTTP request metrics
func RecordHTTPMetrics(service, method, path string, statusCode int, duration time.Duration) {
	status := strconv.Itoa(statusCode)
	HttpRequestsTotal.WithLabelValues(service, method, path, status).Inc()
	HttpRequestDuration.WithLabelValues(service, method, path, status).Observe(duration.Seconds())
}

// RecordDatabaseQuery records database query metrics
func RecordDatabaseQuery(operation string, err error, start time.Time) {
	DatabaseQueriesTotal.WithLabelValues(operation, result(err)).Inc()
	DatabaseQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// RecordPublish records a broker publish.
func RecordPublish(exchange string, err error) {
	BrokerMessagesPublished.WithLabelValues(exchange, result(err)).Inc()
}

// RecordTransition records a transition attempt.
func RecordTransition(from, to string, err error) {
	TripTransitionsTotal.WithLabelValues(from, to, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
