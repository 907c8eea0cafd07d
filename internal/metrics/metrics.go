package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Material request workflow
var (
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "material_request_transitions_total",
			Help: "Successful material request commands by resulting status",
		},
		[]string{"command", "to_status"},
	)

	CommandFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "material_request_command_failures_total",
			Help: "Rejected or failed material request commands by error kind",
		},
		[]string{"command", "kind"},
	)

	StatsCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "material_request_stats_cache_hits_total",
		Help: "Stats reads served from cache",
	})
)

// Outbox
var (
	OutboxEventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_events_published_total",
		Help: "Domain events published from the outbox",
	})

	OutboxPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_publish_failures_total",
		Help: "Failed outbox publish attempts",
	})

	OutboxEventsParked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_events_parked_total",
		Help: "Outbox events taken out of rotation after repeated failures",
	})

	RealtimeClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_connected_clients",
		Help: "Websocket clients currently connected",
	})
)
