package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Poll loop metrics
	PollCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tempwatch_poll_cycles_total",
			Help: "Total number of poll cycles by outcome",
		},
		[]string{"outcome"}, // outcome: ok, fetch_error, stale, invalid
	)

	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tempwatch_fetch_duration_seconds",
			Help:    "Time taken to fetch the latest reading",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// Reading metrics
	CurrentTemperature = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tempwatch_temperature_degrees",
			Help: "Most recently accepted temperature reading",
		},
	)

	AlertState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tempwatch_alert_state",
			Help: "Current alert state (0 = below threshold, 1 = above)",
		},
	)

	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tempwatch_transitions_total",
			Help: "Total number of alert state transitions",
		},
		[]string{"direction"}, // direction: fired, recovered
	)

	// Notifier metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tempwatch_notifications_total",
			Help: "Total number of webhook notifications",
		},
		[]string{"status"}, // status: sent, failed, suppressed
	)

	NotifyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tempwatch_notify_duration_seconds",
			Help:    "Time taken to deliver a notification",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15},
		},
	)

	// Alert event stream metrics
	StreamPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tempwatch_stream_publish_total",
			Help: "Total number of alert events published to the stream",
		},
		[]string{"status"}, // status: success, failed, dropped
	)

	StreamPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tempwatch_stream_publish_retries_total",
			Help: "Total number of stream publish retries",
		},
	)

	// Ops HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tempwatch_http_requests_total",
			Help: "Total number of HTTP requests to the ops server",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tempwatch_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "endpoint", "status"},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tempwatch_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
