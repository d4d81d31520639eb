package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scenewright_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scenewright_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Pipeline metrics
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scenewright_runs_total",
			Help: "Total indexing runs",
		},
		[]string{"outcome"}, // "success", "failed" or "error"
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scenewright_run_duration_seconds",
			Help:    "Indexing run duration",
			Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	ChannelsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scenewright_channels_processed_total",
			Help: "Total channels run through the pipeline",
		},
		[]string{"outcome"}, // "ok" or "failed"
	)

	ChannelDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scenewright_channel_duration_seconds",
			Help:    "Per-channel pipeline duration",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	ScenesIndexed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scenewright_scenes_indexed_total",
			Help: "Total scenes kept after validation",
		},
	)

	ReviewEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scenewright_review_entries_total",
			Help: "Total scenes flagged for review",
		},
		[]string{"status"},
	)

	// Infrastructure metrics
	PostgresLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scenewright_postgres_latency_seconds",
			Help:    "PostgreSQL write latency per channel",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .5},
		},
	)
)
