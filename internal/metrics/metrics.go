// Package metrics provides Prometheus instrumentation for the hub and
// the search index. This is ambient observability carried from the
// teacher's metrics package even though the distilled spec's
// Non-goals exclude a full metrics layer for the HTTP surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Broker metrics.
var (
	BrokerActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "filehub_broker_active_workers",
		Help: "Number of broker worker execution contexts currently running.",
	})

	BrokerTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filehub_broker_tasks_total",
		Help: "Total number of broker Say/Ask dispatches.",
	}, []string{"kind"})
)

// Zeroconf metrics.
var (
	ZeroconfUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "filehub_zeroconf_up",
		Help: "Whether a zero-conf responder (mdns/ssdp) is currently running (1) or not (0).",
	}, []string{"proto"})

	ZeroconfGeneration = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "filehub_zeroconf_generation",
		Help: "Current zero-conf restart generation counter.",
	})
)

// Search metrics.
var (
	SearchQueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filehub_search_queries_total",
		Help: "Total number of U2Idx queries executed, by outcome.",
	}, []string{"outcome"}) // ok, truncated, error, cancelled

	SearchQueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "filehub_search_query_duration_seconds",
		Help:    "U2Idx query duration in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	SearchOpenCursors = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "filehub_search_open_cursors",
		Help: "Number of per-volume catalog cursors currently cached.",
	})
)

// Shutdown metrics.
var (
	ShutdownDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "filehub_shutdown_duration_seconds",
		Help:    "Wall-clock duration of the shutdown sequence.",
		Buckets: prometheus.DefBuckets,
	})
)
