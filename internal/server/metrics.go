// Package server — metrics.go registers all Prometheus metrics for the HTTP
// server and exposes helpers used by handlers and middleware.
package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the logical endpoint name rather than the raw URL path.
	labelHandler = "handler"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// chatRequestsTotal counts completed /api/chat requests, partitioned by
	// outcome: "ok", "timeout", "unavailable", or "error".
	chatRequestsTotal *prometheus.CounterVec

	// chatDurationSeconds records the wall-clock duration of each /api/chat
	// request from receipt to response, covering retrieval and completion.
	chatDurationSeconds *prometheus.HistogramVec

	// uploadRequestsTotal counts completed /api/upload requests, partitioned
	// by outcome: "ok", "unsupported", "too_large", "bad_request", or "error".
	uploadRequestsTotal *prometheus.CounterVec

	// ingestChunksTotal counts text chunks embedded and stored across all
	// ingestion paths (uploads and bootstrap scans).
	ingestChunksTotal prometheus.Counter

	// indexRebuildsTotal counts completed similarity index rebuilds.
	indexRebuildsTotal prometheus.Counter

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, handler name, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) is used so that each call
// registers into the provided registry rather than the global default —
// this keeps unit tests hermetic. indexSize, when non-nil, is exported as a
// gauge reporting the number of entries in the similarity index.
func newServerMetrics(reg prometheus.Registerer, indexSize func() int) *serverMetrics {
	factory := promauto.With(reg)

	if indexSize != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "fridaykb",
			Subsystem: "index",
			Name:      "entries",
			Help:      "Number of chunk vectors currently held by the in-memory similarity index.",
		}, func() float64 { return float64(indexSize()) })
	}

	return &serverMetrics{
		chatRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fridaykb",
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total number of /api/chat requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		chatDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fridaykb",
			Subsystem: "chat",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/chat requests covering retrieval and completion.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),

		uploadRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fridaykb",
			Subsystem: "ingest",
			Name:      "uploads_total",
			Help:      "Total number of /api/upload requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		ingestChunksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "fridaykb",
			Subsystem: "ingest",
			Name:      "chunks_embedded_total",
			Help:      "Total number of text chunks embedded and stored by the ingestion pipeline.",
		}),

		indexRebuildsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "fridaykb",
			Subsystem: "index",
			Name:      "rebuilds_total",
			Help:      "Total number of completed similarity index rebuilds.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fridaykb",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fridaykb",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}
