// Package metrics exposes the Prometheus registry for both binaries,
// grounded on the teacher's internal/metrics/prometheus_metrics.go shape:
// one Vec per concern, registered once, served over /metrics.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics bundles every counter/gauge/histogram the pipeline records.
type Metrics struct {
	PrintsValidated   *prometheus.CounterVec
	PrintsRejected    *prometheus.CounterVec
	QuotesValidated   *prometheus.CounterVec
	QuotesRejected    *prometheus.CounterVec
	ThrottleDropped   *prometheus.CounterVec
	LatePrintDropped  prometheus.Counter
	CandlesEmitted    *prometheus.CounterVec
	PersistFailed     *prometheus.CounterVec
	PublishFailed     *prometheus.CounterVec
	CacheFailed       *prometheus.CounterVec
	ConsumerResets    prometheus.Counter
	PublishLatency    *prometheus.HistogramVec
	OpenWindows       prometheus.Gauge

	registry *prometheus.Registry
	server   *http.Server
	logger   *zap.Logger
}

// New constructs and registers all metrics against a fresh registry.
func New(logger *zap.Logger) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		PrintsValidated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "equitystream_prints_validated_total",
			Help: "Prints that passed schema validation.",
		}, []string{"kind"}),
		PrintsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "equitystream_prints_rejected_total",
			Help: "Prints that failed schema validation.",
		}, []string{"kind"}),
		QuotesValidated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "equitystream_quotes_validated_total",
			Help: "Quotes that passed schema validation.",
		}, []string{"kind"}),
		QuotesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "equitystream_quotes_rejected_total",
			Help: "Quotes that failed schema validation.",
		}, []string{"kind"}),
		ThrottleDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "equitystream_throttle_dropped_total",
			Help: "Events dropped by the ingest throttle gate.",
		}, []string{"kind"}),
		LatePrintDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "equitystream_late_print_dropped_total",
			Help: "Prints dropped by the aggregator for arriving after window close with no open builder.",
		}),
		CandlesEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "equitystream_candles_emitted_total",
			Help: "Candles emitted by the aggregator kernel.",
		}, []string{"interval_ms"}),
		PersistFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "equitystream_persist_failed_total",
			Help: "Store insert failures.",
		}, []string{"table"}),
		PublishFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "equitystream_publish_failed_total",
			Help: "Bus publish failures.",
		}, []string{"subject"}),
		CacheFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "equitystream_cache_failed_total",
			Help: "Hot-cache update failures.",
		}, []string{"key"}),
		ConsumerResets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "equitystream_consumer_resets_total",
			Help: "Durable consumer reset/recreate events.",
		}),
		PublishLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "equitystream_publish_latency_seconds",
			Help:    "Bus publish latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"subject"}),
		OpenWindows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "equitystream_open_windows",
			Help: "Currently open WindowBuilders across all IntervalStates.",
		}),
		registry: reg,
		logger:   logger,
	}

	reg.MustRegister(
		m.PrintsValidated, m.PrintsRejected, m.QuotesValidated, m.QuotesRejected,
		m.ThrottleDropped, m.LatePrintDropped, m.CandlesEmitted,
		m.PersistFailed, m.PublishFailed, m.CacheFailed,
		m.ConsumerResets, m.PublishLatency, m.OpenWindows,
	)
	return m
}

// Start serves /metrics on the given port, mirroring the teacher's
// PrometheusMetrics.Start http.Server lifecycle.
func (m *Metrics) Start(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	m.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("metrics server stopped unexpectedly", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the metrics HTTP server.
func (m *Metrics) Stop(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
