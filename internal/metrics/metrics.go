// Package metrics exposes crawler counters on a private prometheus
// registry. A *Metrics satisfies the observer interfaces of fetch,
// sessionnet, index and analysis.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ratsinfo"

// Metrics holds the collectors.
type Metrics struct {
	registry        *prometheus.Registry
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	downloads       *prometheus.CounterVec
	extractions     *prometheus.CounterVec
	sessionsIndexed *prometheus.CounterVec
	lastRun         prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Portal requests by method and outcome.",
		}, []string{"method", "outcome"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of a single portal request attempt.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"method"}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_downloaded_total",
			Help:      "Documents handled by download passes, by result.",
		}, []string{"result"}),
		extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Text extractions by status.",
		}, []string{"status"}),
		sessionsIndexed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_indexed_total",
			Help:      "Sessions written to the index, by source.",
		}, []string{"source"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_crawl_run_timestamp_seconds",
			Help:      "Unix time the last crawl run finished.",
		}),
	}
	m.registry.MustRegister(
		m.httpRequests, m.httpDuration, m.downloads, m.extractions, m.sessionsIndexed, m.lastRun,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one portal request.
func (m *Metrics) ObserveRequest(method string, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.httpRequests.WithLabelValues(method, outcome).Inc()
	m.httpDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveDownload records the result of one document in a download pass.
func (m *Metrics) ObserveDownload(result string) {
	m.downloads.WithLabelValues(result).Inc()
}

// ObserveExtraction records one text extraction.
func (m *Metrics) ObserveExtraction(status string) {
	m.extractions.WithLabelValues(status).Inc()
}

// ObserveSessionIndexed records one indexed session.
func (m *Metrics) ObserveSessionIndexed(source string) {
	m.sessionsIndexed.WithLabelValues(source).Inc()
}

// ObserveRunFinished records the end of a crawl run.
func (m *Metrics) ObserveRunFinished(t time.Time) {
	m.lastRun.Set(float64(t.Unix()))
}
