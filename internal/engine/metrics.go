package engine

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks batch processing activity on a private registry so tests
// and embedded engines never collide with the global one.
type Metrics struct {
	registry *prometheus.Registry

	itemsTotal    *prometheus.CounterVec
	itemDuration  *prometheus.HistogramVec
	activeItems   prometheus.Gauge
	retriesTotal  *prometheus.CounterVec
	downloads     *prometheus.CounterVec
	artifactBytes prometheus.Counter
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		itemsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "genai",
			Name:      "items_total",
			Help:      "Processed items by content type and final status.",
		}, []string{"content_type", "status"}),
		itemDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "genai",
			Name:      "item_duration_seconds",
			Help:      "Wall-clock duration of item processing including retries.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"content_type", "status"}),
		activeItems: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "genai",
			Name:      "active_items",
			Help:      "Items currently holding a concurrency slot.",
		}),
		retriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "genai",
			Name:      "retries_total",
			Help:      "Retry attempts by backoff strategy.",
		}, []string{"strategy"}),
		downloads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "genai",
			Name:      "artifact_downloads_total",
			Help:      "Artifact download attempts by outcome.",
		}, []string{"status"}),
		artifactBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "genai",
			Name:      "artifact_bytes_total",
			Help:      "Total bytes of downloaded artifacts.",
		}),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) itemStarted() {
	if m == nil {
		return
	}
	m.activeItems.Inc()
}

func (m *Metrics) itemFinished(contentType, status string, seconds float64) {
	if m == nil {
		return
	}
	m.activeItems.Dec()
	m.itemsTotal.WithLabelValues(contentType, status).Inc()
	m.itemDuration.WithLabelValues(contentType, status).Observe(seconds)
}

func (m *Metrics) retryScheduled(strategy string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(strategy).Inc()
}

func (m *Metrics) downloadFinished(ok bool, bytes int) {
	if m == nil {
		return
	}
	if ok {
		m.downloads.WithLabelValues("ok").Inc()
		m.artifactBytes.Add(float64(bytes))
		return
	}
	m.downloads.WithLabelValues("error").Inc()
}
