// Package metrics holds the prometheus collectors of the pipeline. All
// methods are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "sprout"

type Metrics struct {
	registry *prometheus.Registry

	embeddingRequests *prometheus.CounterVec
	embeddingRetries  prometheus.Counter
	embeddedTexts     prometheus.Counter
	embeddingDuration prometheus.Histogram

	searchDuration *prometheus.HistogramVec
	cacheLookups   *prometheus.CounterVec
	cacheWrites    *prometheus.CounterVec

	generations *prometheus.CounterVec
	asks        *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		embeddingRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "embedding",
				Name:      "requests_total",
				Help:      "Embedding client calls by outcome",
			},
			[]string{"status"},
		),
		embeddingRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "embedding",
				Name:      "retries_total",
				Help:      "Upstream embedding attempts that were retried",
			},
		),
		embeddedTexts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "embedding",
				Name:      "texts_total",
				Help:      "Texts sent to the embedding provider",
			},
		),
		embeddingDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "embedding",
				Name:      "duration_seconds",
				Help:      "Embedding client call duration including retries",
				Buckets:   prometheus.DefBuckets,
			},
		),

		searchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "duration_seconds",
				Help:      "Similarity query duration by table",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"table"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "lookups_total",
				Help:      "Response cache lookups by result (hit, miss, error)",
			},
			[]string{"result"},
		),
		cacheWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "writes_total",
				Help:      "Response cache write-backs by result (stored, duplicate, error)",
			},
			[]string{"result"},
		),

		generations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "generation",
				Name:      "requests_total",
				Help:      "Generation model calls by outcome",
			},
			[]string{"status"},
		),
		asks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "asks_total",
				Help:      "Answered questions by terminal state",
			},
			[]string{"state"},
		),
	}

	m.registry.MustRegister(
		m.embeddingRequests,
		m.embeddingRetries,
		m.embeddedTexts,
		m.embeddingDuration,
		m.searchDuration,
		m.cacheLookups,
		m.cacheWrites,
		m.generations,
		m.asks,
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveEmbedding records one embedding client call over texts inputs.
func (m *Metrics) ObserveEmbedding(texts int, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.embeddingRequests.WithLabelValues(status(err)).Inc()
	m.embeddedTexts.Add(float64(texts))
	m.embeddingDuration.Observe(took.Seconds())
}

func (m *Metrics) EmbeddingRetry() {
	if m == nil {
		return
	}
	m.embeddingRetries.Inc()
}

func (m *Metrics) ObserveSearch(table string, took time.Duration) {
	if m == nil {
		return
	}
	m.searchDuration.WithLabelValues(table).Observe(took.Seconds())
}

func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) CacheWrite(result string) {
	if m == nil {
		return
	}
	m.cacheWrites.WithLabelValues(result).Inc()
}

func (m *Metrics) Generation(err error) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(status(err)).Inc()
}

func (m *Metrics) Ask(state string) {
	if m == nil {
		return
	}
	m.asks.WithLabelValues(state).Inc()
}

// Summary logs every non-zero series at debug level.
func (m *Metrics) Summary(logger *slog.Logger) {
	if m == nil {
		return
	}
	families, err := m.registry.Gather()
	if err != nil {
		logger.Warn("failed to gather metrics", "err", err)
		return
	}
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			attrs := []any{"metric", family.GetName()}
			if labels := labelString(metric.GetLabel()); labels != "" {
				attrs = append(attrs, "labels", labels)
			}
			switch family.GetType() {
			case dto.MetricType_COUNTER:
				if metric.GetCounter().GetValue() == 0 {
					continue
				}
				attrs = append(attrs, "value", metric.GetCounter().GetValue())
			case dto.MetricType_HISTOGRAM:
				h := metric.GetHistogram()
				if h.GetSampleCount() == 0 {
					continue
				}
				avg := time.Duration(h.GetSampleSum() / float64(h.GetSampleCount()) * float64(time.Second))
				attrs = append(attrs, "count", h.GetSampleCount(), "avg", avg)
			default:
				continue
			}
			logger.Debug("metrics", attrs...)
		}
	}
}

func labelString(labels []*dto.LabelPair) string {
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, l.GetName()+"="+l.GetValue())
	}
	return strings.Join(parts, ",")
}
