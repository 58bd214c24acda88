package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the bot. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	// Chat metrics
	BotEvents   *prometheus.CounterVec
	Transitions *prometheus.CounterVec
	RenderErrs  *prometheus.CounterVec

	// Upstream API metrics
	UpstreamRequests *prometheus.CounterVec
	UpstreamLatency  *prometheus.HistogramVec
	UpstreamPages    prometheus.Histogram
	UpstreamErrors   *prometheus.CounterVec

	// Aggregation metrics
	AggregationLatency prometheus.Histogram
	ClampedValues      *prometheus.CounterVec

	// Result cache metrics
	CacheLookups *prometheus.CounterVec
	CacheStores  prometheus.Counter

	// Sessions
	ActiveSessions prometheus.Gauge

	// Postback relay metrics
	Postbacks *prometheus.CounterVec

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates all metrics and registers them in a dedicated registry.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		BotEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bot_events_total",
				Help:      "Inbound chat events by kind",
			},
			[]string{"kind"},
		),
		Transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bot_transitions_total",
				Help:      "Navigation transitions by source and target screen",
			},
			[]string{"from", "to"},
		),
		RenderErrs: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bot_render_errors_total",
				Help:      "Updates whose reply could not be rendered, by triggering event",
			},
			[]string{"event"},
		),

		UpstreamRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Statistics API requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),
		UpstreamLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_latency_seconds",
				Help:      "Statistics API request latency",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
			},
			[]string{"endpoint"},
		),
		UpstreamPages: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_conversion_pages",
				Help:      "Conversion pages fetched per aggregation",
				Buckets:   []float64{1, 2, 3, 5, 10, 25, 50, 100},
			},
		),
		UpstreamErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_errors_total",
				Help:      "Failed aggregations by reason",
			},
			[]string{"reason"},
		),

		AggregationLatency: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "aggregation_latency_seconds",
				Help:      "End to end aggregation latency",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		ClampedValues: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "aggregation_clamped_values_total",
				Help:      "Negative upstream values clamped to zero",
			},
			[]string{"field"},
		),

		CacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "result_cache_lookups_total",
				Help:      "Result cache lookups by outcome",
			},
			[]string{"result"}, // hit, miss
		),
		CacheStores: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "result_cache_stores_total",
				Help:      "Results stored in the cache",
			},
		),

		ActiveSessions: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Chat sessions currently held in memory",
			},
		),

		Postbacks: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "postbacks_total",
				Help:      "Inbound postbacks by outcome",
			},
			[]string{"status"},
		),

		RateLimitHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Rate limit rejections",
			},
			[]string{"endpoint"},
		),

		registry: reg,
	}
}

// Handler returns the Prometheus metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordEvent records an inbound chat event.
func (m *Metrics) RecordEvent(kind string) {
	if m == nil {
		return
	}
	m.BotEvents.WithLabelValues(kind).Inc()
}

// RecordTransition records a screen change.
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

// RecordRenderError records an update whose reply could not be delivered.
// event is the kind of update that triggered it, such as "action".
func (m *Metrics) RecordRenderError(event string) {
	if m == nil {
		return
	}
	m.RenderErrs.WithLabelValues(event).Inc()
}

// RecordUpstream records one statistics API request.
func (m *Metrics) RecordUpstream(endpoint, status string, latency time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(endpoint, status).Inc()
	m.UpstreamLatency.WithLabelValues(endpoint).Observe(latency.Seconds())
}

// RecordAggregation records a completed aggregation.
func (m *Metrics) RecordAggregation(pages int, latency time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamPages.Observe(float64(pages))
	m.AggregationLatency.Observe(latency.Seconds())
}

// RecordUpstreamError records a failed aggregation.
func (m *Metrics) RecordUpstreamError(reason string) {
	if m == nil {
		return
	}
	m.UpstreamErrors.WithLabelValues(reason).Inc()
}

// RecordClamp records a negative upstream value replaced by zero.
func (m *Metrics) RecordClamp(field string) {
	if m == nil {
		return
	}
	m.ClampedValues.WithLabelValues(field).Inc()
}

// RecordCacheLookup records a result cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// RecordCacheStore records a stored result.
func (m *Metrics) RecordCacheStore() {
	if m == nil {
		return
	}
	m.CacheStores.Inc()
}

// SetActiveSessions updates the in-memory session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

// RecordPostback records a relayed postback outcome.
func (m *Metrics) RecordPostback(status string) {
	if m == nil {
		return
	}
	m.Postbacks.WithLabelValues(status).Inc()
}

// RecordRateLimitHit records a rate limit hit.
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	if m == nil {
		return
	}
	m.RateLimitHits.WithLabelValues(endpoint).Inc()
}
