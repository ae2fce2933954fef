// Package metrics publishes Prometheus metrics for content delivery on a
// private registry so tests and multiple servers in one process do not
// collide on the default registerer.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/manga-hub/manga-hub/internal/cache"
)

const namespace = "manga_hub"

// Delivery outcomes used as the "outcome" label.
const (
	OutcomeCacheHit    = "cache_hit"
	OutcomeBuffered    = "buffered"
	OutcomeStreamed    = "streamed"
	OutcomePartial     = "partial"
	OutcomeNotModified = "not_modified"
	OutcomeError       = "error"
)

// CacheStatsFunc 返回缓存快照，在每次抓取时调用。
type CacheStatsFunc func() cache.Stats

// ActiveStreamsFunc 返回当前活跃流数量，在每次抓取时调用。
type ActiveStreamsFunc func() int64

// Recorder publishes Prometheus metrics for the delivery pipeline.
type Recorder struct {
	registry *prometheus.Registry
	handler  http.Handler

	requests         *prometheus.CounterVec
	latency          *prometheus.HistogramVec
	streamRejections prometheus.Counter
	pressureEvicted  prometheus.Counter
}

// NewRecorder constructs a Recorder. When reg is nil a dedicated registry is
// created.
func NewRecorder(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "delivery",
		Name:      "requests_total",
		Help:      "Content requests answered, by outcome and status code.",
	}, []string{"outcome", "status"})

	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "delivery",
		Name:      "duration_seconds",
		Help:      "Time spent answering content requests.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
	}, []string{"outcome"})

	streamRejections := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "rejections_total",
		Help:      "Large-file streams refused because every slot was busy.",
	})

	pressureEvicted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "pressure_evictions_total",
		Help:      "Entries shed by the memory pressure monitor.",
	})

	reg.MustRegister(requests, latency, streamRejections, pressureEvicted)

	return &Recorder{
		registry:         reg,
		handler:          promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		requests:         requests,
		latency:          latency,
		streamRejections: streamRejections,
		pressureEvicted:  pressureEvicted,
	}
}

// Handler exposes the Prometheus HTTP handler for the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	}
	return r.handler
}

// Gatherer returns the underlying registry for tests.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

// TrackCache registers gauges and counters sampled from stats at scrape time.
func (r *Recorder) TrackCache(stats CacheStatsFunc) {
	if r == nil || stats == nil {
		return
	}
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: namespace, Subsystem: "cache", Name: name, Help: help}
	}
	gauge := func(name, help string, value func(cache.Stats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts(opts(name, help)), func() float64 { return value(stats()) })
	}
	counter := func(name, help string, value func(cache.Stats) float64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts(opts(name, help)), func() float64 { return value(stats()) })
	}
	r.registry.MustRegister(
		gauge("used_bytes", "Bytes held by resident cache entries.", func(s cache.Stats) float64 { return float64(s.UsedBytes) }),
		gauge("capacity_bytes", "Configured cache budget in bytes.", func(s cache.Stats) float64 { return float64(s.CapacityBytes) }),
		gauge("entries", "Resident cache entries.", func(s cache.Stats) float64 { return float64(s.Entries) }),
		counter("hits_total", "Cache lookups that found an entry.", func(s cache.Stats) float64 { return float64(s.Hits) }),
		counter("misses_total", "Cache lookups that found nothing.", func(s cache.Stats) float64 { return float64(s.Misses) }),
		counter("evictions_total", "Entries evicted for budget or memory pressure.", func(s cache.Stats) float64 { return float64(s.Evictions) }),
	)
}

// TrackStreams registers the active stream gauge.
func (r *Recorder) TrackStreams(active ActiveStreamsFunc) {
	if r == nil || active == nil {
		return
	}
	r.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "active",
		Help:      "Large-file streams currently in flight.",
	}, func() float64 { return float64(active()) }))
}

// ObserveDelivery records one answered content request.
func (r *Recorder) ObserveDelivery(outcome string, status int, duration time.Duration) {
	if r == nil {
		return
	}
	outcomeLabel := normalizeLabel(outcome)
	statusLabel := strconv.Itoa(status)
	if status <= 0 {
		statusLabel = "unknown"
	}
	r.requests.WithLabelValues(outcomeLabel, statusLabel).Inc()
	r.latency.WithLabelValues(outcomeLabel).Observe(duration.Seconds())
}

// ObserveStreamRejected 记录一次因无空闲流槽位而拒绝的请求。
func (r *Recorder) ObserveStreamRejected() {
	if r == nil {
		return
	}
	r.streamRejections.Inc()
}

// ObservePressureEvictions 记录压力监控淘汰的条目数。
func (r *Recorder) ObservePressureEvictions(count int) {
	if r == nil || count <= 0 {
		return
	}
	r.pressureEvicted.Add(float64(count))
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
