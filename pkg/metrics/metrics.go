package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Poll loop metrics
	PollCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hivemon_poll_cycles_total",
			Help: "Total number of poll cycles by result",
		},
		[]string{"result"},
	)

	PollCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hivemon_poll_cycle_duration_seconds",
			Help:    "Duration of one poll cycle (fetch + diff + emit) in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	EventsEmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hivemon_events_emitted_total",
			Help: "Total number of events emitted by type",
		},
		[]string{"type"},
	)

	// Subscriber metrics
	ActiveSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hivemon_active_subscribers",
			Help: "Number of currently attached stream subscribers",
		},
	)

	SubscribersRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hivemon_subscribers_rejected_total",
			Help: "Total number of subscribe attempts refused by the subscriber bound",
		},
	)

	EventsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hivemon_events_dropped_total",
			Help: "Total number of events dropped on full subscriber buffers",
		},
	)

	// Cache metrics
	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hivemon_cache_hits_total",
			Help: "Total number of snapshot cache hits",
		},
	)

	CacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hivemon_cache_misses_total",
			Help: "Total number of snapshot cache misses",
		},
	)

	CacheEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hivemon_cache_evictions_total",
			Help: "Total number of cache evictions by reason",
		},
		[]string{"reason"},
	)

	// Upstream metrics
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hivemon_upstream_requests_total",
			Help: "Total number of upstream API requests by operation and status",
		},
		[]string{"operation", "status"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hivemon_api_requests_total",
			Help: "Total number of API requests by path and status",
		},
		[]string{"path", "status"},
	)
)

func init() {
	prometheus.MustRegister(PollCyclesTotal)
	prometheus.MustRegister(PollCycleDuration)
	prometheus.MustRegister(EventsEmittedTotal)
	prometheus.MustRegister(ActiveSubscribers)
	prometheus.MustRegister(SubscribersRejectedTotal)
	prometheus.MustRegister(EventsDroppedTotal)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(CacheEvictionsTotal)
	prometheus.MustRegister(UpstreamRequestsTotal)
	prometheus.MustRegister(APIRequestsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
