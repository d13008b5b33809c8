package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "healthgeo_requests_total",
		Help: "Total number of discovery API requests by route",
	}, []string{"route"})
	RequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "healthgeo_request_duration_ms",
		Help:    "Discovery API request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	}, []string{"route"})
	EmptyResultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "healthgeo_empty_results_total",
		Help: "Total number of discovery responses rendered as an empty state",
	}, []string{"route"})
	CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "healthgeo_cache_hits_total",
		Help: "Total response cache hits by backend",
	}, []string{"backend"})
	CacheMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "healthgeo_cache_misses_total",
		Help: "Total response cache misses by backend",
	}, []string{"backend"})
	CacheEvictionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "healthgeo_cache_evictions_total",
		Help: "Total cache evictions by reason (capacity, expired, clear)",
	}, []string{"reason"})
	RankDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "healthgeo_rank_duration_ms",
		Help:    "Proximity ranking duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	})
	RankFailTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "healthgeo_rank_fail_total",
		Help: "Total ranking calls failed with data unavailable",
	})
	AdapterRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "healthgeo_adapter_requests_total",
		Help: "Total source adapter fetches",
	}, []string{"adapter", "category"})
	AdapterOutcomeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "healthgeo_adapter_outcome_total",
		Help: "Source adapter fetch outcomes",
	}, []string{"adapter", "outcome"})
	AdapterDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "healthgeo_adapter_duration_ms",
		Help:    "Source adapter fetch duration in milliseconds",
		Buckets: []float64{10, 50, 100, 500, 1000, 5000, 10000, 30000},
	}, []string{"adapter"})
	AdapterSkippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "healthgeo_adapter_skipped_records_total",
		Help: "Records dropped by adapters for missing or invalid coordinates",
	}, []string{"adapter"})
	IngestRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "healthgeo_ingest_runs_total",
		Help: "Ingestion runs by category and result",
	}, []string{"category", "result"})
	IngestSeedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "healthgeo_ingest_seed_fallback_total",
		Help: "Ingestion runs that fell back to the bundled seed dataset",
	}, []string{"category"})
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "healthgeo_rate_limited_total",
		Help: "Requests rejected by the token bucket",
	})
	AdminDeniedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "healthgeo_admin_denied_total",
		Help: "Admin requests denied by reason (token, ip)",
	}, []string{"reason"})
	StoreRecords = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "healthgeo_store_records",
		Help: "Records in the live generation of each category",
	}, []string{"category"})
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(EmptyResultsTotal)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(CacheEvictionsTotal)
	prometheus.MustRegister(RankDurationMs)
	prometheus.MustRegister(RankFailTotal)
	prometheus.MustRegister(AdapterRequestsTotal)
	prometheus.MustRegister(AdapterOutcomeTotal)
	prometheus.MustRegister(AdapterDurationMs)
	prometheus.MustRegister(AdapterSkippedTotal)
	prometheus.MustRegister(IngestRunsTotal)
	prometheus.MustRegister(IngestSeedTotal)
	prometheus.MustRegister(RateLimitedTotal)
	prometheus.MustRegister(AdminDeniedTotal)
	prometheus.MustRegister(StoreRecords)
}

// Handler exposes the default registry for /metrics.
func Handler() http.Handler { return promhttp.Handler() }
