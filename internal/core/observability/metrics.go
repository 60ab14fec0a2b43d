// Package observability holds the Prometheus vectors shared across the
// service. Vectors are created unregistered; Init attaches them to the
// registry the metrics endpoint serves. Observations before or without
// Init are accepted and simply not exported.
package observability

import (
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var strategyLabel atomic.Value

func init() {
	strategyLabel.Store("direct")
}

func SetStrategy(s string) {
	if s == "" {
		s = "direct"
	}
	strategyLabel.Store(s)
}

func getStrategy() string {
	if v := strategyLabel.Load(); v != nil {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "direct"
}

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status", "strategy"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status", "strategy"},
	)

	polygonResponseTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polygon_response_total",
			Help: "Polygon responses by hit class and operation.",
		},
		[]string{"hit_class", "op", "strategy"},
	)

	polygonResponseDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "polygon_response_duration_seconds",
			Help:    "End to end polygon response duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"hit_class", "op", "strategy"},
	)

	computeDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "compute_duration_seconds",
			Help:    "Duration of polygon computations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"op"},
	)

	computeCells = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "compute_boundary_cells",
			Help:    "Boundary cells visited per computation.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
		[]string{"op"},
	)

	polygonVertices = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "polygon_vertices",
			Help:    "Vertices in the resulting polygon ring.",
			Buckets: prometheus.ExponentialBuckets(4, 2, 12),
		},
		[]string{"op"},
	)

	redisOperationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Duration of Redis operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op", "outcome"},
	)

	cacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polygon_cache_hits_total",
			Help: "Cache hits.",
		},
		[]string{"strategy"},
	)

	cacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polygon_cache_misses_total",
			Help: "Cache misses.",
		},
		[]string{"strategy"},
	)

	hotKeysGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "polygon_cache_hot_keys",
			Help: "Tracked keys above the hotness threshold.",
		},
		[]string{"strategy", "tier"},
	)

	hotnessValue = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hotness_score",
			Help:    "Sampled hotness scores at decision time.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 14),
		},
	)

	admissionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_admission_total",
			Help: "Cache admission decisions by result and reason.",
		},
		[]string{"result", "reason", "strategy"},
	)

	kafkaConsumerErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_consumer_errors_total",
			Help: "Kafka consumer errors by kind.",
		},
		[]string{"kind"},
	)

	invalidationEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invalidation_events_total",
			Help: "Invalidation events by processing result.",
		},
		[]string{"result"},
	)

	invalidationLagSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "invalidation_lag_seconds",
			Help: "Age of the most recently consumed invalidation event.",
		},
	)

	invalidationAppliedAt = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "invalidation_last_applied_timestamp_seconds",
			Help: "Unix time of the last applied invalidation per scope.",
		},
		[]string{"scope"},
	)
)

// appliedAt mirrors invalidationAppliedAt for readers; gauges cannot be
// read back through the client API.
var appliedAt sync.Map

// Init registers every vector on reg. Safe to call more than once with
// the same registry; duplicates are ignored.
func Init(reg prometheus.Registerer, enabled bool) {
	if reg == nil || !enabled {
		return
	}
	cs := []prometheus.Collector{
		httpRequestsTotal,
		httpRequestDurationSeconds,
		polygonResponseTotal,
		polygonResponseDurationSeconds,
		computeDurationSeconds,
		computeCells,
		polygonVertices,
		redisOperationDurationSeconds,
		cacheHitsTotal,
		cacheMissesTotal,
		hotKeysGauge,
		hotnessValue,
		admissionTotal,
		kafkaConsumerErrorsTotal,
		invalidationEventsTotal,
		invalidationLagSeconds,
		invalidationAppliedAt,
	}
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			are := prometheus.AlreadyRegisteredError{}
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	s := getStrategy()
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st, s).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st, s).Observe(durationSeconds)
}

func ObservePolygonResponse(hitClass, op string, durationSeconds float64) {
	s := getStrategy()
	polygonResponseTotal.WithLabelValues(hitClass, op, s).Inc()
	polygonResponseDurationSeconds.WithLabelValues(hitClass, op, s).Observe(durationSeconds)
}

func ObserveCompute(op string, d time.Duration, cells, vertices int) {
	computeDurationSeconds.WithLabelValues(op).Observe(d.Seconds())
	computeCells.WithLabelValues(op).Observe(float64(cells))
	polygonVertices.WithLabelValues(op).Observe(float64(vertices))
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	redisOperationDurationSeconds.WithLabelValues(op, outcome).Observe(durationSeconds)
}

func AddCacheHits(n int) {
	if n > 0 {
		cacheHitsTotal.WithLabelValues(getStrategy()).Add(float64(n))
	}
}

func AddCacheMisses(n int) {
	if n > 0 {
		cacheMissesTotal.WithLabelValues(getStrategy()).Add(float64(n))
	}
}

func SetHotKeysGauge(tier string, v float64) {
	hotKeysGauge.WithLabelValues(getStrategy(), tier).Set(v)
}

func ObserveHotnessValueSample(v float64) {
	hotnessValue.Observe(v)
}

func ObserveAdmissionDecision(result, reason string) {
	admissionTotal.WithLabelValues(result, reason, getStrategy()).Inc()
}

func IncKafkaConsumerError(kind string) {
	kafkaConsumerErrorsTotal.WithLabelValues(kind).Inc()
}

func ObserveInvalidation(result string) {
	invalidationEventsTotal.WithLabelValues(result).Inc()
}

func SetInvalidationLagSeconds(v float64) {
	invalidationLagSeconds.Set(v)
}

func SetScopeInvalidatedAt(scope string, ts time.Time) {
	sec := float64(ts.UnixNano()) / 1e9
	invalidationAppliedAt.WithLabelValues(scope).Set(sec)
	appliedAt.Store(scope, sec)
}

// GetScopeInvalidatedAtUnix reports the last applied invalidation time
// for a scope, zero when none was seen.
func GetScopeInvalidatedAtUnix(scope string) float64 {
	if v, ok := appliedAt.Load(scope); ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return 0
}
