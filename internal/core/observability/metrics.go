package observability

import (
	"errors"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	storeQueryDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_query_duration_seconds",
			Help:    "Latency of store queries in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"collection", "outcome"},
	)

	searchPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_pages_total",
			Help: "Search pages served, by whether a next page exists.",
		},
		[]string{"has_next"},
	)

	collectionsRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collections_refresh_total",
			Help: "Collection registry refreshes by outcome.",
		},
		[]string{"outcome"},
	)

	collectionsRefreshTriggers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collections_refresh_triggers_total",
			Help: "Requests for an immediate registry refresh by source.",
		},
		[]string{"source"},
	)

	collectionsRegistrySize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "collections_registry_size",
			Help: "Number of collections in the published registry snapshot.",
		},
	)

	redisOpDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Latency of Redis operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op", "outcome"},
	)

	kafkaConsumerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_consumer_errors_total",
			Help: "Kafka consumer errors by kind.",
		},
		[]string{"kind"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

var initOnce sync.Map

// Init additionally registers the application collectors on reg so that an
// isolated registry (see internal/metrics) serves them too.
func Init(reg prometheus.Registerer, enabled bool) {
	if !enabled || reg == nil {
		return
	}
	if _, loaded := initOnce.LoadOrStore(reg, struct{}{}); loaded {
		return
	}
	for _, c := range []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds, storeQueryDurationSeconds,
		searchPagesTotal, collectionsRefreshTotal, collectionsRefreshTriggers,
		collectionsRegistrySize, redisOpDurationSeconds, kafkaConsumerErrors,
	} {
		var are prometheus.AlreadyRegisteredError
		if err := reg.Register(c); err != nil && !errors.As(err, &are) {
			panic(err)
		}
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveStoreQuery(collection string, err error, durationSeconds float64) {
	storeQueryDurationSeconds.WithLabelValues(collection, outcome(err)).Observe(durationSeconds)
}

func IncSearchPage(hasNext bool) {
	searchPagesTotal.WithLabelValues(strconv.FormatBool(hasNext)).Inc()
}

// IncRefresh counts a refresh; outcome is ok, unchanged, conflict or error.
func IncRefresh(outcome string) {
	collectionsRefreshTotal.WithLabelValues(outcome).Inc()
}

func IncRefreshTrigger(source string) {
	collectionsRefreshTriggers.WithLabelValues(source).Inc()
}

func SetRegistrySize(n int) {
	collectionsRegistrySize.Set(float64(n))
}

func ObserveRedisOp(op string, err error, durationSeconds float64) {
	redisOpDurationSeconds.WithLabelValues(op, outcome(err)).Observe(durationSeconds)
}

func IncKafkaConsumerError(kind string) {
	kafkaConsumerErrors.WithLabelValues(kind).Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
