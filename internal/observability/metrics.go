package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rootio",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rootio",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	fetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rootio",
			Subsystem: "source",
			Name:      "fetches_total",
			Help:      "Byte-range fetches against the backing medium.",
		},
		[]string{"source", "success"},
	)
	fetchBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rootio",
			Subsystem: "source",
			Name:      "fetch_bytes_total",
			Help:      "Bytes returned by successful fetches.",
		},
		[]string{"source"},
	)
	fetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rootio",
			Subsystem: "source",
			Name:      "fetch_duration_seconds",
			Help:      "Fetch latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"source"},
	)
	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rootio",
			Subsystem: "source",
			Name:      "cache_lookups_total",
			Help:      "Fetch cache lookups by result.",
		},
		[]string{"result"},
	)
	decompressions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rootio",
			Subsystem: "compression",
			Name:      "blocks_total",
			Help:      "Compression blocks unwrapped, by algorithm tag.",
		},
		[]string{"algorithm", "success"},
	)
	decodeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rootio",
			Subsystem: "decode",
			Name:      "failures_total",
			Help:      "Object resolution failures by operation and error kind.",
		},
		[]string{"op", "kind"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, fetches, fetchBytes, fetchDuration,
			cacheLookups, decompressions, decodeFailures)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordFetch(source string, bytes int, duration time.Duration, success bool) {
	RegisterMetrics()
	fetches.WithLabelValues(source, strconv.FormatBool(success)).Inc()
	if success {
		fetchBytes.WithLabelValues(source).Add(float64(bytes))
	}
	fetchDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// Cache lookup results.
const (
	CacheHit    = "hit"
	CacheMiss   = "miss"
	CacheShared = "shared"
)

// RecordCacheLookup counts one lookup. A shared lookup waited on a fetch
// another caller started; only misses reach the underlying source.
func RecordCacheLookup(result string) {
	RegisterMetrics()
	cacheLookups.WithLabelValues(result).Inc()
}

func RecordDecompression(algorithm string, success bool) {
	RegisterMetrics()
	decompressions.WithLabelValues(algorithm, strconv.FormatBool(success)).Inc()
}

func RecordDecodeFailure(op, kind string) {
	RegisterMetrics()
	decodeFailures.WithLabelValues(op, kind).Inc()
}
