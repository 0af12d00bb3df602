package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("rootd", "GET", "/health", 200, 12*time.Millisecond)
	RecordFetch("file", 512, time.Millisecond, true)
	RecordFetch("file", 0, time.Millisecond, false)
	RecordCacheLookup(CacheHit)
	RecordCacheLookup(CacheMiss)
	RecordCacheLookup(CacheShared)
	RecordDecompression("ZS", true)
	RecordDecodeFailure("read_object", "unknown_type")
}

func TestRecordCacheLookupByResult(t *testing.T) {
	before := testutil.ToFloat64(cacheLookups.WithLabelValues(CacheShared))
	RecordCacheLookup(CacheShared)
	RecordCacheLookup(CacheHit)
	if got := testutil.ToFloat64(cacheLookups.WithLabelValues(CacheShared)) - before; got != 1 {
		t.Fatalf("unexpected shared delta: %v", got)
	}
}

func TestRecordFetchCountsBytesOnlyOnSuccess(t *testing.T) {
	before := testutil.ToFloat64(fetchBytes.WithLabelValues("metrics-test"))
	RecordFetch("metrics-test", 100, time.Millisecond, true)
	RecordFetch("metrics-test", 100, time.Millisecond, false)
	after := testutil.ToFloat64(fetchBytes.WithLabelValues("metrics-test"))
	if after-before != 100 {
		t.Fatalf("unexpected byte delta: %v", after-before)
	}
}
