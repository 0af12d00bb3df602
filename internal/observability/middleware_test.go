package observability

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/rootio/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestRequestLoggerCarriesDecodeErrorKind(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	r := gin.New()
	r.Use(RequestLogger(zerolog.New(&buf)))
	r.Use(RequestMetricsMiddleware("middleware-test"))
	r.GET("/keys/:name", func(c *gin.Context) {
		_ = c.Error(fmt.Errorf("lookup: %w", protocol.ErrConsistency))
		c.Status(http.StatusUnprocessableEntity)
	})

	before := testutil.ToFloat64(httpRequests.WithLabelValues("middleware-test", "GET", "/keys/:name", "422"))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/keys/events?dir=a", nil))

	line := buf.String()
	for _, want := range []string{`"level":"warn"`, `"kind":"consistency_check_failed"`, `"path":"/keys/:name"`, `"query":"dir=a"`, `"status":422`} {
		if !strings.Contains(line, want) {
			t.Fatalf("log line missing %s: %s", want, line)
		}
	}
	after := testutil.ToFloat64(httpRequests.WithLabelValues("middleware-test", "GET", "/keys/:name", "422"))
	if after-before != 1 {
		t.Fatalf("expected one request recorded under the route template, got %v", after-before)
	}
}

func TestRequestLoggerUnmatchedRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	r := gin.New()
	r.Use(RequestLogger(zerolog.New(&buf)))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	if !strings.Contains(buf.String(), `"path":"unmatched"`) {
		t.Fatalf("unexpected log line: %s", buf.String())
	}
}
