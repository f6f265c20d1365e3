package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("GET", "/x", "200", time.Millisecond)
	m.ObserveAggregateOperation("op", "success", time.Millisecond)
	m.IncAggregateConflict("op")
	m.IncOutboxDispatch("log", "sent")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("nil handler status: want=503 got=%d", rec.Code)
	}
}

func TestAggregateCountersAndExposition(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.IncAggregateConflict("Negotiation.Session.Open")
	m.IncAggregateConflict("Negotiation.Session.Open")
	m.IncAggregateRetry("Proposals.Versioning.Materialize")
	m.ObserveAPI("POST", "/api/negotiations", "201", 20*time.Millisecond)

	if got := testutil.ToFloat64(m.aggregateConflicts.WithLabelValues("Negotiation.Session.Open")); got != 2 {
		t.Fatalf("conflicts: want=2 got=%v", got)
	}
	if got := testutil.ToFloat64(m.aggregateRetries.WithLabelValues("Proposals.Versioning.Materialize")); got != 1 {
		t.Fatalf("retries: want=1 got=%v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `qb_api_requests_total{method="POST",route="/api/negotiations",status="201"} 1`) {
		t.Fatalf("missing api counter in exposition:\n%s", body)
	}
}
