package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestMetricsExposure(t *testing.T) {
	PollRuns.WithLabelValues("posts").Inc()
	PollErrors.WithLabelValues("posts").Inc()
	RecordsPersisted.WithLabelValues("likes").Add(3)
	IncAPIRetry("/users/by")
	ObservePoll("posts", time.Now().Add(-1500*time.Millisecond))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rec.Code)
	}
	body := rec.Body.String()
	for _, m := range []string{
		"suitwitterdb_poll_runs_total",
		"suitwitterdb_poll_errors_total",
		"suitwitterdb_records_persisted_total",
		"suitwitterdb_poll_duration_seconds",
		"suitwitterdb_api_retries_total",
	} {
		if !strings.Contains(body, m) {
			t.Fatalf("expected metric %s in body", m)
		}
	}
}
