package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PollRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "suitwitterdb_poll_runs_total",
		Help: "Total poll ticks per feed",
	}, []string{"feed"})
	PollErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "suitwitterdb_poll_errors_total",
		Help: "Total failed poll ticks per feed",
	}, []string{"feed"})
	RecordsPersisted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "suitwitterdb_records_persisted_total",
		Help: "Total records written per feed",
	}, []string{"feed"})
	PollDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "suitwitterdb_poll_duration_seconds",
		Help:    "Poll tick duration seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"feed"})
	APIRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "suitwitterdb_api_retries_total",
		Help: "Total API retry attempts",
	}, []string{"endpoint"})
	NotifyErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "suitwitterdb_notify_errors_total",
		Help: "Total failed notification deliveries",
	})
)

func init() {
	prometheus.MustRegister(PollRuns, PollErrors, RecordsPersisted, PollDuration, APIRetries, NotifyErrors)
}

// StartServer starts a metrics HTTP server on addr (e.g. ":9090").
// Empty addr falls back to METRICS_ADDR; empty again means no server.
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, nil) }()
}

// ObservePoll records one finished tick for a feed.
func ObservePoll(feed string, start time.Time) {
	PollDuration.WithLabelValues(feed).Observe(time.Since(start).Seconds())
}

// IncAPIRetry increments the retry counter for an endpoint.
func IncAPIRetry(endpoint string) { APIRetries.WithLabelValues(endpoint).Inc() }
