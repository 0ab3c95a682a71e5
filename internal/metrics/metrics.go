package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xgrowth_job_runs_total",
		Help: "Total processor runs by job kind",
	}, []string{"kind"})
	JobErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xgrowth_job_errors_total",
		Help: "Total processor errors by job kind",
	}, []string{"kind"})
	JobBlocked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xgrowth_job_blocked_total",
		Help: "Total runs ending blocked on a non-retryable failure",
	}, []string{"kind"})
	JobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "xgrowth_job_duration_seconds",
		Help:    "Processor run duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	CapHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xgrowth_cap_hits_total",
		Help: "Total hard-cap rejections by cap kind",
	}, []string{"cap"})
	TokenRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xgrowth_token_refreshes_total",
		Help: "Token refresh attempts by outcome",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(JobRuns, JobErrors, JobBlocked, JobDuration, CapHits, TokenRefreshes)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
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

// ObserveJobDuration records one run's duration for a job kind.
func ObserveJobDuration(kind string, start time.Time) {
	JobDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}
