package verifierd

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gitbounty/oracle"
)

var (
	jobMetricsOnce sync.Once
	jobOutcomes    *prometheus.CounterVec
	jobDuration    prometheus.Histogram
)

func jobMetrics() (*prometheus.CounterVec, prometheus.Histogram) {
	jobMetricsOnce.Do(func() {
		jobOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gitbounty",
			Subsystem: "verifierd",
			Name:      "jobs_total",
			Help:      "Verification jobs segmented by outcome.",
		}, []string{"outcome"})
		jobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gitbounty",
			Subsystem: "verifierd",
			Name:      "job_duration_seconds",
			Help:      "Wall time spent resolving one verification job.",
			Buckets:   prometheus.DefBuckets,
		})
		prometheus.MustRegister(jobOutcomes, jobDuration)
	})
	return jobOutcomes, jobDuration
}

// Server exposes the verification script over HTTP for the oracle
// dispatcher. Script-level failures are 200 responses carrying an error
// payload; non-200 responses signal transport trouble only.
type Server struct {
	cfg    Config
	github *GitHubClient
	logger *slog.Logger
}

// NewServer wires the verification endpoint around a GitHub client.
func NewServer(cfg Config, github *GitHubClient, logger *slog.Logger) *Server {
	if github == nil {
		panic("verifierd: github client required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, github: github, logger: logger}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/v1/verify", s.handleVerify)
	return r
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	outcomes, duration := jobMetrics()
	started := time.Now()
	var job oracle.VerifyJob
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&job); err != nil {
		http.Error(w, "invalid job payload", http.StatusBadRequest)
		outcomes.WithLabelValues("bad_request").Inc()
		return
	}
	credential := job.Credential
	if credential == "" {
		credential = s.cfg.FallbackToken()
	}
	ctx, cancel := contextWithTimeout(r, s.cfg.GitHub.Timeout.Std())
	defer cancel()
	result := oracle.VerifyJobResult{}
	payload, err := RunVerification(ctx, s.github, credential, job.Args)
	if err != nil {
		s.logger.Warn("verification job failed", "args", job.Args, "err", err)
		result.Error = err.Error()
		outcomes.WithLabelValues("script_error").Inc()
	} else {
		result.Result = "0x" + hex.EncodeToString(payload)
		outcomes.WithLabelValues("ok").Inc()
	}
	duration.Observe(time.Since(started).Seconds())
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		s.logger.Error("verify response encode failed", "err", err)
	}
}

func contextWithTimeout(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), d)
}
