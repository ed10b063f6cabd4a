package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/FranksOps/perspicacity/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perspicacity_fetch_attempts_total",
			Help: "Total number of page fetch attempts, by outcome",
		},
		[]string{"domain", "reason", "strategy", "detection_src"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "perspicacity_fetch_duration_seconds",
			Help:    "Duration of page fetch attempts in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
	)

	ContentRunesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perspicacity_content_runes_total",
			Help: "Total characters of accepted page content",
		},
		[]string{"domain"},
	)

	CandidatesSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perspicacity_candidates_skipped_total",
			Help: "Search candidates skipped without a fetch attempt",
		},
		[]string{"cause"},
	)

	CrawlsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perspicacity_crawls_total",
			Help: "Completed crawls, by whether the result quota was filled",
		},
		[]string{"outcome"},
	)

	ProxyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perspicacity_proxy_failures_total",
			Help: "Total number of proxy failures during fetches",
		},
		[]string{"proxy_url"},
	)
)

// RecordAttempt updates the metrics given an Attempt and domain.
func RecordAttempt(domain string, a *storage.Attempt) {
	if a == nil {
		return
	}

	FetchAttemptsTotal.WithLabelValues(domain, a.Reason, a.Strategy, a.DetectionSrc).Inc()
	FetchDuration.WithLabelValues(domain).Observe(a.Duration.Seconds())
	if a.Accepted() {
		ContentRunesTotal.WithLabelValues(domain).Add(float64(a.ContentLength))
	}
}

// RecordSkip counts a candidate that was passed over, e.g. "blocked".
func RecordSkip(cause string) {
	CandidatesSkippedTotal.WithLabelValues(cause).Inc()
}

// RecordCrawl counts a finished crawl.
func RecordCrawl(accepted, wanted int) {
	outcome := "filled"
	switch {
	case accepted == 0:
		outcome = "empty"
	case accepted < wanted:
		outcome = "partial"
	}
	CrawlsTotal.WithLabelValues(outcome).Inc()
}

// RecordProxyFailure counts a failed request routed through proxyURL.
func RecordProxyFailure(proxyURL string) {
	ProxyFailures.WithLabelValues(proxyURL).Inc()
}

// Handler returns the HTTP handler exposing the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", srv.Addr, "err", err)
		}
	}()

	logger.Info("metrics server listening", "addr", srv.Addr)
	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
