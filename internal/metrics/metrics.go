package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "profilematch_fetch_requests_total",
			Help: "HTTP requests sent to search engines, by host and status",
		},
		[]string{"host", "status"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "profilematch_fetch_duration_seconds",
			Help:    "Duration of search engine HTTP requests in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"host"},
	)

	FetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "profilematch_fetch_bytes_total",
			Help: "Bytes downloaded from search engines",
		},
		[]string{"host"},
	)

	EngineQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "profilematch_engine_queries_total",
			Help: "Engine queries by engine and result (found, none, error)",
		},
		[]string{"engine", "result"},
	)

	ReconciliationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "profilematch_reconciliations_total",
			Help: "Reconciled records by outcome (confirmed, unconfirmed)",
		},
		[]string{"outcome"},
	)

	ProxyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "profilematch_proxy_failures_total",
			Help: "Requests that failed through a proxy",
		},
		[]string{"proxy_url"},
	)
)

// RecordFetch records one HTTP exchange. status 0 means the request failed
// before a response arrived.
func RecordFetch(host string, status int, d time.Duration, bytes int) {
	statusStr := strconv.Itoa(status)
	if status == 0 {
		statusStr = "error"
	}
	FetchRequestsTotal.WithLabelValues(host, statusStr).Inc()
	FetchDuration.WithLabelValues(host).Observe(d.Seconds())
	FetchBytesTotal.WithLabelValues(host).Add(float64(bytes))
}

// RecordQuery records one engine query outcome.
func RecordQuery(engine string, found bool, err error) {
	result := "none"
	switch {
	case err != nil:
		result = "error"
	case found:
		result = "found"
	}
	EngineQueriesTotal.WithLabelValues(engine, result).Inc()
}

// RecordOutcome records one reconciliation.
func RecordOutcome(confirmed bool) {
	outcome := "unconfirmed"
	if confirmed {
		outcome = "confirmed"
	}
	ReconciliationsTotal.WithLabelValues(outcome).Inc()
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// NewServer prepares a server exposing /metrics on port without starting it.
func NewServer(port int) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &Server{srv: &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		errc <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		return s.Stop(context.Background())
	}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
