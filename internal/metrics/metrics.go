package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plesc_api_requests_total",
			Help: "Backend requests by operation and outcome",
		},
		[]string{"op", "outcome"}, // outcome: ok, transport, status, decode
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "plesc_api_request_duration_seconds",
			Help:    "Backend request duration",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"op"},
	)

	// Conversation metrics
	OptimisticAppends = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "plesc_optimistic_appends_total",
			Help: "User messages shown before the backend confirmed them",
		},
	)

	StaleCompletions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plesc_stale_completions_total",
			Help: "Completions dropped because no open conversation was waiting for them",
		},
		[]string{"kind"}, // load, send, reset
	)
)

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
