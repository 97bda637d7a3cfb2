// Package metrics provides Prometheus instrumentation for the lending platform.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Investment outcomes used as the "outcome" label.
const (
	OutcomeAccepted         = "accepted"
	OutcomeTooSmall         = "too_small"
	OutcomeExceedsRemaining = "exceeds_remaining"
	OutcomeNotOpen          = "not_open"
	OutcomeConflict         = "conflict"
	OutcomeInvalid          = "invalid"
)

var (
	// LoansCreated counts loan applications by assigned grade.
	LoansCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finscorex_loans_created_total",
		Help: "Total loan applications accepted, by credit grade",
	}, []string{"grade"})

	// CreditScores records the distribution of computed credit scores.
	CreditScores = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "finscorex_credit_score",
		Help:    "Distribution of computed credit scores",
		Buckets: prometheus.LinearBuckets(300, 50, 12),
	})

	// Investments counts investment attempts by outcome.
	Investments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finscorex_investments_total",
		Help: "Investment attempts by outcome",
	}, []string{"outcome"})

	// FundedVolume tracks the cumulative accepted investment amount by grade.
	FundedVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finscorex_funded_volume_total",
		Help: "Cumulative accepted investment amount in currency units",
	}, []string{"grade"})

	// LoansFullyFunded counts loans that reached 100% funding.
	LoansFullyFunded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "finscorex_loans_fully_funded_total",
		Help: "Loans that reached their requested amount",
	})

	// FundingRetries counts funding transactions retried after a conflict.
	FundingRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "finscorex_funding_retries_total",
		Help: "Funding transactions retried after a store conflict",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "finscorex_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "finscorex_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "finscorex_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Route pattern keeps label cardinality bounded.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
