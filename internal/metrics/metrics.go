package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultApproved = "approved"
	ResultDeclined = "declined"
	ResultInvalid  = "invalid"
	ResultError    = "error"
	ResultPartial  = "partial"
)

var (
	Authorizations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_authorizations_total",
			Help: "Total number of authorization requests by result",
		},
		[]string{"result"},
	)
	Completions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_completions_total",
			Help: "Total number of completion requests by result",
		},
		[]string{"result"},
	)
	Expired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_expired_total",
			Help: "Total number of pending authorizations expired by the sweeper",
		},
	)
	Checkouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_total",
			Help: "Total number of checkouts by result",
		},
		[]string{"result"},
	)
	// PartialCheckouts counts checkouts that left a pending authorization behind.
	PartialCheckouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_partial_failures_total",
			Help: "Checkouts whose authorization succeeded but completion failed",
		},
	)
	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// NormalizePath keeps the first path segment so label cardinality stays bounded.
func NormalizePath(p string) string {
	p = strings.TrimPrefix(p, "/")
	if idx := strings.Index(p, "/"); idx >= 0 {
		p = p[:idx]
	}
	if p == "" {
		return "root"
	}
	return p
}

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		duration := time.Since(start).Seconds()

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		path := NormalizePath(r.URL.Path)
		RequestTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		RequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}
