/*
metrics.go - Prometheus instrumentation

PURPOSE:
  Request-level metrics for the HTTP API plus a domain counter for
  recorded payments. Exposed on GET /metrics via promhttp.

METRICS:
  fee_engine_http_requests_total{method,path,status}  Request counter
  fee_engine_http_request_seconds{method,path}        Latency histogram
  fee_engine_payments_recorded_total{method}          Successful payments

SEE ALSO:
  - server.go: Mounts the middleware and the /metrics endpoint
*/
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fee_engine_http_requests_total",
		Help: "HTTP requests processed, by method, route pattern and status.",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fee_engine_http_request_seconds",
		Help:    "HTTP request latency, by method and route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	paymentsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fee_engine_payments_recorded_total",
		Help: "Payments successfully recorded and allocated, by method.",
	}, []string{"method"})
)

// metricsMiddleware records request counts and latency. It reads the chi
// route pattern after the handler runs so labels stay low-cardinality
// (no raw IDs in the path label).
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := chi.RouteContext(r.Context()).RoutePattern()
		if path == "" {
			path = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
