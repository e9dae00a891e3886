// Package metrics holds the Prometheus collectors for outbound requests made
// by the resource clients.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ncclient_requests_total",
		Help: "Total number of outbound requests to the Nextcloud server, per attempt.",
	}, []string{"method", "status_class"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ncclient_request_duration_seconds",
		Help:    "Histogram of outbound request latencies.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	rateLimitRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ncclient_rate_limit_retries_total",
		Help: "Number of retries issued after a 429 response.",
	}, []string{"method"})

	rateLimitExhausted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ncclient_rate_limit_exhausted_total",
		Help: "Number of calls that gave up after exhausting rate-limit retries.",
	}, []string{"method"})

	toolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ncclient_tool_calls_total",
		Help: "Total number of tool invocations served, by route and status.",
	}, []string{"route", "status"})

	toolCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ncclient_tool_call_duration_seconds",
		Help:    "Histogram of tool invocation latencies.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

// ObserveRequest records one request attempt. A status of 0 means the
// request failed before a response was received.
func ObserveRequest(method string, status int, elapsed time.Duration) {
	requestsTotal.WithLabelValues(method, statusClass(status)).Inc()
	requestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveRetry records a retry after a rate-limit response.
func ObserveRetry(method string) {
	rateLimitRetries.WithLabelValues(method).Inc()
}

// ObserveExhausted records a call that ran out of retries.
func ObserveExhausted(method string) {
	rateLimitExhausted.WithLabelValues(method).Inc()
}

func statusClass(status int) string {
	if status <= 0 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}

// Middleware records inbound tool-call metrics labelled by chi route pattern.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := routePattern(r)
			toolCallsTotal.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
			toolCallDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		})
	}
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := strings.TrimSpace(rctx.RoutePattern()); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
