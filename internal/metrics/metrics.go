package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SwipesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "muzz_swipes_total",
		Help: "Total number of recorded swipes",
	}, []string{"action"})
	MatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "muzz_matches_total",
		Help: "Total number of swipes that completed a mutual match",
	})
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "muzz_chat_messages_total",
		Help: "Total number of persisted chat messages",
	}, []string{"type"})
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "muzz_ws_connections",
		Help: "Current number of active websocket connections",
	})
	WsEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "muzz_ws_events_total",
		Help: "Inbound realtime events by kind and outcome",
	}, []string{"event", "outcome"})
	WsHandshakeFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "muzz_ws_handshake_failures_total",
		Help: "Rejected realtime handshakes by reason",
	}, []string{"reason"})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(
		SwipesTotal, MatchesTotal, MessagesTotal,
		WsConnections, WsEventsTotal, WsHandshakeFailures,
		HttpRequestsTotal, HttpRequestDuration,
	)
}

// Middleware records request count and latency labelled by the chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		labels := prometheus.Labels{"method": r.Method, "path": path, "status": strconv.Itoa(status)}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	})
}
