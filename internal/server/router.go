// Package server exposes the HTTP API, the realtime endpoint, and the gRPC
// health service, each runnable under the process supervisor.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oggyb/muzz-connect/internal/auth"
	"github.com/oggyb/muzz-connect/internal/config"
	"github.com/oggyb/muzz-connect/internal/logger"
	"github.com/oggyb/muzz-connect/internal/metrics"
	"github.com/oggyb/muzz-connect/internal/repository"
	"github.com/oggyb/muzz-connect/internal/service/chat"
	"github.com/oggyb/muzz-connect/internal/service/discovery"
	"github.com/oggyb/muzz-connect/internal/service/match"
)

// Deps are the collaborators the router mounts. Realtime and Prober may be
// nil; the matching routes are then not mounted.
type Deps struct {
	Config    *config.Config
	Logger    *slog.Logger
	Match     *match.Service
	Discovery *discovery.Service
	Chat      *chat.Service
	Users     *repository.UserRepository
	Resolver  *auth.Resolver
	Realtime  http.Handler
	Prober    *Prober
}

// NewRouter builds the chi router.
//
// Routes:
//   - GET  /healthz, GET /metrics, GET /ws (no bearer middleware; /ws
//     authenticates during its own handshake)
//   - /api/matches/* and /api/chat/* behind auth.Authenticate, the rate
//     limiter and the request timeout
func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	rs := responder{dev: cfg.IsDevelopment(), log: d.Logger.With("component", "http")}
	h := &handlers{
		responder: rs,
		match:     d.Match,
		discovery: d.Discovery,
		chat:      d.Chat,
		users:     d.Users,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(rs.log))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.HTTP.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(rs.notFound)
	r.MethodNotAllowed(rs.methodNotAllowed)

	r.Get("/healthz", healthHandler(rs, d.Prober))
	r.Handle("/metrics", promhttp.Handler())
	if d.Realtime != nil {
		// long-lived; must stay outside the request timeout
		r.Handle("/ws", d.Realtime)
	}

	r.Route("/api", func(r chi.Router) {
		if cfg.HTTP.RateLimit > 0 {
			r.Use(httprate.Limit(
				cfg.HTTP.RateLimit,
				cfg.HTTP.RateWindow,
				httprate.WithKeyFuncs(httprate.KeyByRealIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
					rs.writeJSON(w, http.StatusTooManyRequests, envelope{Message: "Too many requests, please try again later"})
				}),
			))
		}
		if cfg.HTTP.RequestTimeout > 0 {
			r.Use(middleware.Timeout(cfg.HTTP.RequestTimeout))
		}
		r.Use(auth.Authenticate(d.Resolver, rs.fail))

		r.Route("/matches", func(r chi.Router) {
			r.Post("/swipe", h.swipe)
			r.Get("/potential", h.potential)
			r.Get("/matches", h.matches)
			r.Get("/likes", h.likes)
			r.Get("/likes/count", h.likesCount)
			r.Put("/location", h.updateLocation)
		})
		r.Route("/chat", func(r chi.Router) {
			r.Get("/conversations", h.conversations)
			r.Get("/history/{otherUserId}", h.history)
		})
	})

	return r
}

func healthHandler(rs responder, p *Prober) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if p == nil {
			rs.ok(w, map[string]string{"status": "ok"}, "")
			return
		}
		deps, serving := p.Snapshot()
		body := map[string]any{"status": "ok", "dependencies": deps}
		if !serving {
			body["status"] = "degraded"
			rs.writeJSON(w, http.StatusServiceUnavailable, envelope{Data: body, Message: "Service unavailable"})
			return
		}
		rs.ok(w, body, "")
	}
}

// requestLogger writes one line per request.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLog := log.With("request_id", middleware.GetReqID(r.Context()))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context(), reqLog)))

			status := ww.Status()
			if status == 0 {
				// hijacked (websocket) or nothing written
				status = http.StatusOK
			}
			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			reqLog.Log(r.Context(), level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			)
		})
	}
}
