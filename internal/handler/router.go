package handler

import (
	"context"
	"net/http"
	"time"

	"marketplace-auth/internal/config"
	"marketplace-auth/internal/metrics"
	"marketplace-auth/internal/model"
	"marketplace-auth/internal/util"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// HealthFunc reports the state of every backing dependency, keyed by name.
// A nil error means healthy.
type HealthFunc func(ctx context.Context) map[string]error

// requireHTTPS rejects any request that wasn’t made over TLS
func requireHTTPS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUpgradeRequired) // 426
			w.Write([]byte(`{"success":false,"error":"https required"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(
	auth *AuthHandler,
	sessions *SessionHandler,
	vendors *VendorHandler,
	health HealthFunc,
	cfg *config.Config,
	logger *zap.Logger,
) chi.Router {
	router := chi.NewRouter()

	// Enforce HTTPS-only when the server terminates TLS itself
	if cfg.Server.EnableTLS && cfg.IsProduction() {
		router.Use(requireHTTPS)
	}

	// Middleware stack
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggerMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/health", healthHandler(cfg.AppName, health, logger))
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	router.Route("/api/auth", func(r chi.Router) {
		r.Post("/", auth.Dispatch)
		r.Post("/refresh", sessions.Refresh)
		r.With(sessions.RequireBearer).Get("/me", sessions.Me)
	})

	router.Route("/api/cab_vendor", func(r chi.Router) {
		r.Post("/login", vendors.Login)
		r.Post("/refresh", vendors.Refresh)
	})

	// 404 handler
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"success":false,"error":"endpoint not found"}`))
	})

	// Method not allowed handler
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		w.Write([]byte(`{"success":false,"error":"method not allowed"}`))
	})

	return router
}

func healthHandler(service string, health HealthFunc, logger *zap.Logger) http.HandlerFunc {
	rs := responder{logger: logger}
	return func(w http.ResponseWriter, r *http.Request) {
		resp := model.HealthResponse{
			Status:    "healthy",
			Service:   service,
			Checks:    map[string]string{},
			Timestamp: time.Now().UTC(),
		}
		status := http.StatusOK
		if health != nil {
			for name, err := range health(r.Context()) {
				if err != nil {
					util.Warn("Health check failed", util.String("dependency", name), util.ErrorField(err))
					resp.Checks[name] = "unhealthy"
					resp.Status = "degraded"
					status = http.StatusServiceUnavailable
					continue
				}
				resp.Checks[name] = "healthy"
			}
		}
		rs.respondWithJSON(w, status, resp)
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests
func LoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("HTTP request",
					util.String("method", r.Method),
					util.String("path", r.URL.Path),
					util.String("request_id", middleware.GetReqID(r.Context())),
					util.Int("status", ww.Status()),
					util.Duration("duration", time.Since(start)),
					util.String("user_agent", r.UserAgent()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
