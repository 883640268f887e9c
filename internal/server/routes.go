package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rx3lixir/echonet/internal/auth"
	"github.com/rx3lixir/echonet/internal/room"
	"github.com/rx3lixir/echonet/internal/transcript"
	"github.com/rx3lixir/echonet/internal/user"
	"github.com/rx3lixir/echonet/internal/websocket"
	"github.com/rx3lixir/echonet/pkg/httputil"
)

// HealthCheck reports whether a backing service is reachable
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	UserHandler       *user.Handler
	RoomHandler       *room.Handler
	TranscriptHandler *transcript.Handler // nil when object storage is disabled
	WSHandler         *websocket.Handler
	AuthService       *auth.Service
	AllowedOrigins    []string
	Health            map[string]HealthCheck
	Log               *slog.Logger
}

func NewRouter(config RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware block
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(config.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", httputil.Handler(healthHandler(config.Health), config.Log))

		// Auth routes (no middleware)
		r.Route("/auth", config.UserHandler.RegisterAuthRoutes)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(config.AuthService, config.Log))

			r.Route("/user", config.UserHandler.RegisterUserRoutes)
			r.Route("/rooms", func(r chi.Router) {
				config.RoomHandler.RegisterRoutes(r)
				if config.TranscriptHandler != nil {
					config.TranscriptHandler.RegisterRoutes(r)
				}
			})
		})
	})

	// Authenticates itself, browsers cannot set headers on upgrade
	r.Route("/ws", config.WSHandler.RegisterRoutes)

	return r
}

func healthHandler(checks map[string]HealthCheck) httputil.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		status := http.StatusOK
		services := make(map[string]string, len(checks))

		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				services[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			services[name] = "ok"
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}

		return httputil.RespondJSON(w, status, map[string]any{
			"status":   overall,
			"services": services,
		})
	}
}
