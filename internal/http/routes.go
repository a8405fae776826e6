package httpx

import (
	"log/slog"
	"net/http"
	"time"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Sessions SessionService
	Profiles ProfileService
	// Optional: throttles login and register per client IP.
	LoginLimiter *ClientRateLimiter
	// Optional: readiness checks run by /healthz.
	HealthChecks    []HealthCheck
	EventsHeartbeat time.Duration
	Logger          *slog.Logger // Optional
}

// NewRouter creates and configures the bridge API router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	authHandlers := &AuthHandlers{Sessions: services.Sessions, Profiles: services.Profiles, Logger: logger}
	events := &SessionEvents{Sessions: services.Sessions, Heartbeat: services.EventsHeartbeat, Logger: logger}
	registerAuthRoutes(mux, authHandlers, services.LoginLimiter)
	mux.HandleFunc("GET /auth/session/events", events.Stream)

	health := healthHandler(services.HealthChecks, logger)
	mux.Handle("GET /healthz", health)
	mux.Handle("HEAD /healthz", health)

	return mux
}

func registerAuthRoutes(mux *http.ServeMux, h *AuthHandlers, limiter *ClientRateLimiter) {
	limit := func(next http.HandlerFunc) http.Handler {
		if limiter == nil {
			return next
		}
		return limiter.Middleware(next)
	}
	requireSession := RequireSession(h.Sessions)

	mux.Handle("POST /auth/login", limit(h.Login))
	mux.Handle("POST /auth/register", limit(h.Register))
	mux.HandleFunc("POST /auth/logout", h.Logout)
	mux.HandleFunc("GET /auth/session", h.Session)
	mux.Handle("GET /auth/metadata", requireSession(http.HandlerFunc(h.Metadata)))
	mux.Handle("PATCH /auth/profile", requireSession(http.HandlerFunc(h.UpdateProfile)))
}
