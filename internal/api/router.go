package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mw "github.com/echoes-app/demo-relay/internal/middleware"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	Health http.HandlerFunc
	Verify http.HandlerFunc
	Chat   http.HandlerFunc
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string

	// Gate middlewares for /api/chat, applied in order: auth, then rate.
	PasswordAuth func(http.Handler) http.Handler
	RateLimiter  func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	r.Get("/health", h.Health)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/verify", h.Verify)

		// Chat is gated: password auth first, then the per-IP rate limit,
		// so unauthenticated probes never consume a rate-limit slot.
		r.Group(func(r chi.Router) {
			if cfg.PasswordAuth != nil {
				r.Use(cfg.PasswordAuth)
			}
			if cfg.RateLimiter != nil {
				r.Use(cfg.RateLimiter)
			}
			r.Post("/chat", h.Chat)
		})
	})

	notFound := func(w http.ResponseWriter, r *http.Request) {
		HandleError(w, ErrNotFound)
	}
	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	return r
}
