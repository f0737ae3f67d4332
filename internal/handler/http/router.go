package http

import (
	"log/slog"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wangyz12/backend-admin/internal/domain"
	"github.com/wangyz12/backend-admin/internal/service"
	"github.com/wangyz12/backend-admin/pkg/health"
	"github.com/wangyz12/backend-admin/pkg/middleware"
)

// staticMaxAge is the Cache-Control max-age, in seconds, of STATIC_DIR files.
const staticMaxAge = 3600

// RouterConfig holds the HTTP-layer settings taken from configuration.
type RouterConfig struct {
	ServiceName    string
	CORS           middleware.CORSConfig
	RateLimitRPS   float64
	RateLimitBurst int
	StaticDir      string
	PprofAllowlist []netip.Prefix
}

// NewRouter creates a chi router with all account service routes registered.
// validate guards every authenticated route and must re-check the token
// version on each call.
func NewRouter(
	cfg RouterConfig,
	userService *service.UserService,
	validate middleware.TokenValidator,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	// Global middleware
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))
	r.Use(middleware.CORS(cfg.CORS))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	middleware.RegisterPprof(r, cfg.PprofAllowlist, logger)

	authHandler := NewAuthHandler(userService, logger)
	userHandler := NewUserHandler(userService, logger)

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(middleware.NoStore)
		r.Use(ContentTypeJSON)

		// Public endpoints
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, logger))

			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.RefreshToken)
		})

		// Authenticated endpoints
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(validate))

			r.Post("/change-password", authHandler.ChangePassword)
			r.Post("/logout", authHandler.Logout)
		})
	})

	r.Route("/api/v1/users", func(r chi.Router) {
		r.Use(middleware.NoStore)
		r.Use(ContentTypeJSON)
		r.Use(middleware.Auth(validate))

		r.Get("/me", userHandler.GetProfile)
		r.Put("/me", userHandler.UpdateProfile)

		r.With(middleware.RequireRole(domain.RoleAdmin)).
			Post("/{id}/revoke", userHandler.RevokeSessions)
	})

	if cfg.StaticDir != "" {
		r.With(middleware.CacheControl(staticMaxAge)).
			Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	return r
}
