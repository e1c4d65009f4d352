package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/spa-booking-engine/internal/appointments"
	"github.com/wolfman30/spa-booking-engine/internal/assignment"
	"github.com/wolfman30/spa-booking-engine/internal/courses"
	"github.com/wolfman30/spa-booking-engine/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/spa-booking-engine/internal/http/middleware"
	"github.com/wolfman30/spa-booking-engine/internal/http/respond"
	"github.com/wolfman30/spa-booking-engine/internal/payments"
	"github.com/wolfman30/spa-booking-engine/pkg/logging"
)

// Config holds router configuration. Nil handlers leave their routes unmounted.
type Config struct {
	Logger             *logging.Logger
	Appointments       *appointments.Handler
	Courses            *courses.Handler
	Payments           *payments.Handler
	Assignment         *assignment.Handler
	Dashboard          *handlers.AdminDashboardHandler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// PublicLimiter throttles the public /api routes per client IP.
	PublicLimiter *httpmiddleware.RateLimiter
	// HealthCheck reports dependency health for /health.
	HealthCheck func(ctx context.Context) error
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	r.Get("/health", healthHandler(cfg.HealthCheck))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	adminAuth := httpmiddleware.AdminJWT(cfg.AdminAuthSecret)

	r.Route("/api", func(api chi.Router) {
		if cfg.PublicLimiter != nil {
			api.Use(cfg.PublicLimiter.Middleware)
		}
		if cfg.Appointments != nil {
			api.Route("/appointments", func(ar chi.Router) {
				cfg.Appointments.RegisterPublicRoutes(ar)
				ar.Group(func(admin chi.Router) {
					admin.Use(adminAuth)
					cfg.Appointments.RegisterAdminRoutes(admin)
				})
			})
		}
		if cfg.Courses != nil {
			api.Route("/courses", func(cr chi.Router) {
				cfg.Courses.RegisterPublicRoutes(cr)
				cr.Group(func(admin chi.Router) {
					admin.Use(adminAuth)
					cfg.Courses.RegisterAdminRoutes(admin)
				})
			})
		}
		if cfg.Payments != nil {
			api.Route("/payments", cfg.Payments.RegisterCheckoutRoutes)
		}
	})

	// Gateway callbacks authenticate by signature, not by token.
	if cfg.Payments != nil {
		r.Route("/payments/vnpay", cfg.Payments.RegisterGatewayRoutes)
	}

	r.Route("/admin", func(admin chi.Router) {
		admin.Use(adminAuth)
		if cfg.Payments != nil {
			admin.Route("/payments", cfg.Payments.RegisterAdminRoutes)
		}
		if cfg.Assignment != nil {
			admin.Route("/assignment", cfg.Assignment.RegisterRoutes)
		}
		if cfg.Dashboard != nil {
			cfg.Dashboard.RegisterRoutes(admin)
		}
	})

	return r
}

func healthHandler(check func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				respond.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
				return
			}
		}
		respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
