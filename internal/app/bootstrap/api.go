package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/spa-booking-engine/internal/api/router"
	"github.com/wolfman30/spa-booking-engine/internal/appointments"
	"github.com/wolfman30/spa-booking-engine/internal/assignment"
	appconfig "github.com/wolfman30/spa-booking-engine/internal/config"
	"github.com/wolfman30/spa-booking-engine/internal/courses"
	"github.com/wolfman30/spa-booking-engine/internal/effects"
	"github.com/wolfman30/spa-booking-engine/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/spa-booking-engine/internal/http/middleware"
	"github.com/wolfman30/spa-booking-engine/internal/loyalty"
	"github.com/wolfman30/spa-booking-engine/internal/notify"
	"github.com/wolfman30/spa-booking-engine/internal/observability/metrics"
	"github.com/wolfman30/spa-booking-engine/internal/payments"
	"github.com/wolfman30/spa-booking-engine/internal/shifts"
	"github.com/wolfman30/spa-booking-engine/pkg/logging"
)

// APIDeps are the runtime resources the API is built from. Storage is
// required; everything else is optional.
type APIDeps struct {
	Config  *appconfig.Config
	Storage *Storage
	Redis   *redis.Client
	// SQLDB backs the admin dashboard. Nil leaves the dashboard unmounted.
	SQLDB          *sql.DB
	Metrics        *metrics.BookingMetrics
	MetricsHandler http.Handler
	Logger         *logging.Logger
}

// API holds the wired services and the router configuration that exposes them.
type API struct {
	Appointments *appointments.Service
	Courses      *courses.Service
	Reconciler   *payments.Reconciler
	Limiter      *httpmiddleware.RateLimiter
	Router       *router.Config
}

// BuildAPI wires services, lifecycle observers and handlers.
func BuildAPI(deps APIDeps) (*API, error) {
	cfg := deps.Config
	if cfg == nil {
		return nil, errors.New("bootstrap: config required")
	}
	if deps.Storage == nil || deps.Storage.Store == nil {
		return nil, errors.New("bootstrap: storage required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	tiers, err := loyalty.ParseTiers(cfg.LoyaltyTiers)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	store := deps.Storage.Store

	runner := effects.NewRunner(logger.Component("effects"), deps.Metrics)
	courseSvc := courses.NewService(store, logger.Component("courses")).WithPlaceholderTime(cfg.DefaultSessionTime)
	shiftSvc := shifts.NewService(store, logger.Component("shifts"))
	notifier := notify.NewService(store, deps.Storage.Outbox, logger.Component("notify"))
	scorer := assignment.NewScorer(store, logger.Component("assignment"), deps.Metrics)

	lifecycle := appointments.NewLifecycle(runner, logger).
		Register(appointments.StandardObservers(courseSvc, shiftSvc, notifier, logger)...)
	apptSvc := appointments.NewService(appointments.Deps{
		Store:     store,
		Scorer:    scorer,
		Courses:   courseSvc,
		Lifecycle: lifecycle,
		Notifier:  notifier,
		Runner:    runner,
		Metrics:   deps.Metrics,
		Logger:    logger.Component("appointments"),
	})

	paymentsLogger := logger.Component("payments")
	wallets := loyalty.NewWallets(store, tiers, logger.Component("loyalty"))
	reconciler := payments.NewReconciler(store, wallets, deps.Storage.Outbox, paymentsLogger, deps.Metrics)
	vnpay := payments.NewVNPay(payments.VNPayConfig{
		TmnCode:    cfg.VNPayTmnCode,
		HashSecret: cfg.VNPayHashSecret,
		PayURL:     cfg.VNPayPayURL,
		ReturnURL:  cfg.VNPayReturnURL,
	})
	if !vnpay.Configured() {
		logger.Warn("VNPay credentials missing, online checkout disabled")
	}
	limiter := payments.NewCheckoutLimiter(deps.Redis, cfg.CheckoutMaxAttempts, cfg.CheckoutWindow, paymentsLogger)
	paymentsHandler := payments.NewHandler(payments.HandlerDeps{
		Checkout:   payments.NewCheckout(store, vnpay, limiter, paymentsLogger),
		Reconciler: reconciler,
		VNPay:      vnpay,
		Guard:      payments.NewCallbackGuard(deps.Redis, cfg.CallbackLockTTL, paymentsLogger),
		Processed:  deps.Storage.Processed,
		Logger:     paymentsLogger,
	})

	var dashboard *handlers.AdminDashboardHandler
	if deps.SQLDB != nil {
		dashboard = handlers.NewAdminDashboardHandler(deps.SQLDB, logger.Component("dashboard"))
	}

	var publicLimiter *httpmiddleware.RateLimiter
	if cfg.PublicRateLimitRPS > 0 {
		publicLimiter = httpmiddleware.NewRateLimiter(cfg.PublicRateLimitRPS, cfg.PublicRateBurst)
	}

	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set, admin routes will reject every request")
	}

	storage, redisClient := deps.Storage, deps.Redis
	return &API{
		Appointments: apptSvc,
		Courses:      courseSvc,
		Reconciler:   reconciler,
		Limiter:      publicLimiter,
		Router: &router.Config{
			Logger:             logger,
			Appointments:       appointments.NewHandler(apptSvc, logger.Component("appointments")),
			Courses:            courses.NewHandler(courseSvc, logger.Component("courses")),
			Payments:           paymentsHandler,
			Assignment:         assignment.NewHandler(scorer, logger.Component("assignment")),
			Dashboard:          dashboard,
			AdminAuthSecret:    cfg.AdminJWTSecret,
			MetricsHandler:     deps.MetricsHandler,
			CORSAllowedOrigins: cfg.CORSAllowedOrigins,
			PublicLimiter:      publicLimiter,
			HealthCheck: func(ctx context.Context) error {
				if err := storage.Ping(ctx); err != nil {
					return fmt.Errorf("database: %w", err)
				}
				if redisClient != nil {
					if err := redisClient.Ping(ctx).Err(); err != nil {
						return fmt.Errorf("redis: %w", err)
					}
				}
				return nil
			},
		},
	}, nil
}
