package main

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/spa-booking-engine/internal/api/router"
	"github.com/wolfman30/spa-booking-engine/internal/app/bootstrap"
	appconfig "github.com/wolfman30/spa-booking-engine/internal/config"
	"github.com/wolfman30/spa-booking-engine/internal/events"
	"github.com/wolfman30/spa-booking-engine/internal/observability/metrics"
	"github.com/wolfman30/spa-booking-engine/pkg/logging"
)

func main() {
	dotenvErr := godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	if dotenvErr != nil && !errors.Is(dotenvErr, fs.ErrNotExist) {
		logger.Warn("failed to load .env", "error", dotenvErr)
	}
	logger.Info("starting spa booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storage, err := bootstrap.BuildStorage(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer storage.Close()

	sqlDB := openDashboardDB(storage.Pool)
	if sqlDB != nil {
		defer sqlDB.Close()
	} else {
		logger.Warn("admin dashboard disabled without a database")
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	metricsHandler, bookingMetrics := setupMetrics()
	api, err := bootstrap.BuildAPI(bootstrap.APIDeps{
		Config:         cfg,
		Storage:        storage,
		Redis:          redisClient,
		SQLDB:          sqlDB,
		Metrics:        bookingMetrics,
		MetricsHandler: metricsHandler,
		Logger:         logger,
	})
	if err != nil {
		logger.Error("failed to wire API", "error", err)
		os.Exit(1)
	}
	if api.Limiter != nil {
		go api.Limiter.Run(ctx, time.Minute)
	}

	// The in-memory outbox is invisible to cmd/outbox-worker, so deliver it here.
	if storage.Pool == nil {
		dispatcher := bootstrap.BuildDispatcher(cfg, nil, nil, logger.Component("outbox"))
		deliverer := events.NewDeliverer(storage.Source, dispatcher, logger.Component("outbox")).
			WithBatchSize(int32(cfg.OutboxBatchSize)).
			WithInterval(cfg.OutboxPollInterval)
		go deliverer.Start(ctx)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.New(api.Router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// setupMetrics registers the booking metrics and Go runtime collectors on a
// dedicated registry.
func setupMetrics() (http.Handler, *metrics.BookingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewBookingMetrics(reg)
}

// openDashboardDB exposes the pool through database/sql for the dashboard
// queries. It returns nil without a pool.
func openDashboardDB(pool *pgxpool.Pool) *sql.DB {
	if pool == nil {
		return nil
	}
	return stdlib.OpenDBFromPool(pool)
}
