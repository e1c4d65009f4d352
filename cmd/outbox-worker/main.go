package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/spa-booking-engine/cmd/mainconfig"
	"github.com/wolfman30/spa-booking-engine/internal/app/bootstrap"
	appconfig "github.com/wolfman30/spa-booking-engine/internal/config"
	"github.com/wolfman30/spa-booking-engine/internal/database"
	"github.com/wolfman30/spa-booking-engine/internal/events"
	"github.com/wolfman30/spa-booking-engine/pkg/logging"
)

func main() {
	dotenvErr := godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel).Component("outbox-worker")
	if dotenvErr != nil && !errors.Is(dotenvErr, fs.ErrNotExist) {
		logger.Warn("failed to load .env", "error", dotenvErr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL == "" {
		logger.Error("outbox worker requires DATABASE_URL")
		os.Exit(1)
	}
	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	awsClients, err := mainconfig.BuildNotifyClients(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	dispatcher := bootstrap.BuildDispatcher(cfg, awsClients.SQS, awsClients.SES, logger)

	reg := prometheus.NewRegistry()
	handler := newCountingHandler(dispatcher, reg)
	deliverer := events.NewDeliverer(events.NewOutboxStore(pool), handler, logger).
		WithBatchSize(int32(cfg.OutboxBatchSize)).
		WithInterval(cfg.OutboxPollInterval)

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("outbox worker started", "interval", cfg.OutboxPollInterval, "batch_size", cfg.OutboxBatchSize)
		deliverer.Start(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("metrics listening", "addr", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("outbox worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("outbox worker shutting down")
}

// countingHandler records delivery results per event type.
type countingHandler struct {
	next       events.DeliveryHandler
	deliveries *prometheus.CounterVec
}

func newCountingHandler(next events.DeliveryHandler, reg prometheus.Registerer) *countingHandler {
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "spa",
		Subsystem: "outbox",
		Name:      "deliveries_total",
		Help:      "Outbox deliveries by event type and result",
	}, []string{"event_type", "result"})
	reg.MustRegister(deliveries)
	return &countingHandler{next: next, deliveries: deliveries}
}

func (h *countingHandler) Handle(ctx context.Context, entry events.OutboxEntry) error {
	err := h.next.Handle(ctx, entry)
	result := "ok"
	if err != nil {
		result = "error"
	}
	h.deliveries.WithLabelValues(entry.Type, result).Inc()
	return err
}
