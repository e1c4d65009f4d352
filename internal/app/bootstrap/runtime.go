package bootstrap

import (
	"context"
	"crypto/tls"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/spa-booking-engine/internal/booking"
	"github.com/wolfman30/spa-booking-engine/internal/booking/memstore"
	"github.com/wolfman30/spa-booking-engine/internal/booking/postgres"
	appconfig "github.com/wolfman30/spa-booking-engine/internal/config"
	"github.com/wolfman30/spa-booking-engine/internal/database"
	"github.com/wolfman30/spa-booking-engine/internal/events"
	"github.com/wolfman30/spa-booking-engine/internal/payments"
	"github.com/wolfman30/spa-booking-engine/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available, callback guard and checkout limiter disabled", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// Storage is the booking store plus the outbox and callback ledger that
// live on the same backend.
type Storage struct {
	Store     booking.Store
	Outbox    events.Outbox
	Source    events.OutboxSource
	Processed payments.ProcessedTracker
	// Pool is nil for the in-memory backend.
	Pool *pgxpool.Pool
}

// BuildStorage connects to Postgres when DATABASE_URL is set. Without it the
// in-memory store is used, which is only suitable for local runs.
func BuildStorage(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*Storage, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		return MemoryStorage(memstore.New()), nil
	}
	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return &Storage{
		Store:     postgres.New(pool),
		Outbox:    events.NewOutboxStore(pool),
		Source:    events.NewOutboxStore(pool),
		Processed: events.NewProcessedStore(pool),
		Pool:      pool,
	}, nil
}

// MemoryStorage wraps an in-memory store with in-process outbox and ledger.
func MemoryStorage(store *memstore.Store) *Storage {
	outbox := events.NewMemoryOutbox()
	return &Storage{
		Store:     store,
		Outbox:    outbox,
		Source:    outbox,
		Processed: events.NewMemoryProcessedStore(),
	}
}

// Ping reports whether the database answers. The in-memory backend is always up.
func (s *Storage) Ping(ctx context.Context) error {
	if s == nil || s.Pool == nil {
		return nil
	}
	return s.Pool.Ping(ctx)
}

// Close releases the pool.
func (s *Storage) Close() {
	if s != nil && s.Pool != nil {
		s.Pool.Close()
	}
}
