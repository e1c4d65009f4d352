package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/spa-booking-engine/pkg/logging"
)

// CallbackGuard serializes concurrent callbacks for one transaction across
// API instances. It fails open: when Redis is unavailable every caller
// proceeds and the conditional payment update remains the safeguard.
type CallbackGuard struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewCallbackGuard returns a guard; a nil client yields a guard that always
// grants the lock.
func NewCallbackGuard(client *redis.Client, ttl time.Duration, logger *logging.Logger) *CallbackGuard {
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CallbackGuard{redis: client, ttl: ttl, logger: logger}
}

func callbackKey(transactionID string) string {
	return "spa:payments:callback:" + transactionID
}

// Acquire takes the lock for transactionID. The returned release func is
// always safe to call.
func (g *CallbackGuard) Acquire(ctx context.Context, transactionID string) (release func(), acquired bool) {
	noop := func() {}
	if g == nil || g.redis == nil {
		return noop, true
	}
	ctx, span := tracer.Start(ctx, "payments.callback_guard")
	defer span.End()

	key := callbackKey(transactionID)
	token := uuid.NewString()
	ok, err := g.redis.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil {
		g.logger.Warn("payments: callback guard unavailable, proceeding", "error", err, "transaction_id", transactionID)
		span.SetAttributes(attribute.Bool("spa.guard_fail_open", true))
		return noop, true
	}
	if !ok {
		span.SetAttributes(attribute.Bool("spa.guard_contended", true))
		return noop, false
	}
	return func() {
		// Only the holder deletes; an expired lock may already belong to someone else.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, g.redis, []string{key}, token).Err(); err != nil && err != redis.Nil {
			g.logger.Warn("payments: callback guard release failed", "error", err, "transaction_id", transactionID)
		}
	}, true
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// CheckoutLimiter caps checkout attempts per client within a window.
type CheckoutLimiter struct {
	redis       *redis.Client
	maxAttempts int
	window      time.Duration
	logger      *logging.Logger
}

// LimitResult is the outcome of one checkout attempt check.
type LimitResult struct {
	Allowed      bool
	CurrentCount int
	MaxAllowed   int
	WindowExpiry time.Time
}

func NewCheckoutLimiter(client *redis.Client, maxAttempts int, window time.Duration, logger *logging.Logger) *CheckoutLimiter {
	if logger == nil {
		logger = logging.Default()
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if window <= 0 {
		window = time.Hour
	}
	return &CheckoutLimiter{redis: client, maxAttempts: maxAttempts, window: window, logger: logger}
}

// Check counts one attempt for userID. Redis errors allow the attempt.
func (l *CheckoutLimiter) Check(ctx context.Context, userID uuid.UUID) LimitResult {
	if l == nil || l.redis == nil {
		return LimitResult{Allowed: true}
	}
	key := fmt.Sprintf("spa:payments:checkout:%s", userID)
	count, expiry, err := l.incrementAndGet(ctx, key)
	if err != nil {
		l.logger.Error("checkout limiter unavailable", "error", err, "key", key)
		return LimitResult{Allowed: true, MaxAllowed: l.maxAttempts}
	}
	result := LimitResult{
		Allowed:      count <= l.maxAttempts,
		CurrentCount: count,
		MaxAllowed:   l.maxAttempts,
		WindowExpiry: expiry,
	}
	if !result.Allowed {
		l.logger.Warn("checkout attempts exceeded", "user_id", userID, "count", count, "max", l.maxAttempts)
	}
	return result
}

func (l *CheckoutLimiter) incrementAndGet(ctx context.Context, key string) (int, time.Time, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	if count == 1 {
		l.redis.Expire(ctx, key, l.window)
	}
	ttl, err := l.redis.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = l.window
	}
	return int(count), time.Now().Add(ttl), nil
}
