package payments

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestCallbackGuardSerializesTransaction(t *testing.T) {
	mr, client := setupTestRedis(t)
	guard := NewCallbackGuard(client, time.Minute, nil)
	ctx := context.Background()

	release, ok := guard.Acquire(ctx, "T1")
	require.True(t, ok)
	assert.True(t, mr.Exists(callbackKey("T1")))

	_, ok = guard.Acquire(ctx, "T1")
	assert.False(t, ok, "second caller must wait for the first")

	otherRelease, ok := guard.Acquire(ctx, "T2")
	assert.True(t, ok, "different transactions do not contend")
	otherRelease()

	release()
	assert.False(t, mr.Exists(callbackKey("T1")))

	release, ok = guard.Acquire(ctx, "T1")
	assert.True(t, ok)
	release()
}

func TestCallbackGuardReleaseKeepsForeignLock(t *testing.T) {
	mr, client := setupTestRedis(t)
	guard := NewCallbackGuard(client, time.Second, nil)
	ctx := context.Background()

	release, ok := guard.Acquire(ctx, "T1")
	require.True(t, ok)

	// The lock expired and another instance took it.
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set(callbackKey("T1"), "someone-else"))

	release()
	got, err := mr.Get(callbackKey("T1"))
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestCallbackGuardFailsOpen(t *testing.T) {
	var nilGuard *CallbackGuard
	release, ok := nilGuard.Acquire(context.Background(), "T1")
	assert.True(t, ok)
	release()

	mr, client := setupTestRedis(t)
	guard := NewCallbackGuard(client, time.Minute, nil)
	mr.Close()

	release, ok = guard.Acquire(context.Background(), "T1")
	assert.True(t, ok, "redis outage must not block confirmations")
	release()
}

func TestCheckoutLimiter(t *testing.T) {
	_, client := setupTestRedis(t)
	limiter := NewCheckoutLimiter(client, 2, time.Hour, nil)
	ctx := context.Background()
	user := uuid.New()

	tests := []struct {
		name        string
		wantAllowed bool
		wantCount   int
	}{
		{"first attempt allowed", true, 1},
		{"at limit allowed", true, 2},
		{"over limit blocked", false, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := limiter.Check(ctx, user)
			assert.Equal(t, tt.wantAllowed, result.Allowed)
			assert.Equal(t, tt.wantCount, result.CurrentCount)
			assert.Equal(t, 2, result.MaxAllowed)
		})
	}

	other := limiter.Check(ctx, uuid.New())
	assert.True(t, other.Allowed)
}

func TestCheckoutLimiterWindowExpires(t *testing.T) {
	mr, client := setupTestRedis(t)
	limiter := NewCheckoutLimiter(client, 1, time.Minute, nil)
	ctx := context.Background()
	user := uuid.New()

	assert.True(t, limiter.Check(ctx, user).Allowed)
	assert.False(t, limiter.Check(ctx, user).Allowed)

	mr.FastForward(2 * time.Minute)
	assert.True(t, limiter.Check(ctx, user).Allowed)
}

func TestCheckoutLimiterFailsOpen(t *testing.T) {
	mr, client := setupTestRedis(t)
	limiter := NewCheckoutLimiter(client, 1, time.Minute, nil)
	mr.Close()

	assert.True(t, limiter.Check(context.Background(), uuid.New()).Allowed)

	var nilLimiter *CheckoutLimiter
	assert.True(t, nilLimiter.Check(context.Background(), uuid.New()).Allowed)
}
