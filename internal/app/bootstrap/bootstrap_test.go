package bootstrap

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/spa-booking-engine/internal/booking/memstore"
	appconfig "github.com/wolfman30/spa-booking-engine/internal/config"
	"github.com/wolfman30/spa-booking-engine/pkg/logging"
)

func testConfig() *appconfig.Config {
	return &appconfig.Config{
		DefaultSessionTime:  "10:00",
		AdminJWTSecret:      "secret",
		CheckoutMaxAttempts: 5,
		PublicRateLimitRPS:  10,
		PublicRateBurst:     20,
	}
}

func TestBuildRedisClientDisabledWithoutAddr(t *testing.T) {
	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{}, nil, true))
	assert.Nil(t, BuildRedisClient(context.Background(), nil, nil, true))
}

func TestBuildRedisClientVerifies(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	cfg := &appconfig.Config{RedisAddr: mr.Addr()}

	client := BuildRedisClient(context.Background(), cfg, logging.Discard(), true)
	require.NotNil(t, client)
	require.NoError(t, client.Close())

	mr.Close()
	assert.Nil(t, BuildRedisClient(context.Background(), cfg, logging.Discard(), true))
	unverified := BuildRedisClient(context.Background(), cfg, logging.Discard(), false)
	require.NotNil(t, unverified, "unverified clients are returned as-is")
	_ = unverified.Close()
}

func TestBuildStorageFallsBackToMemory(t *testing.T) {
	storage, err := BuildStorage(context.Background(), &appconfig.Config{}, logging.Discard())
	require.NoError(t, err)
	defer storage.Close()

	assert.Nil(t, storage.Pool)
	assert.IsType(t, &memstore.Store{}, storage.Store)
	assert.NotNil(t, storage.Outbox)
	assert.NotNil(t, storage.Source)
	assert.NotNil(t, storage.Processed)
	assert.NoError(t, storage.Ping(context.Background()))

	_, err = BuildStorage(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestBuildAPIWiresHandlers(t *testing.T) {
	api, err := BuildAPI(APIDeps{
		Config:  testConfig(),
		Storage: MemoryStorage(memstore.New()),
		Logger:  logging.Discard(),
	})
	require.NoError(t, err)

	rc := api.Router
	assert.NotNil(t, rc.Appointments)
	assert.NotNil(t, rc.Courses)
	assert.NotNil(t, rc.Payments)
	assert.NotNil(t, rc.Assignment)
	assert.Nil(t, rc.Dashboard, "dashboard needs a SQL handle")
	assert.NotNil(t, rc.PublicLimiter)
	assert.Same(t, api.Limiter, rc.PublicLimiter)
	assert.Equal(t, "secret", rc.AdminAuthSecret)
	require.NotNil(t, rc.HealthCheck)
	assert.NoError(t, rc.HealthCheck(context.Background()))
}

func TestBuildAPIHealthReportsRedisOutage(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, nil, false)
	defer client.Close()

	api, err := BuildAPI(APIDeps{
		Config:  testConfig(),
		Storage: MemoryStorage(memstore.New()),
		Redis:   client,
		Logger:  logging.Discard(),
	})
	require.NoError(t, err)
	require.NoError(t, api.Router.HealthCheck(context.Background()))

	mr.Close()
	err = api.Router.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
}

func TestBuildAPIValidatesInputs(t *testing.T) {
	_, err := BuildAPI(APIDeps{Storage: MemoryStorage(memstore.New())})
	assert.Error(t, err)

	_, err = BuildAPI(APIDeps{Config: testConfig()})
	assert.Error(t, err)

	cfg := testConfig()
	cfg.LoyaltyTiers = "Gold:100"
	_, err = BuildAPI(APIDeps{Config: cfg, Storage: MemoryStorage(memstore.New()), Logger: logging.Discard()})
	assert.ErrorContains(t, err, "must start at 0")
}

func TestBuildAPIWithoutPublicLimit(t *testing.T) {
	cfg := testConfig()
	cfg.PublicRateLimitRPS = 0
	api, err := BuildAPI(APIDeps{Config: cfg, Storage: MemoryStorage(memstore.New()), Logger: logging.Discard()})
	require.NoError(t, err)
	assert.Nil(t, api.Limiter)
	assert.Nil(t, api.Router.PublicLimiter)
}

func TestBuildDispatcherWithoutTransports(t *testing.T) {
	d := BuildDispatcher(&appconfig.Config{}, nil, nil, logging.Discard())
	require.NotNil(t, d)
}
