package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/coaching-backoffice/internal/infrastructure/config"
)

func testRedisConfig(addr string) *config.RedisConfig {
	return &config.RedisConfig{
		URL:          addr,
		PoolSize:     5,
		MinIdleConns: 1,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

func setupTestRedis(t *testing.T) (*redisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	c, err := NewRedisCache(testRedisConfig(mr.Addr()), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	return c.(*redisCache), mr
}

func TestNewRedisCache(t *testing.T) {
	t.Run("successful creation", func(t *testing.T) {
		c, _ := setupTestRedis(t)
		assert.NotNil(t, c.client)
		assert.True(t, c.owned)
	})

	t.Run("nil logger", func(t *testing.T) {
		_, err := NewRedisCache(testRedisConfig("localhost:6379"), nil)
		assert.ErrorContains(t, err, "logger is required")
	})

	t.Run("nil config", func(t *testing.T) {
		_, err := NewRedisCache(nil, zaptest.NewLogger(t))
		assert.ErrorContains(t, err, "redis config is required")
	})

	t.Run("connection failure", func(t *testing.T) {
		cfg := &config.RedisConfig{URL: "localhost:1", DialTimeout: 100 * time.Millisecond}
		_, err := NewRedisCache(cfg, zaptest.NewLogger(t))
		assert.ErrorContains(t, err, "redis connection failed")
	})
}

func TestRedisCache_EventClaim(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()
	key := EventPrefix + "evt_123"

	ok, err := c.SetNX(ctx, key, "processing", EventClaimTTL)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.SetNX(ctx, key, "processing", EventClaimTTL)
	require.NoError(t, err)
	assert.False(t, ok, "second claim must lose")

	require.NoError(t, c.Set(ctx, key, "processed", EventMarkerTTL))
	v, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "processed", v)

	mr.FastForward(EventMarkerTTL + time.Second)
	_, err = c.Get(ctx, key)
	var notFound ErrCacheKeyNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestRedisCache_DeleteReleasesClaim(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx := context.Background()
	key := EventPrefix + "evt_456"

	ok, err := c.SetNX(ctx, key, "processing", EventClaimTTL)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.Delete(ctx, key))

	ok, err = c.SetNX(ctx, key, "processing", EventClaimTTL)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisCache_GetMissing(t *testing.T) {
	c, _ := setupTestRedis(t)

	_, err := c.Get(context.Background(), "missing")
	var notFound ErrCacheKeyNotFound
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.Key)
}

func TestRedisCache_JSON(t *testing.T) {
	c, _ := setupTestRedis(t)
	ctx := context.Background()

	type record struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}

	t.Run("round trip", func(t *testing.T) {
		in := record{ID: "job-1", Status: "running"}
		require.NoError(t, c.SetJSON(ctx, JobPrefix+"job-1", in, JobTTL))

		var out record
		require.NoError(t, c.GetJSON(ctx, JobPrefix+"job-1", &out))
		assert.Equal(t, in, out)
	})

	t.Run("invalid stored JSON", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "test:bad", "not json", time.Hour))

		var out record
		err := c.GetJSON(ctx, "test:bad", &out)
		assert.ErrorContains(t, err, "json unmarshal failed")
	})
}

func TestManager_SharedClient(t *testing.T) {
	mr := miniredis.RunT(t)

	m, err := NewManager(testRedisConfig(mr.Addr()), zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, m.HealthCheck(ctx))

	// Closing the shared cache leaves the client usable.
	require.NoError(t, m.Cache.Close())
	require.NoError(t, m.Client().Ping(ctx).Err())

	require.NoError(t, m.Close())
}
