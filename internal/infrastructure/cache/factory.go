package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/davidleathers/coaching-backoffice/internal/infrastructure/config"
)

// Manager owns the shared Redis client. The cache and the notification
// stream publisher both run on it.
type Manager struct {
	Cache  Cache
	client *redis.Client
	logger *zap.Logger
}

// NewManager dials Redis once and builds the cache on that client.
func NewManager(cfg *config.RedisConfig, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("cache manager initialized",
		zap.String("addr", cfg.URL),
		zap.Int("db", cfg.DB),
		zap.Int("pool_size", cfg.PoolSize))

	return &Manager{
		Cache:  NewCacheFromClient(client, logger),
		client: client,
		logger: logger,
	}, nil
}

// Client exposes the underlying client for stream publishing.
func (m *Manager) Client() *redis.Client {
	return m.client
}

func (m *Manager) Close() error {
	if err := m.client.Close(); err != nil {
		return fmt.Errorf("redis client close failed: %w", err)
	}
	m.logger.Info("cache manager closed")
	return nil
}

// HealthCheck pings Redis and round-trips a short-lived key.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	if err := m.Cache.Set(ctx, HealthKey, time.Now().Unix(), 10*time.Second); err != nil {
		return fmt.Errorf("cache set health check failed: %w", err)
	}
	if _, err := m.Cache.Get(ctx, HealthKey); err != nil {
		return fmt.Errorf("cache get health check failed: %w", err)
	}
	return nil
}
