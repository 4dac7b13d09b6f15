package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/davidleathers/coaching-backoffice/internal/infrastructure/config"
)

// PoolRecorder receives connection pool occupancy samples.
type PoolRecorder interface {
	UpdateDBPool(acquired, idle, total, max int32)
}

// DB is the PostgreSQL connection pool shared by all repositories.
type DB struct {
	*pgxpool.Pool
	logger *zap.Logger
}

// Connect opens and pings the pool.
func Connect(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	configurePool(poolCfg, cfg)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection pool initialized",
		zap.Int32("max_connections", poolCfg.MaxConns),
		zap.Int32("min_connections", poolCfg.MinConns))

	return &DB{Pool: pool, logger: logger}, nil
}

func configurePool(poolCfg *pgxpool.Config, cfg config.DatabaseConfig) {
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	} else {
		poolCfg.MaxConns = 25
	}
	if cfg.MaxIdleConns > 0 && int32(cfg.MaxIdleConns) <= poolCfg.MaxConns {
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
	} else {
		poolCfg.MinConns = 2
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	} else {
		poolCfg.MaxConnLifetime = 30 * time.Minute
	}
	poolCfg.MaxConnIdleTime = 10 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute
	poolCfg.ConnConfig.ConnectTimeout = 5 * time.Second

	poolCfg.ConnConfig.RuntimeParams["application_name"] = "coaching_backoffice"
	poolCfg.ConnConfig.RuntimeParams["timezone"] = "UTC"
	poolCfg.ConnConfig.RuntimeParams["lock_timeout"] = "10s"
	poolCfg.ConnConfig.RuntimeParams["statement_timeout"] = "30s"
	poolCfg.ConnConfig.RuntimeParams["idle_in_transaction_session_timeout"] = "60s"
}

// Transaction runs fn inside a read-committed transaction. fn's error rolls
// the transaction back.
func (db *DB) Transaction(ctx context.Context, fn func(pgx.Tx) error) error {
	return db.TransactionWithOptions(ctx, pgx.TxOptions{}, fn)
}

func (db *DB) TransactionWithOptions(ctx context.Context, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	return pgx.BeginTxFunc(ctx, db.Pool, opts, fn)
}

// Health pings the database.
func (db *DB) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return db.Ping(ctx)
}

// ReportPoolStats samples pool occupancy into r until ctx is done.
func (db *DB) ReportPoolStats(ctx context.Context, r PoolRecorder, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s := db.Stat()
		r.UpdateDBPool(s.AcquiredConns(), s.IdleConns(), s.TotalConns(), s.MaxConns())

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Close releases every connection.
func (db *DB) Close() {
	db.Pool.Close()
	db.logger.Info("database connection pool closed")
}
