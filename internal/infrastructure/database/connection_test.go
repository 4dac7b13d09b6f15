package database_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davidleathers/coaching-backoffice/internal/infrastructure/config"
	"github.com/davidleathers/coaching-backoffice/internal/testutil"
)

func configWithURL(url string) config.DatabaseConfig {
	return config.DatabaseConfig{URL: url}
}

func nopLogger() *zap.Logger {
	return zap.NewNop()
}

type poolSamples struct {
	mu  sync.Mutex
	max []int32
}

func (p *poolSamples) UpdateDBPool(_, _, _, max int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.max = append(p.max, max)
}

func (p *poolSamples) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.max)
}

func TestDB_Transaction(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	t.Run("commit", func(t *testing.T) {
		err := db.Transaction(ctx, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, `INSERT INTO commission_profiles (user_id) VALUES (gen_random_uuid())`)
			return err
		})
		require.NoError(t, err)

		var n int
		require.NoError(t, db.QueryRow(ctx, `SELECT COUNT(*) FROM commission_profiles`).Scan(&n))
		assert.Equal(t, 1, n)
	})

	t.Run("rollback on error", func(t *testing.T) {
		db.Truncate(t)
		err := db.Transaction(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, `INSERT INTO commission_profiles (user_id) VALUES (gen_random_uuid())`); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO commission_profiles (user_id, company_driven_rate) VALUES (gen_random_uuid(), 2)`)
			return err
		})
		require.Error(t, err)

		var n int
		require.NoError(t, db.QueryRow(ctx, `SELECT COUNT(*) FROM commission_profiles`).Scan(&n))
		assert.Equal(t, 0, n)
	})
}

func TestDB_HealthAndPoolStats(t *testing.T) {
	db := testutil.NewTestDB(t)
	require.NoError(t, db.Health(context.Background()))

	samples := &poolSamples{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		db.ReportPoolStats(ctx, samples, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return samples.count() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	samples.mu.Lock()
	defer samples.mu.Unlock()
	assert.Equal(t, int32(10), samples.max[0])
}
