// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/coaching-backoffice/internal/infrastructure/config"
	"github.com/davidleathers/coaching-backoffice/internal/infrastructure/database"
	"github.com/davidleathers/coaching-backoffice/internal/testutil/containers"
)

// TestDB is a migrated database running in its own container.
type TestDB struct {
	*database.DB
	URL string
}

// NewTestDB starts a PostgreSQL container, applies the schema migrations and
// connects a pool. It skips the test under -short or when no container
// runtime is available.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg, err := startContainer(ctx)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(pg)
	})

	logger := zaptest.NewLogger(t)
	require.NoError(t, database.MigrateUp(pg.ConnectionString, logger))

	db, err := database.Connect(ctx, config.DatabaseConfig{
		URL:          pg.ConnectionString,
		MaxOpenConns: 10,
		MaxIdleConns: 2,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	return &TestDB{DB: db, URL: pg.ConnectionString}
}

// startContainer converts the panic testcontainers raises when Docker is
// missing into an error.
func startContainer(ctx context.Context) (pg *containers.PostgresContainer, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return containers.NewPostgresContainer(ctx)
}

// Truncate empties every application table.
func (db *TestDB) Truncate(t *testing.T) {
	t.Helper()
	_, err := db.Exec(context.Background(), `
		TRUNCATE payroll_run_entries, payroll_runs, subscription_commission_configs,
			commission_adjustments, commission_ledger_entries, commission_profiles,
			payments, scheduled_charges, payment_schedules, onboarding_tasks,
			template_tasks, task_templates, client_notes, activity_logs, leads,
			client_coach_history, clients CASCADE`)
	require.NoError(t, err)
}
