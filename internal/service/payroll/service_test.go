package payroll

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/coaching-backoffice/internal/domain/commission"
	"github.com/davidleathers/coaching-backoffice/internal/domain/errors"
	"github.com/davidleathers/coaching-backoffice/internal/domain/payroll"
	"github.com/davidleathers/coaching-backoffice/internal/domain/schedule"
	"github.com/davidleathers/coaching-backoffice/internal/infrastructure/cache"
	"github.com/davidleathers/coaching-backoffice/internal/infrastructure/config"
	"github.com/davidleathers/coaching-backoffice/internal/service/jobs"
	"github.com/davidleathers/coaching-backoffice/internal/testutil/memstore"
)

type recordingMetrics struct {
	mu          sync.Mutex
	transitions []string
	latencies   int
}

func (m *recordingMetrics) RecordPayrollTransition(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, status)
}

func (m *recordingMetrics) RecordApprovalLatency(time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies++
}

type fixture struct {
	store   *memstore.Store
	tracker *jobs.Tracker
	metrics *recordingMetrics
	svc     Service
}

func newFixture(t *testing.T) *fixture {
	logger := zaptest.NewLogger(t)
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCache(&config.RedisConfig{URL: mr.Addr(), DialTimeout: time.Second}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	store := memstore.New()
	tracker := jobs.NewTracker(c, time.Hour, logger)
	metrics := &recordingMetrics{}
	return &fixture{
		store:   store,
		tracker: tracker,
		metrics: metrics,
		svc:     NewService(store, tracker, metrics, logger),
	}
}

func (f *fixture) entries(t *testing.T, amounts ...string) []*commission.LedgerEntry {
	t.Helper()
	var out []*commission.LedgerEntry
	for _, a := range amounts {
		e, err := commission.NewLedgerEntry(uuid.New(), uuid.New(), schedule.RoleCoach,
			decimal.RequireFromString("1000"), decimal.RequireFromString(a), commission.CalculationBasis{})
		require.NoError(t, err)
		out = append(out, e)
	}
	_, err := f.store.CreateLedgerEntries(context.Background(), out)
	require.NoError(t, err)
	return out
}

func TestCreateRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.entries(t, "485.35", "100.00", "14.65")

	run, job, err := f.svc.CreateRun(ctx, time.Now().Add(time.Minute), "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusDraft, run.Status)
	assert.Len(t, run.EntryIDs, 3)
	assert.Equal(t, "600.00", run.TotalPayout.StringFixed(2))

	require.NotNil(t, job)
	assert.Equal(t, jobs.StateCompleted, job.State)
	stored, err := f.tracker.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID.String(), stored.Result["run_id"])

	// batched entries are not picked up again
	_, job, err = f.svc.CreateRun(ctx, time.Now().Add(time.Minute), "ops@example.com")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeBusiness))
	require.NotNil(t, job)
	assert.Equal(t, jobs.StateError, job.State)
}

func TestRunLifecycle_ApproveAndPay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.entries(t, "250.00", "50.00")

	run, _, err := f.svc.CreateRun(ctx, time.Now().Add(time.Minute), "ops")
	require.NoError(t, err)

	_, err = f.svc.MarkPaid(ctx, run.ID)
	require.Error(t, err, "a draft cannot be paid")

	run, err = f.svc.Approve(ctx, run.ID, "finance")
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusApproved, run.Status)
	assert.Equal(t, "finance", run.ApprovedBy)
	assert.Equal(t, 1, f.metrics.latencies)

	run, err = f.svc.MarkPaid(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusPaid, run.Status)

	for _, e := range f.store.Entries() {
		assert.Equal(t, commission.EntryStatusPaid, e.Status)
		assert.NotNil(t, e.PaidAt)
	}

	_, err = f.svc.Void(ctx, run.ID)
	require.Error(t, err, "a paid run is terminal")
	assert.Equal(t, []string{"draft", "approved", "paid"}, f.metrics.transitions)
}

func TestRunLifecycle_VoidReleasesEntries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.entries(t, "300.00")

	run, _, err := f.svc.CreateRun(ctx, time.Now().Add(time.Minute), "ops")
	require.NoError(t, err)

	voided, err := f.svc.Void(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusVoid, voided.Status)
	assert.NotNil(t, voided.VoidedAt)

	again, _, err := f.svc.CreateRun(ctx, time.Now().Add(time.Minute), "ops")
	require.NoError(t, err)
	assert.Equal(t, run.EntryIDs, again.EntryIDs)
	assert.NotEqual(t, run.ID, again.ID)
}

func TestCreateRun_RespectsPeriodEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.entries(t, "120.00")

	_, _, err := f.svc.CreateRun(ctx, time.Now().Add(-24*time.Hour), "ops")
	require.Error(t, err)
}

func TestGet_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Get(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}
