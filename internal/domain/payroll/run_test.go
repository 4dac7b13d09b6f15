package payroll

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidleathers/coaching-backoffice/internal/domain/clock"
	"github.com/davidleathers/coaching-backoffice/internal/domain/commission"
)

func pendingEntry(amount string) *commission.LedgerEntry {
	return &commission.LedgerEntry{
		ID:               uuid.New(),
		UserID:           uuid.New(),
		CommissionAmount: decimal.RequireFromString(amount),
		Status:           commission.EntryStatusPending,
	}
}

func TestNewRun(t *testing.T) {
	run, err := NewRun([]*commission.LedgerEntry{pendingEntry("485.35"), pendingEntry("100")}, time.Now(), "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, run.Status)
	assert.True(t, decimal.RequireFromString("585.35").Equal(run.TotalPayout))
	assert.Len(t, run.EntryIDs, 2)

	_, err = NewRun(nil, time.Now(), "")
	assert.Error(t, err)

	paid := pendingEntry("10")
	paid.Status = commission.EntryStatusPaid
	_, err = NewRun([]*commission.LedgerEntry{paid}, time.Now(), "")
	assert.Error(t, err)
}

func TestRun_Lifecycle(t *testing.T) {
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	mockClock := &clock.MockClock{CurrentTime: start}
	clock.Set(mockClock)
	defer clock.Reset()

	run, err := NewRun([]*commission.LedgerEntry{pendingEntry("100")}, start, "")
	require.NoError(t, err)

	assert.Error(t, run.MarkPaid(), "draft cannot be paid")

	mockClock.Advance(90 * time.Minute)
	require.NoError(t, run.Approve("approver"))
	latency, ok := run.ApprovalLatency()
	require.True(t, ok)
	assert.Equal(t, 90*time.Minute, latency)

	require.NoError(t, run.MarkPaid())
	assert.Equal(t, StatusPaid, run.Status)

	assert.Error(t, run.Void(), "paid is terminal")
	assert.Error(t, run.Approve("x"))
}

func TestRun_Void(t *testing.T) {
	for _, st := range []Status{StatusDraft, StatusApproved} {
		r := &Run{Status: st}
		require.NoError(t, r.Void())
		assert.Equal(t, StatusVoid, r.Status)
		assert.NotNil(t, r.VoidedAt)
	}

	void := &Run{Status: StatusVoid}
	assert.Error(t, void.Void())
}
