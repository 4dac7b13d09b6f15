package disputes

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/coaching-backoffice/internal/domain/commission"
	"github.com/davidleathers/coaching-backoffice/internal/domain/errors"
	"github.com/davidleathers/coaching-backoffice/internal/domain/payment"
	"github.com/davidleathers/coaching-backoffice/internal/domain/schedule"
	"github.com/davidleathers/coaching-backoffice/internal/testutil/memstore"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	store   *memstore.Store
	handler *Handler
	payment *payment.Payment
	coach   *commission.LedgerEntry
	closer  *commission.LedgerEntry
}

// newFixture records a 1000 payment with a 485.35 coach entry and a 100
// closer entry.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()

	fee, net := dec("29.30"), dec("970.70")
	clientID := uuid.New()
	require.NoError(t, store.UpsertPayment(ctx, &payment.Record{
		ProviderPaymentID: "pi_refund",
		Amount:            dec("1000"),
		Fee:               &fee,
		NetAmount:         &net,
		Currency:          "usd",
		Status:            payment.StatusSucceeded,
		ClientID:          &clientID,
		PaymentDate:       time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}))
	p, err := store.GetPaymentByProviderID(ctx, "pi_refund")
	require.NoError(t, err)

	coach, err := commission.NewLedgerEntry(uuid.New(), p.ID, schedule.RoleCoach, p.Amount, dec("485.35"), commission.CalculationBasis{Rule: commission.RuleCompanyDriven})
	require.NoError(t, err)
	closer, err := commission.NewLedgerEntry(uuid.New(), p.ID, schedule.RoleCloser, p.Amount, dec("100.00"), commission.CalculationBasis{Rule: commission.RuleCloserGross})
	require.NoError(t, err)
	_, err = store.CreateLedgerEntries(ctx, []*commission.LedgerEntry{coach, closer})
	require.NoError(t, err)

	return &fixture{
		store:   store,
		handler: NewHandler(store, store, zaptest.NewLogger(t)),
		payment: p,
		coach:   coach,
		closer:  closer,
	}
}

func (f *fixture) reversedFor(entry *commission.LedgerEntry) decimal.Decimal {
	total := decimal.Zero
	for _, a := range f.store.Adjustments() {
		if a.LedgerEntryID != nil && *a.LedgerEntryID == entry.ID {
			total = total.Sub(a.Amount)
		}
	}
	return total
}

func TestHandleRefund_Proportional(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p, adjustments, err := f.handler.HandleRefund(ctx, Refund{ProviderPaymentID: "pi_refund", AmountRefunded: dec("250")})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPartiallyRefunded, p.Status)
	assert.Len(t, adjustments, 2)
	assert.Equal(t, "121.34", f.reversedFor(f.coach).StringFixed(2))
	assert.Equal(t, "25.00", f.reversedFor(f.closer).StringFixed(2))

	stored, err := f.store.GetPaymentByProviderID(ctx, "pi_refund")
	require.NoError(t, err)
	assert.Equal(t, "250.00", stored.RefundedAmount.StringFixed(2))
	assert.Equal(t, payment.StatusPartiallyRefunded, stored.Status)
}

func TestHandleRefund_RedeliveryAddsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	refund := Refund{ProviderPaymentID: "pi_refund", AmountRefunded: dec("250")}

	_, _, err := f.handler.HandleRefund(ctx, refund)
	require.NoError(t, err)
	_, adjustments, err := f.handler.HandleRefund(ctx, refund)
	require.NoError(t, err)

	assert.Empty(t, adjustments)
	assert.Len(t, f.store.Adjustments(), 2)
}

func TestHandleRefund_Cumulative(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, _, err := f.handler.HandleRefund(ctx, Refund{ProviderPaymentID: "pi_refund", AmountRefunded: dec("250")})
	require.NoError(t, err)
	p, _, err := f.handler.HandleRefund(ctx, Refund{ProviderPaymentID: "pi_refund", AmountRefunded: dec("1000")})
	require.NoError(t, err)

	assert.Equal(t, payment.StatusRefunded, p.Status)
	assert.Equal(t, "485.35", f.reversedFor(f.coach).StringFixed(2))
	assert.Equal(t, "100.00", f.reversedFor(f.closer).StringFixed(2))

	// a stale partial refund arriving late never shrinks the refund
	p, adjustments, err := f.handler.HandleRefund(ctx, Refund{ProviderPaymentID: "pi_refund", AmountRefunded: dec("250")})
	require.NoError(t, err)
	assert.Empty(t, adjustments)
	assert.Equal(t, payment.StatusRefunded, p.Status)
	assert.Equal(t, "1000.00", p.RefundedAmount.StringFixed(2))
}

func TestHandleBeforePaymentRecorded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, _, err := f.handler.HandleRefund(ctx, Refund{ProviderPaymentID: "pi_later", AmountRefunded: dec("10")})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeOutOfOrder))
	assert.True(t, errors.IsRetryable(err))
	assert.Equal(t, 500, errors.GetStatusCode(err))

	_, err = f.handler.HandleDisputeCreated(ctx, "pi_later", "dp_1")
	assert.True(t, errors.IsType(err, errors.ErrorTypeOutOfOrder))
	_, _, err = f.handler.HandleDisputeClosed(ctx, "pi_later", "dp_1", DisputeLost)
	assert.True(t, errors.IsType(err, errors.ErrorTypeOutOfOrder))

	// the redelivered refund applies once the payment exists
	require.NoError(t, f.store.UpsertPayment(ctx, &payment.Record{
		ProviderPaymentID: "pi_later",
		Amount:            dec("100"),
		Currency:          "usd",
		Status:            payment.StatusSucceeded,
		PaymentDate:       time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC),
	}))
	p, _, err := f.handler.HandleRefund(ctx, Refund{ProviderPaymentID: "pi_later", AmountRefunded: dec("10")})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPartiallyRefunded, p.Status)
	assert.Equal(t, "10.00", p.RefundedAmount.StringFixed(2))
}

func TestHandleRefund_NoPaymentReference(t *testing.T) {
	f := newFixture(t)
	p, adjustments, err := f.handler.HandleRefund(context.Background(), Refund{AmountRefunded: dec("10")})
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Nil(t, adjustments)
}

func TestDisputeLifecycle(t *testing.T) {
	tests := []struct {
		name        string
		outcome     DisputeOutcome
		wantStatus  payment.Status
		wantCoach   string
		adjustments int
	}{
		{name: "won restores payment", outcome: DisputeWon, wantStatus: payment.StatusSucceeded, wantCoach: "0.00"},
		{name: "lost reverses everything", outcome: DisputeLost, wantStatus: payment.StatusRefunded, wantCoach: "485.35", adjustments: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)

			p, err := f.handler.HandleDisputeCreated(ctx, "pi_refund", "dp_1")
			require.NoError(t, err)
			assert.Equal(t, payment.StatusDisputed, p.Status)

			p, adjustments, err := f.handler.HandleDisputeClosed(ctx, "pi_refund", "dp_1", tt.outcome)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, p.Status)
			assert.Len(t, adjustments, tt.adjustments)
			assert.Equal(t, tt.wantCoach, f.reversedFor(f.coach).StringFixed(2))

			// closing twice is harmless
			_, adjustments, err = f.handler.HandleDisputeClosed(ctx, "pi_refund", "dp_1", tt.outcome)
			require.NoError(t, err)
			assert.Empty(t, adjustments)
		})
	}
}

func TestDisputeLost_AfterPartialRefund(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, _, err := f.handler.HandleRefund(ctx, Refund{ProviderPaymentID: "pi_refund", AmountRefunded: dec("250")})
	require.NoError(t, err)
	_, adjustments, err := f.handler.HandleDisputeClosed(ctx, "pi_refund", "dp_2", DisputeLost)
	require.NoError(t, err)

	assert.Len(t, adjustments, 2)
	assert.Equal(t, "485.35", f.reversedFor(f.coach).StringFixed(2))
	assert.Equal(t, "100.00", f.reversedFor(f.closer).StringFixed(2))
}

func TestDisputeCreated_IgnoresRefundedPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, _, err := f.handler.HandleRefund(ctx, Refund{ProviderPaymentID: "pi_refund", AmountRefunded: dec("1000")})
	require.NoError(t, err)
	p, err := f.handler.HandleDisputeCreated(ctx, "pi_refund", "dp_3")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusRefunded, p.Status)
}
