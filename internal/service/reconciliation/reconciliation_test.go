package reconciliation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/coaching-backoffice/internal/domain/crm"
	"github.com/davidleathers/coaching-backoffice/internal/domain/errors"
	"github.com/davidleathers/coaching-backoffice/internal/domain/payment"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestFeeResolver_Resolve(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		amount     string
		setup      func(*MockSettlementFetcher)
		wantFee    string
		wantNet    string
		wantSource payment.FeeSource
	}{
		{
			name:   "settlement fee used when available",
			amount: "1000",
			setup: func(f *MockSettlementFetcher) {
				fee := dec("29.30")
				f.On("SettlementFee", mock.Anything, "pi_1").Return(&fee, nil)
			},
			wantFee:    "29.30",
			wantNet:    "970.70",
			wantSource: payment.FeeSourceSettlement,
		},
		{
			name:   "provider error falls back to estimate",
			amount: "1000",
			setup: func(f *MockSettlementFetcher) {
				f.On("SettlementFee", mock.Anything, "pi_1").Return(nil, fmt.Errorf("provider timeout"))
			},
			wantFee:    "29.30",
			wantNet:    "970.70",
			wantSource: payment.FeeSourceEstimate,
		},
		{
			name:   "missing settlement falls back to estimate",
			amount: "250",
			setup: func(f *MockSettlementFetcher) {
				f.On("SettlementFee", mock.Anything, "pi_1").Return(nil, nil)
			},
			wantFee:    "7.55",
			wantNet:    "242.45",
			wantSource: payment.FeeSourceEstimate,
		},
		{
			name:   "real fee differing from estimate wins",
			amount: "1000",
			setup: func(f *MockSettlementFetcher) {
				fee := dec("22.10")
				f.On("SettlementFee", mock.Anything, "pi_1").Return(&fee, nil)
			},
			wantFee:    "22.10",
			wantNet:    "977.90",
			wantSource: payment.FeeSourceSettlement,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := new(MockSettlementFetcher)
			metrics := new(MockMetricsCollector)
			tt.setup(fetcher)
			metrics.On("RecordFeeSource", string(tt.wantSource)).Return()

			r := NewFeeResolver(fetcher, metrics, zaptest.NewLogger(t), time.Second)
			b := r.Resolve(ctx, dec(tt.amount), "pi_1")

			require.NotNil(t, b.Fee)
			require.NotNil(t, b.Net)
			assert.True(t, dec(tt.wantFee).Equal(*b.Fee), "fee %s", b.Fee)
			assert.True(t, dec(tt.wantNet).Equal(*b.Net), "net %s", b.Net)
			assert.Equal(t, tt.wantSource, b.Source)
			fetcher.AssertExpectations(t)
			metrics.AssertExpectations(t)
		})
	}
}

func TestFeeResolver_ZeroAmountLeavesNetUnknown(t *testing.T) {
	r := NewFeeResolver(nil, nil, zaptest.NewLogger(t), 0)
	b := r.Resolve(context.Background(), decimal.Zero, "pi_1")
	assert.Nil(t, b.Fee)
	assert.Nil(t, b.Net)
	assert.Equal(t, payment.FeeSourceUnknown, b.Source)
}

func TestFeeResolver_NoFetcherEstimates(t *testing.T) {
	r := NewFeeResolver(nil, nil, zaptest.NewLogger(t), 0)
	b := r.Resolve(context.Background(), dec("100"), "")
	require.NotNil(t, b.Fee)
	assert.True(t, dec("3.20").Equal(*b.Fee))
}

func TestMatcher_Match(t *testing.T) {
	ctx := context.Background()
	notFound := errors.NewNotFoundError("client")

	t.Run("customer id wins over email", func(t *testing.T) {
		repo := new(MockClientRepository)
		byCustomer := &crm.Client{ID: uuid.New(), CustomerID: "cus_1"}
		repo.On("FindByCustomerID", ctx, "cus_1").Return(byCustomer, nil)

		m := NewMatcher(repo, nil, zaptest.NewLogger(t))
		match, err := m.Match(ctx, "cus_1", "someone.else@example.com")
		require.NoError(t, err)
		assert.Equal(t, byCustomer, match.Client)
		assert.Equal(t, MatchCustomerID, match.Method)
		repo.AssertNotCalled(t, "FindByEmail", mock.Anything, mock.Anything)
	})

	t.Run("email match backfills customer id", func(t *testing.T) {
		repo := new(MockClientRepository)
		client := &crm.Client{ID: uuid.New(), Email: "jane@example.com"}
		repo.On("FindByCustomerID", ctx, "cus_2").Return(nil, notFound)
		repo.On("FindByEmail", ctx, "jane@example.com").Return(client, nil)
		repo.On("BackfillCustomerID", ctx, client.ID, "cus_2").Return(nil)

		m := NewMatcher(repo, nil, zaptest.NewLogger(t))
		match, err := m.Match(ctx, "cus_2", "Jane@Example.COM")
		require.NoError(t, err)
		assert.True(t, match.Found())
		assert.Equal(t, MatchEmail, match.Method)
		assert.Equal(t, "cus_2", match.Client.CustomerID)
		repo.AssertExpectations(t)
	})

	t.Run("email match keeps existing customer id", func(t *testing.T) {
		repo := new(MockClientRepository)
		client := &crm.Client{ID: uuid.New(), Email: "jane@example.com", CustomerID: "cus_old"}
		repo.On("FindByCustomerID", ctx, "cus_new").Return(nil, notFound)
		repo.On("FindByEmail", ctx, "jane@example.com").Return(client, nil)

		m := NewMatcher(repo, nil, zaptest.NewLogger(t))
		match, err := m.Match(ctx, "cus_new", "jane@example.com")
		require.NoError(t, err)
		assert.Equal(t, "cus_old", match.Client.CustomerID)
		repo.AssertNotCalled(t, "BackfillCustomerID", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("no match is a value", func(t *testing.T) {
		repo := new(MockClientRepository)
		metrics := new(MockMetricsCollector)
		repo.On("FindByCustomerID", ctx, "cus_3").Return(nil, notFound)
		repo.On("FindByEmail", ctx, "nobody@example.com").Return(nil, notFound)
		metrics.On("RecordClientMatch", "none").Return()

		m := NewMatcher(repo, metrics, zaptest.NewLogger(t))
		match, err := m.Match(ctx, "cus_3", "nobody@example.com")
		require.NoError(t, err)
		assert.False(t, match.Found())
		assert.Equal(t, MatchNone, match.Method)
		metrics.AssertExpectations(t)
	})

	t.Run("empty identifiers skip lookups", func(t *testing.T) {
		repo := new(MockClientRepository)
		m := NewMatcher(repo, nil, zaptest.NewLogger(t))
		match, err := m.Match(ctx, "", "  ")
		require.NoError(t, err)
		assert.False(t, match.Found())
		repo.AssertNotCalled(t, "FindByCustomerID", mock.Anything, mock.Anything)
	})

	t.Run("repository failure surfaces as persistence error", func(t *testing.T) {
		repo := new(MockClientRepository)
		repo.On("FindByCustomerID", ctx, "cus_4").Return(nil, fmt.Errorf("connection reset"))

		m := NewMatcher(repo, nil, zaptest.NewLogger(t))
		_, err := m.Match(ctx, "cus_4", "")
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypePersistence))
		assert.Equal(t, 500, errors.GetStatusCode(err))
	})
}

func TestLedger_Record(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the re-read row", func(t *testing.T) {
		repo := new(MockPaymentRepository)
		rec := &payment.Record{
			ProviderPaymentID: "pi_1",
			Amount:            dec("1000"),
			Status:            payment.StatusSucceeded,
			PaymentDate:       time.Now(),
		}
		clientID := uuid.New()
		stored := &payment.Payment{ID: uuid.New(), ProviderPaymentID: "pi_1", Amount: dec("1000"),
			Status: payment.StatusSucceeded, ClientID: &clientID, CommissionCalculated: true}
		repo.On("UpsertPayment", ctx, rec).Return(nil)
		repo.On("GetPaymentByProviderID", ctx, "pi_1").Return(stored, nil)

		l := NewLedger(repo, zaptest.NewLogger(t))
		got, err := l.Record(ctx, rec)
		require.NoError(t, err)
		assert.Same(t, stored, got)
		assert.True(t, got.CommissionCalculated)
	})

	t.Run("invalid record rejected before write", func(t *testing.T) {
		repo := new(MockPaymentRepository)
		l := NewLedger(repo, zaptest.NewLogger(t))
		_, err := l.Record(ctx, &payment.Record{Amount: dec("1")})
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
		repo.AssertNotCalled(t, "UpsertPayment", mock.Anything, mock.Anything)
	})

	t.Run("write failure is a persistence error", func(t *testing.T) {
		repo := new(MockPaymentRepository)
		rec := &payment.Record{ProviderPaymentID: "pi_2", Amount: dec("5"), Status: payment.StatusSucceeded, PaymentDate: time.Now()}
		repo.On("UpsertPayment", ctx, rec).Return(fmt.Errorf("deadlock"))

		l := NewLedger(repo, zaptest.NewLogger(t))
		_, err := l.Record(ctx, rec)
		assert.True(t, errors.IsType(err, errors.ErrorTypePersistence))
	})
}

func TestLedger_Link(t *testing.T) {
	ctx := context.Background()
	paymentID, clientID := uuid.New(), uuid.New()

	t.Run("links an unmatched payment", func(t *testing.T) {
		repo := new(MockPaymentRepository)
		sid := "sched-1"
		repo.On("GetPayment", ctx, paymentID).Return(&payment.Payment{ID: paymentID, ProviderPaymentID: "pi_9"}, nil)
		repo.On("LinkPayment", ctx, paymentID, clientID, &sid).Return(nil)

		got, err := NewLedger(repo, zaptest.NewLogger(t)).Link(ctx, paymentID, clientID, &sid)
		require.NoError(t, err)
		assert.Equal(t, clientID, *got.ClientID)
		assert.Equal(t, "sched-1", *got.ScheduleID)
	})

	t.Run("different client is a conflict", func(t *testing.T) {
		repo := new(MockPaymentRepository)
		other := uuid.New()
		repo.On("GetPayment", ctx, paymentID).Return(&payment.Payment{ID: paymentID, ClientID: &other}, nil)

		_, err := NewLedger(repo, zaptest.NewLogger(t)).Link(ctx, paymentID, clientID, nil)
		assert.True(t, errors.IsType(err, errors.ErrorTypeConflict))
		repo.AssertNotCalled(t, "LinkPayment", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown payment", func(t *testing.T) {
		repo := new(MockPaymentRepository)
		repo.On("GetPayment", ctx, paymentID).Return(nil, errors.NewNotFoundError("payment"))

		_, err := NewLedger(repo, zaptest.NewLogger(t)).Link(ctx, paymentID, clientID, nil)
		assert.True(t, errors.IsNotFound(err))
	})
}
