package reconciliation

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/davidleathers/coaching-backoffice/internal/domain/crm"
	"github.com/davidleathers/coaching-backoffice/internal/domain/payment"
)

type MockSettlementFetcher struct {
	mock.Mock
}

func (m *MockSettlementFetcher) SettlementFee(ctx context.Context, paymentIntentID string) (*decimal.Decimal, error) {
	args := m.Called(ctx, paymentIntentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*decimal.Decimal), args.Error(1)
}

type MockClientRepository struct {
	mock.Mock
}

func (m *MockClientRepository) FindByCustomerID(ctx context.Context, customerID string) (*crm.Client, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*crm.Client), args.Error(1)
}

func (m *MockClientRepository) FindByEmail(ctx context.Context, email string) (*crm.Client, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*crm.Client), args.Error(1)
}

func (m *MockClientRepository) BackfillCustomerID(ctx context.Context, clientID uuid.UUID, customerID string) error {
	args := m.Called(ctx, clientID, customerID)
	return args.Error(0)
}

type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) UpsertPayment(ctx context.Context, rec *payment.Record) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockPaymentRepository) GetPaymentByProviderID(ctx context.Context, providerPaymentID string) (*payment.Payment, error) {
	args := m.Called(ctx, providerPaymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Payment), args.Error(1)
}

func (m *MockPaymentRepository) GetPayment(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Payment), args.Error(1)
}

func (m *MockPaymentRepository) LinkPayment(ctx context.Context, id, clientID uuid.UUID, scheduleID *string) error {
	args := m.Called(ctx, id, clientID, scheduleID)
	return args.Error(0)
}

type MockMetricsCollector struct {
	mock.Mock
}

func (m *MockMetricsCollector) RecordFeeSource(source string) {
	m.Called(source)
}

func (m *MockMetricsCollector) RecordClientMatch(method string) {
	m.Called(method)
}
