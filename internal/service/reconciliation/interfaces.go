package reconciliation

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/davidleathers/coaching-backoffice/internal/domain/crm"
	"github.com/davidleathers/coaching-backoffice/internal/domain/payment"
)

// SettlementFetcher reads the actual processing fee from the provider. It
// returns nil with no error when the settlement record does not exist yet.
type SettlementFetcher interface {
	SettlementFee(ctx context.Context, paymentIntentID string) (*decimal.Decimal, error)
}

// ClientRepository is the client lookup surface the matcher needs.
type ClientRepository interface {
	FindByCustomerID(ctx context.Context, customerID string) (*crm.Client, error)
	FindByEmail(ctx context.Context, email string) (*crm.Client, error)
	// BackfillCustomerID sets the customer id only when the stored one is empty.
	BackfillCustomerID(ctx context.Context, clientID uuid.UUID, customerID string) error
}

// PaymentRepository persists payments keyed by provider payment id.
type PaymentRepository interface {
	UpsertPayment(ctx context.Context, rec *payment.Record) error
	GetPaymentByProviderID(ctx context.Context, providerPaymentID string) (*payment.Payment, error)
	GetPayment(ctx context.Context, id uuid.UUID) (*payment.Payment, error)
	// LinkPayment attaches a client, and optionally a schedule, to a payment.
	LinkPayment(ctx context.Context, id, clientID uuid.UUID, scheduleID *string) error
}

// MetricsCollector records reconciliation outcomes.
type MetricsCollector interface {
	RecordFeeSource(source string)
	RecordClientMatch(method string)
}
