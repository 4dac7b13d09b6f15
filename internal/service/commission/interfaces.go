package commission

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/davidleathers/coaching-backoffice/internal/domain/commission"
	"github.com/davidleathers/coaching-backoffice/internal/domain/crm"
	"github.com/davidleathers/coaching-backoffice/internal/domain/payment"
	"github.com/davidleathers/coaching-backoffice/internal/domain/schedule"
)

// Service computes commissions for recorded payments.
type Service interface {
	// Calculate writes the ledger entries for a payment once
	Calculate(ctx context.Context, paymentID uuid.UUID) (*Result, error)
	// HandleSubscriptionInvoice records a paid subscription invoice and commissions it
	HandleSubscriptionInvoice(ctx context.Context, inv *SubscriptionInvoice) (*Result, error)
	// SetSubscriptionActive toggles a subscription's commission config
	SetSubscriptionActive(ctx context.Context, subscriptionID string, active bool) error
	// Statement nets a user's entries and adjustments
	Statement(ctx context.Context, userID uuid.UUID) (*commission.Statement, error)
}

// PaymentRepository is the payment surface the engine reads and flags.
type PaymentRepository interface {
	GetPayment(ctx context.Context, id uuid.UUID) (*payment.Payment, error)
	GetPaymentByProviderID(ctx context.Context, providerPaymentID string) (*payment.Payment, error)
	MarkCommissionCalculated(ctx context.Context, id uuid.UUID) error
}

// ClientReader loads the client a payment belongs to.
type ClientReader interface {
	GetClient(ctx context.Context, id uuid.UUID) (*crm.Client, error)
}

// ScheduleRepository loads and stores schedules, including synthetic ones.
type ScheduleRepository interface {
	GetSchedule(ctx context.Context, id string) (*schedule.PaymentSchedule, error)
	SaveSchedule(ctx context.Context, s *schedule.PaymentSchedule) error
}

// Repository persists ledger entries, adjustments and configs.
type Repository interface {
	// CreateLedgerEntries ignores entries that already exist for the same
	// (payment, user, role) and returns how many were inserted.
	CreateLedgerEntries(ctx context.Context, entries []*commission.LedgerEntry) (int, error)
	CreditedReferrers(ctx context.Context, scheduleID string) (map[uuid.UUID]bool, error)
	GetProfiles(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]*commission.Profile, error)
	ListEntriesByUser(ctx context.Context, userID uuid.UUID) ([]*commission.LedgerEntry, error)
	ListAdjustmentsByUser(ctx context.Context, userID uuid.UUID) ([]*commission.Adjustment, error)
	GetSubscriptionConfig(ctx context.Context, subscriptionID string) (*commission.SubscriptionConfig, error)
	SetSubscriptionConfigActive(ctx context.Context, subscriptionID string, active bool) error
}

// PaymentRecorder upserts and re-reads a payment.
type PaymentRecorder interface {
	Record(ctx context.Context, rec *payment.Record) (*payment.Payment, error)
}

// FeeResolver computes fee and net for an amount.
type FeeResolver interface {
	Resolve(ctx context.Context, amount decimal.Decimal, paymentIntentID string) payment.Breakdown
}

// MetricsCollector records engine output.
type MetricsCollector interface {
	RecordCommissionEntry(role string, amount float64)
	RecordCommissionSkipped(reason string)
}

// SubscriptionInvoice is a paid invoice on a recurring subscription.
type SubscriptionInvoice struct {
	InvoiceID       string
	SubscriptionID  string
	PaymentIntentID string
	CustomerID      string
	CustomerEmail   string
	Amount          decimal.Decimal
	Currency        string
	ProductName     string
	PaidAt          time.Time
}

// ProviderPaymentID is the ledger key for the invoice: its payment intent
// when the provider reports one, the invoice id otherwise.
func (i *SubscriptionInvoice) ProviderPaymentID() string {
	if i.PaymentIntentID != "" {
		return i.PaymentIntentID
	}
	return i.InvoiceID
}

// Result summarises one engine run.
type Result struct {
	PaymentID  uuid.UUID
	Entries    []*commission.LedgerEntry
	Inserted   int
	Skipped    bool
	SkipReason string
}
