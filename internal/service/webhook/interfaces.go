package webhook

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/davidleathers/coaching-backoffice/internal/domain/commission"
	"github.com/davidleathers/coaching-backoffice/internal/domain/payment"
	"github.com/davidleathers/coaching-backoffice/internal/domain/schedule"
	commissionsvc "github.com/davidleathers/coaching-backoffice/internal/service/commission"
	"github.com/davidleathers/coaching-backoffice/internal/service/conversion"
	"github.com/davidleathers/coaching-backoffice/internal/service/disputes"
	"github.com/davidleathers/coaching-backoffice/internal/service/reconciliation"
	"github.com/davidleathers/coaching-backoffice/internal/service/schedules"
)

// FeeResolver computes the fee triple for a payment.
type FeeResolver interface {
	Resolve(ctx context.Context, amount decimal.Decimal, paymentIntentID string) payment.Breakdown
}

// ClientMatcher attributes a payment to an existing client.
type ClientMatcher interface {
	Match(ctx context.Context, customerID, email string) (reconciliation.Match, error)
}

// PaymentLedger records payments.
type PaymentLedger interface {
	Record(ctx context.Context, rec *payment.Record) (*payment.Payment, error)
	Get(ctx context.Context, providerPaymentID string) (*payment.Payment, error)
}

// ScheduleService is the schedule surface the checkout and charge handlers use.
type ScheduleService interface {
	Get(ctx context.Context, scheduleID string) (*schedules.View, error)
	Activate(ctx context.Context, scheduleID string, a schedule.Activation) (*schedule.PaymentSchedule, bool, error)
	SettleCharge(ctx context.Context, scheduleID string, chargeID uuid.UUID, paidAt time.Time) (*schedules.View, error)
}

// Converter runs lead conversion for an activated schedule.
type Converter interface {
	Process(ctx context.Context, sched *schedule.PaymentSchedule, customerID string) (*conversion.Outcome, error)
}

// CommissionEngine computes commissions.
type CommissionEngine interface {
	Calculate(ctx context.Context, paymentID uuid.UUID) (*commissionsvc.Result, error)
	HandleSubscriptionInvoice(ctx context.Context, inv *commissionsvc.SubscriptionInvoice) (*commissionsvc.Result, error)
	SetSubscriptionActive(ctx context.Context, subscriptionID string, active bool) error
}

// DisputeHandler applies refunds and chargebacks.
type DisputeHandler interface {
	HandleRefund(ctx context.Context, r disputes.Refund) (*payment.Payment, []*commission.Adjustment, error)
	HandleDisputeCreated(ctx context.Context, providerPaymentID, disputeID string) (*payment.Payment, error)
	HandleDisputeClosed(ctx context.Context, providerPaymentID, disputeID string, outcome disputes.DisputeOutcome) (*payment.Payment, []*commission.Adjustment, error)
}

// CheckoutLookup reads checkout details that are not in the event payload.
type CheckoutLookup interface {
	ProductName(ctx context.Context, sessionID string) (string, error)
	PaymentMethodID(ctx context.Context, paymentIntentID string) (string, error)
}

// Notifier publishes downstream notifications without blocking.
type Notifier interface {
	Notify(ctx context.Context, eventType, aggregateType, aggregateID string, data map[string]any)
}

// EventMarker claims provider event ids while they run and remembers them
// once processed.
type EventMarker interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

// MetricsCollector records router outcomes.
type MetricsCollector interface {
	RecordWebhookEvent(eventType, outcome string)
	RecordWebhookDuration(eventType string, d time.Duration)
}
