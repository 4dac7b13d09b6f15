package reconciliation

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidleathers/coaching-backoffice/internal/domain/errors"
	"github.com/davidleathers/coaching-backoffice/internal/domain/payment"
)

// Ledger is the only writer of payment rows. Concurrent deliveries of the same
// provider payment converge on one row through the upsert key.
type Ledger struct {
	payments PaymentRepository
	logger   *zap.Logger
}

func NewLedger(payments PaymentRepository, logger *zap.Logger) *Ledger {
	return &Ledger{
		payments: payments,
		logger:   logger.With(zap.String("component", "payment_ledger")),
	}
}

// Record upserts the payment and returns the row as persisted, so callers see
// fields written by concurrent handlers (commission flag, client link).
func (l *Ledger) Record(ctx context.Context, rec *payment.Record) (*payment.Payment, error) {
	if err := rec.Validate(); err != nil {
		return nil, errors.NewValidationError("INVALID_PAYMENT", err.Error())
	}
	if err := l.payments.UpsertPayment(ctx, rec); err != nil {
		return nil, errors.NewPersistenceError("upsert payment").WithCause(err)
	}

	stored, err := l.payments.GetPaymentByProviderID(ctx, rec.ProviderPaymentID)
	if err != nil {
		return nil, errors.NewPersistenceError("re-read payment").WithCause(err)
	}

	l.logger.Info("payment recorded",
		zap.String("provider_payment_id", stored.ProviderPaymentID),
		zap.String("payment_id", stored.ID.String()),
		zap.String("status", stored.Status.String()),
		zap.String("amount", stored.Amount.StringFixed(2)),
		zap.Bool("client_linked", stored.ClientID != nil))
	return stored, nil
}

// Get reads a payment by provider id.
func (l *Ledger) Get(ctx context.Context, providerPaymentID string) (*payment.Payment, error) {
	p, err := l.payments.GetPaymentByProviderID(ctx, providerPaymentID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, err
		}
		return nil, errors.NewPersistenceError("get payment").WithCause(err)
	}
	return p, nil
}

// Link resolves a payment left for manual review by attaching a client. A
// payment already linked to a different client is a conflict.
func (l *Ledger) Link(ctx context.Context, id, clientID uuid.UUID, scheduleID *string) (*payment.Payment, error) {
	p, err := l.payments.GetPayment(ctx, id)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.ErrPaymentNotFound
		}
		return nil, errors.NewPersistenceError("get payment").WithCause(err)
	}
	if p.ClientID != nil && *p.ClientID != clientID {
		return nil, errors.NewConflictError("payment is already linked to another client")
	}

	if err := l.payments.LinkPayment(ctx, id, clientID, scheduleID); err != nil {
		return nil, errors.NewPersistenceError("link payment").WithCause(err)
	}
	p.ClientID = &clientID
	if scheduleID != nil {
		p.ScheduleID = scheduleID
	}

	l.logger.Info("payment linked",
		zap.String("payment_id", id.String()),
		zap.String("client_id", clientID.String()))
	return p, nil
}
