package disputes

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/davidleathers/coaching-backoffice/internal/domain/commission"
	"github.com/davidleathers/coaching-backoffice/internal/domain/errors"
	"github.com/davidleathers/coaching-backoffice/internal/domain/payment"
	"github.com/davidleathers/coaching-backoffice/internal/domain/values"
)

// PaymentRepository reads payments and moves their status.
type PaymentRepository interface {
	GetPaymentByProviderID(ctx context.Context, providerPaymentID string) (*payment.Payment, error)
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status payment.Status, refunded decimal.Decimal) error
}

// CommissionRepository reads entries and appends adjustments.
type CommissionRepository interface {
	ListEntriesByPayment(ctx context.Context, paymentID uuid.UUID) ([]*commission.LedgerEntry, error)
	ListAdjustmentsByEntry(ctx context.Context, entryID uuid.UUID) ([]*commission.Adjustment, error)
	// CreateAdjustment drops the row when its source key already exists and
	// reports whether it was inserted.
	CreateAdjustment(ctx context.Context, a *commission.Adjustment) (bool, error)
}

// Refund is a charge.refunded event reduced to what the handler needs.
type Refund struct {
	ProviderPaymentID string
	ChargeID          string
	AmountRefunded    decimal.Decimal
}

// DisputeOutcome is the provider's final dispute status.
type DisputeOutcome string

const (
	DisputeWon  DisputeOutcome = "won"
	DisputeLost DisputeOutcome = "lost"
)

// Handler applies refunds and chargebacks to payments and claws back the
// commission paid on them.
type Handler struct {
	payments    PaymentRepository
	commissions CommissionRepository
	logger      *zap.Logger
}

func NewHandler(payments PaymentRepository, commissions CommissionRepository, logger *zap.Logger) *Handler {
	return &Handler{
		payments:    payments,
		commissions: commissions,
		logger:      logger.With(zap.String("component", "disputes")),
	}
}

// HandleRefund records the cumulative refunded amount and reverses the same
// share of every commission entry on the payment. Repeated deliveries only
// add the difference between the target reversal and what is already reversed.
func (h *Handler) HandleRefund(ctx context.Context, r Refund) (*payment.Payment, []*commission.Adjustment, error) {
	p, err := h.load(ctx, r.ProviderPaymentID)
	if err != nil || p == nil {
		return nil, nil, err
	}

	refunded := r.AmountRefunded
	if refunded.GreaterThan(p.Amount) {
		refunded = p.Amount
	}
	if refunded.LessThan(p.RefundedAmount) {
		// Out-of-order delivery; never shrink the recorded refund.
		refunded = p.RefundedAmount
	}
	if err := p.ApplyRefund(refunded); err != nil {
		return nil, nil, errors.NewValidationError("INVALID_REFUND", err.Error())
	}
	if err := h.payments.UpdatePaymentStatus(ctx, p.ID, p.Status, p.RefundedAmount); err != nil {
		return nil, nil, errors.NewPersistenceError("update refunded payment").WithCause(err)
	}

	adjustments, err := h.reverse(ctx, p, p.RefundedFraction(), "refund", fmt.Sprintf("Refund of %s on %s", p.RefundedAmount.StringFixed(2), p.ProviderPaymentID))
	if err != nil {
		return nil, nil, err
	}

	h.logger.Info("refund applied",
		zap.String("payment_id", p.ID.String()),
		zap.String("status", p.Status.String()),
		zap.String("refunded", p.RefundedAmount.StringFixed(2)),
		zap.Int("adjustments", len(adjustments)))
	return p, adjustments, nil
}

// HandleDisputeCreated flags the payment as disputed.
func (h *Handler) HandleDisputeCreated(ctx context.Context, providerPaymentID, disputeID string) (*payment.Payment, error) {
	p, err := h.load(ctx, providerPaymentID)
	if err != nil || p == nil {
		return nil, err
	}
	if p.Status == payment.StatusDisputed || p.Status == payment.StatusRefunded {
		return p, nil
	}
	p.Status = payment.StatusDisputed
	if err := h.payments.UpdatePaymentStatus(ctx, p.ID, p.Status, p.RefundedAmount); err != nil {
		return nil, errors.NewPersistenceError("mark payment disputed").WithCause(err)
	}
	h.logger.Warn("payment disputed",
		zap.String("payment_id", p.ID.String()),
		zap.String("dispute_id", disputeID))
	return p, nil
}

// HandleDisputeClosed restores a won payment to succeeded. A lost dispute
// refunds the payment in full and reverses all of its commission.
func (h *Handler) HandleDisputeClosed(ctx context.Context, providerPaymentID, disputeID string, outcome DisputeOutcome) (*payment.Payment, []*commission.Adjustment, error) {
	p, err := h.load(ctx, providerPaymentID)
	if err != nil || p == nil {
		return nil, nil, err
	}

	var adjustments []*commission.Adjustment
	switch outcome {
	case DisputeLost:
		p.RefundedAmount = p.Amount
		p.Status = payment.StatusRefunded
		if err := h.payments.UpdatePaymentStatus(ctx, p.ID, p.Status, p.RefundedAmount); err != nil {
			return nil, nil, errors.NewPersistenceError("mark dispute lost").WithCause(err)
		}
		adjustments, err = h.reverse(ctx, p, decimal.NewFromInt(1), "chargeback", "Chargeback lost on "+p.ProviderPaymentID)
		if err != nil {
			return nil, nil, err
		}
	default:
		if p.Status == payment.StatusDisputed {
			p.Status = payment.StatusSucceeded
			if p.RefundedAmount.IsPositive() {
				p.Status = payment.StatusPartiallyRefunded
			}
			if err := h.payments.UpdatePaymentStatus(ctx, p.ID, p.Status, p.RefundedAmount); err != nil {
				return nil, nil, errors.NewPersistenceError("mark dispute won").WithCause(err)
			}
		}
	}

	h.logger.Info("dispute closed",
		zap.String("payment_id", p.ID.String()),
		zap.String("dispute_id", disputeID),
		zap.String("outcome", string(outcome)),
		zap.String("status", p.Status.String()))
	return p, adjustments, nil
}

// reverse brings each entry's total reversal up to fraction × commission.
func (h *Handler) reverse(ctx context.Context, p *payment.Payment, fraction decimal.Decimal, kind, reason string) ([]*commission.Adjustment, error) {
	entries, err := h.commissions.ListEntriesByPayment(ctx, p.ID)
	if err != nil {
		return nil, errors.NewPersistenceError("list ledger entries").WithCause(err)
	}

	var created []*commission.Adjustment
	for _, e := range entries {
		existing, err := h.commissions.ListAdjustmentsByEntry(ctx, e.ID)
		if err != nil {
			return nil, errors.NewPersistenceError("list adjustments").WithCause(err)
		}
		reversed := decimal.Zero
		for _, a := range existing {
			reversed = reversed.Sub(a.Amount)
		}

		target := values.RoundCents(e.CommissionAmount.Mul(fraction))
		delta := target.Sub(reversed)
		if !delta.IsPositive() {
			continue
		}

		key := fmt.Sprintf("%s:%s:%d", kind, e.ID, values.ToMinorUnits(target))
		adj, err := commission.NewReversal(e, delta, reason, key)
		if err != nil {
			return nil, errors.NewInternalError("build reversal").WithCause(err)
		}
		inserted, err := h.commissions.CreateAdjustment(ctx, adj)
		if err != nil {
			return nil, errors.NewPersistenceError("create adjustment").WithCause(err)
		}
		if inserted {
			created = append(created, adj)
		}
	}
	return created, nil
}

// load returns nil without error when the event names no payment. A payment
// that is not recorded yet is an out-of-order delivery and fails retryably,
// so the refund or dispute is applied once the payment event has landed.
func (h *Handler) load(ctx context.Context, providerPaymentID string) (*payment.Payment, error) {
	if providerPaymentID == "" {
		return nil, nil
	}
	p, err := h.payments.GetPaymentByProviderID(ctx, providerPaymentID)
	if err != nil {
		if errors.IsNotFound(err) {
			h.logger.Warn("event for unrecorded payment, awaiting redelivery", zap.String("provider_payment_id", providerPaymentID))
			return nil, errors.NewOutOfOrderError("payment", providerPaymentID)
		}
		return nil, errors.NewPersistenceError("get payment").WithCause(err)
	}
	return p, nil
}
