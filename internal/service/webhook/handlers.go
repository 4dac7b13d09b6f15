package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/davidleathers/coaching-backoffice/internal/domain/clock"
	"github.com/davidleathers/coaching-backoffice/internal/domain/errors"
	"github.com/davidleathers/coaching-backoffice/internal/domain/payment"
	"github.com/davidleathers/coaching-backoffice/internal/domain/schedule"
	"github.com/davidleathers/coaching-backoffice/internal/infrastructure/events"
	commissionsvc "github.com/davidleathers/coaching-backoffice/internal/service/commission"
	"github.com/davidleathers/coaching-backoffice/internal/service/disputes"
)

// Processor runs the saga for each decoded event. Every step is idempotent,
// so a failed event can be re-delivered and resumed from the start.
type Processor struct {
	fees        FeeResolver
	matcher     ClientMatcher
	ledger      PaymentLedger
	schedules   ScheduleService
	converter   Converter
	commissions CommissionEngine
	disputes    DisputeHandler
	checkout    CheckoutLookup
	notifier    Notifier
	logger      *zap.Logger
}

// Dependencies groups the collaborators of a Processor.
type Dependencies struct {
	Fees        FeeResolver
	Matcher     ClientMatcher
	Ledger      PaymentLedger
	Schedules   ScheduleService
	Converter   Converter
	Commissions CommissionEngine
	Disputes    DisputeHandler
	Checkout    CheckoutLookup
	Notifier    Notifier
}

func NewProcessor(deps Dependencies, logger *zap.Logger) *Processor {
	return &Processor{
		fees:        deps.Fees,
		matcher:     deps.Matcher,
		ledger:      deps.Ledger,
		schedules:   deps.Schedules,
		converter:   deps.Converter,
		commissions: deps.Commissions,
		disputes:    deps.Disputes,
		checkout:    deps.Checkout,
		notifier:    deps.Notifier,
		logger:      logger.With(zap.String("component", "webhook_processor")),
	}
}

// Dispatch routes an event to its handler.
func (p *Processor) Dispatch(ctx context.Context, evt Event) error {
	switch e := evt.(type) {
	case *PaymentIntentSucceeded:
		return p.paymentIntentSucceeded(ctx, e)
	case *CheckoutSessionCompleted:
		return p.checkoutSessionCompleted(ctx, e)
	case *ChargeRefunded:
		_, _, err := p.disputes.HandleRefund(ctx, disputes.Refund{
			ProviderPaymentID: e.PaymentIntentID,
			ChargeID:          e.ChargeID,
			AmountRefunded:    e.AmountRefunded,
		})
		return err
	case *DisputeCreated:
		return p.disputeCreated(ctx, e)
	case *DisputeClosed:
		outcome := disputes.DisputeWon
		if e.Status == "lost" {
			outcome = disputes.DisputeLost
		}
		_, _, err := p.disputes.HandleDisputeClosed(ctx, e.PaymentIntentID, e.DisputeID, outcome)
		return err
	case *InvoicePaid:
		return p.invoicePaid(ctx, e)
	case *InvoicePaymentFailed:
		return p.invoicePaymentFailed(ctx, e)
	case *SubscriptionUpdated:
		return p.commissions.SetSubscriptionActive(ctx, e.SubscriptionID, e.Active())
	case *SubscriptionDeleted:
		return p.commissions.SetSubscriptionActive(ctx, e.SubscriptionID, false)
	case *Ignored:
		return nil
	}
	return fmt.Errorf("unhandled event %T", evt)
}

func (p *Processor) paymentIntentSucceeded(ctx context.Context, e *PaymentIntentSucceeded) error {
	pay, err := p.recordPayment(ctx, paymentInput{
		providerID:  e.PaymentIntentID,
		intentID:    e.PaymentIntentID,
		amount:      e.Amount,
		currency:    e.Currency,
		status:      payment.StatusSucceeded,
		customerID:  e.CustomerID,
		email:       e.Email,
		productName: e.Description,
		scheduleID:  e.ScheduleID,
		date:        e.Created,
	})
	if err != nil {
		return err
	}

	if e.ScheduleID != "" && e.ChargeID != "" {
		if err := p.settleCharge(ctx, e.ScheduleID, e.ChargeID, pay.PaymentDate); err != nil {
			return err
		}
	}

	if e.InvoiceID != "" {
		// Subscription invoices are commissioned from invoice.paid.
		p.logger.Debug("invoice payment recorded, commission deferred",
			zap.String("payment_intent_id", e.PaymentIntentID),
			zap.String("invoice_id", e.InvoiceID))
		return nil
	}
	return p.commission(ctx, pay)
}

func (p *Processor) checkoutSessionCompleted(ctx context.Context, e *CheckoutSessionCompleted) error {
	log := p.logger.With(zap.String("session_id", e.SessionID), zap.String("schedule_id", e.ScheduleID))
	if e.ScheduleID == "" {
		log.Info("checkout session has no schedule reference, ignoring")
		return nil
	}

	activation := schedule.Activation{
		CustomerID: e.CustomerID,
		SessionID:  e.SessionID,
	}
	if p.checkout != nil {
		activation.ProductName = p.lookup(ctx, "product name", func(ctx context.Context) (string, error) {
			return p.checkout.ProductName(ctx, e.SessionID)
		})
		if e.PaymentIntentID != "" {
			activation.PaymentMethodID = p.lookup(ctx, "payment method", func(ctx context.Context) (string, error) {
				return p.checkout.PaymentMethodID(ctx, e.PaymentIntentID)
			})
		}
	}

	sched, activated, err := p.schedules.Activate(ctx, e.ScheduleID, activation)
	if err != nil {
		if errors.IsNotFound(err) || errors.IsType(err, errors.ErrorTypeBusiness) {
			log.Warn("checkout for unusable schedule, ignoring", zap.Error(err))
			return nil
		}
		return err
	}

	outcome, err := p.converter.Process(ctx, sched, e.CustomerID)
	if err != nil {
		return err
	}
	if outcome.Client != nil && (outcome.Converted || outcome.Reactivated) {
		p.notifier.Notify(ctx, events.TypeClientActivated, "client", outcome.Client.ID.String(), map[string]any{
			"schedule_id": sched.ID,
			"converted":   outcome.Converted,
			"reactivated": outcome.Reactivated,
			"product":     sched.ProductName,
		})
	}
	log.Info("checkout completed",
		zap.Bool("schedule_activated", activated),
		zap.Bool("client_converted", outcome.Converted),
		zap.Int("tasks_seeded", outcome.TasksSeeded))

	if !e.Paid() {
		return nil
	}

	// The payment_intent.succeeded event may have arrived before the client
	// existed; recording here links and commissions it either way.
	in := paymentInput{
		providerID:  e.PaymentIntentID,
		intentID:    e.PaymentIntentID,
		amount:      e.AmountTotal,
		currency:    e.Currency,
		status:      payment.StatusSucceeded,
		customerID:  e.CustomerID,
		email:       e.CustomerEmail,
		productName: sched.ProductName,
		scheduleID:  sched.ID,
		date:        e.Created,
	}
	if outcome.Client != nil {
		id := outcome.Client.ID
		in.clientID = &id
	}
	pay, err := p.recordPayment(ctx, in)
	if err != nil {
		return err
	}
	return p.commission(ctx, pay)
}

func (p *Processor) disputeCreated(ctx context.Context, e *DisputeCreated) error {
	pay, err := p.disputes.HandleDisputeCreated(ctx, e.PaymentIntentID, e.DisputeID)
	if err != nil || pay == nil {
		return err
	}
	p.notifier.Notify(ctx, events.TypePaymentDisputed, "payment", pay.ID.String(), map[string]any{
		"dispute_id":          e.DisputeID,
		"provider_payment_id": pay.ProviderPaymentID,
		"amount":              e.Amount.StringFixed(2),
		"reason":              e.Reason,
	})
	return nil
}

func (p *Processor) invoicePaid(ctx context.Context, e *InvoicePaid) error {
	if e.SubscriptionID == "" {
		p.logger.Info("invoice without subscription, ignoring", zap.String("invoice_id", e.InvoiceID))
		return nil
	}

	res, err := p.commissions.HandleSubscriptionInvoice(ctx, &commissionsvc.SubscriptionInvoice{
		InvoiceID:       e.InvoiceID,
		SubscriptionID:  e.SubscriptionID,
		PaymentIntentID: e.PaymentIntentID,
		CustomerID:      e.CustomerID,
		CustomerEmail:   e.CustomerEmail,
		Amount:          e.Amount,
		Currency:        e.Currency,
		ProductName:     e.ProductName,
		PaidAt:          e.PaidAt,
	})
	if err != nil {
		return err
	}
	if res.PaymentID != uuid.Nil {
		p.notifier.Notify(ctx, events.TypePaymentRecorded, "payment", res.PaymentID.String(), map[string]any{
			"subscription_id": e.SubscriptionID,
			"amount":          e.Amount.StringFixed(2),
		})
	}
	return nil
}

func (p *Processor) invoicePaymentFailed(ctx context.Context, e *InvoicePaymentFailed) error {
	providerID := e.PaymentIntentID
	if providerID == "" {
		providerID = e.InvoiceID
	}

	existing, err := p.ledger.Get(ctx, providerID)
	switch {
	case err == nil && existing.Status != payment.StatusFailed:
		// A later success or refund already landed; a stale failure must not regress it.
		p.logger.Info("stale invoice failure ignored",
			zap.String("provider_payment_id", providerID),
			zap.String("status", existing.Status.String()))
		return nil
	case err != nil && !errors.IsNotFound(err):
		return err
	}

	match, err := p.matcher.Match(ctx, e.CustomerID, e.CustomerEmail)
	if err != nil {
		return err
	}
	rec := &payment.Record{
		ProviderPaymentID: providerID,
		Amount:            e.AmountDue,
		Currency:          e.Currency,
		Status:            payment.StatusFailed,
		ClientEmail:       e.CustomerEmail,
		CustomerID:        e.CustomerID,
		SubscriptionID:    e.SubscriptionID,
		PaymentDate:       orNow(e.Created),
	}
	if match.Found() {
		id := match.Client.ID
		rec.ClientID = &id
	}
	pay, err := p.ledger.Record(ctx, rec)
	if err != nil {
		return err
	}

	p.notifier.Notify(ctx, events.TypeInvoicePaymentFailed, "payment", pay.ID.String(), map[string]any{
		"invoice_id":      e.InvoiceID,
		"subscription_id": e.SubscriptionID,
		"amount_due":      e.AmountDue.StringFixed(2),
		"attempt_count":   e.AttemptCount,
	})
	return nil
}

type paymentInput struct {
	providerID  string
	intentID    string
	amount      decimal.Decimal
	currency    string
	status      payment.Status
	clientID    *uuid.UUID
	customerID  string
	email       string
	productName string
	scheduleID  string
	date        time.Time
}

// recordPayment resolves fee and client and writes the payment. A known
// client wins over matching; a schedule's client is the last resort.
func (p *Processor) recordPayment(ctx context.Context, in paymentInput) (*payment.Payment, error) {
	breakdown := p.fees.Resolve(ctx, in.amount, in.intentID)

	clientID := in.clientID
	if clientID == nil {
		match, err := p.matcher.Match(ctx, in.customerID, in.email)
		if err != nil {
			return nil, err
		}
		if match.Found() {
			id := match.Client.ID
			clientID = &id
		}
	}
	if clientID == nil && in.scheduleID != "" {
		view, err := p.schedules.Get(ctx, in.scheduleID)
		switch {
		case err == nil:
			clientID = view.Schedule.ClientID
		case !errors.IsNotFound(err):
			return nil, err
		}
	}

	rec := &payment.Record{
		ProviderPaymentID: in.providerID,
		Amount:            breakdown.Amount,
		Fee:               breakdown.Fee,
		NetAmount:         breakdown.Net,
		Currency:          in.currency,
		Status:            in.status,
		ClientID:          clientID,
		ClientEmail:       in.email,
		CustomerID:        in.customerID,
		ProductName:       in.productName,
		PaymentDate:       orNow(in.date),
	}
	if in.scheduleID != "" {
		sid := in.scheduleID
		rec.ScheduleID = &sid
	}

	pay, err := p.ledger.Record(ctx, rec)
	if err != nil {
		return nil, err
	}
	p.notifier.Notify(ctx, events.TypePaymentRecorded, "payment", pay.ID.String(), map[string]any{
		"provider_payment_id": pay.ProviderPaymentID,
		"amount":              pay.Amount.StringFixed(2),
		"fee_source":          string(breakdown.Source),
		"client_linked":       pay.ClientID != nil,
	})
	return pay, nil
}

// commission runs the engine for a linked payment. Unlinked payments wait for
// manual review.
func (p *Processor) commission(ctx context.Context, pay *payment.Payment) error {
	if pay.ClientID == nil {
		p.logger.Warn("payment not matched to a client, left for manual review",
			zap.String("payment_id", pay.ID.String()),
			zap.String("provider_payment_id", pay.ProviderPaymentID),
			zap.String("client_email", pay.ClientEmail))
		return nil
	}
	if pay.CommissionCalculated {
		return nil
	}
	_, err := p.commissions.Calculate(ctx, pay.ID)
	return err
}

// settleCharge marks the scheduled charge paid. A stale or unknown charge
// reference is logged and skipped; storage failures are returned.
func (p *Processor) settleCharge(ctx context.Context, scheduleID, chargeID string, paidAt time.Time) error {
	id, err := uuid.Parse(chargeID)
	if err != nil {
		p.logger.Warn("invalid scheduled charge reference", zap.String("charge_id", chargeID))
		return nil
	}
	if _, err := p.schedules.SettleCharge(ctx, scheduleID, id, paidAt); err != nil {
		if errors.IsNotFound(err) || errors.IsType(err, errors.ErrorTypeBusiness) {
			p.logger.Warn("scheduled charge not settled",
				zap.String("schedule_id", scheduleID),
				zap.String("charge_id", chargeID),
				zap.Error(err))
			return nil
		}
		return err
	}
	return nil
}

// lookup runs a provider read whose failure only costs a backfilled field.
func (p *Processor) lookup(ctx context.Context, what string, fn func(context.Context) (string, error)) string {
	v, err := fn(ctx)
	if err != nil {
		p.logger.Warn("checkout lookup failed", zap.String("field", what), zap.Error(err))
		return ""
	}
	return v
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return clock.Now()
	}
	return t
}
