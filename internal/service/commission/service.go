package commission

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidleathers/coaching-backoffice/internal/domain/clock"
	"github.com/davidleathers/coaching-backoffice/internal/domain/commission"
	"github.com/davidleathers/coaching-backoffice/internal/domain/crm"
	"github.com/davidleathers/coaching-backoffice/internal/domain/errors"
	"github.com/davidleathers/coaching-backoffice/internal/domain/payment"
	"github.com/davidleathers/coaching-backoffice/internal/domain/schedule"
)

// Skip reasons reported in Result.SkipReason.
const (
	SkipAlreadyCalculated = "already_calculated"
	SkipNotSucceeded      = "payment_not_succeeded"
	SkipUnmatched         = "client_unmatched"
	SkipNoConfig          = "no_active_subscription_config"
)

type service struct {
	payments  PaymentRepository
	clients   ClientReader
	schedules ScheduleRepository
	repo      Repository
	recorder  PaymentRecorder
	fees      FeeResolver
	metrics   MetricsCollector
	rates     commission.Rates
	logger    *zap.Logger
}

// NewService creates the commission engine
func NewService(
	payments PaymentRepository,
	clients ClientReader,
	schedules ScheduleRepository,
	repo Repository,
	recorder PaymentRecorder,
	fees FeeResolver,
	metrics MetricsCollector,
	rates commission.Rates,
	logger *zap.Logger,
) Service {
	return &service{
		payments:  payments,
		clients:   clients,
		schedules: schedules,
		repo:      repo,
		recorder:  recorder,
		fees:      fees,
		metrics:   metrics,
		rates:     rates,
		logger:    logger.With(zap.String("service", "commission")),
	}
}

func (s *service) Calculate(ctx context.Context, paymentID uuid.UUID) (*Result, error) {
	p, err := s.payments.GetPayment(ctx, paymentID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NewNotFoundError("payment")
		}
		return nil, errors.NewPersistenceError("get payment").WithCause(err)
	}
	return s.calculate(ctx, p)
}

func (s *service) calculate(ctx context.Context, p *payment.Payment) (*Result, error) {
	log := s.logger.With(zap.String("payment_id", p.ID.String()), zap.String("provider_payment_id", p.ProviderPaymentID))

	switch {
	case p.CommissionCalculated:
		return s.skip(p.ID, SkipAlreadyCalculated), nil
	case p.Status != payment.StatusSucceeded:
		return s.skip(p.ID, SkipNotSucceeded), nil
	case p.ClientID == nil:
		log.Info("payment has no client yet, commission deferred")
		return s.skip(p.ID, SkipUnmatched), nil
	}

	client, err := s.clients.GetClient(ctx, *p.ClientID)
	if err != nil {
		return nil, errors.NewPersistenceError("get client").WithCause(err)
	}

	sched, err := s.scheduleFor(ctx, p)
	if err != nil {
		return nil, err
	}

	in := commission.PlanInput{
		PaymentID:       p.ID,
		PaymentAmount:   p.Amount,
		Fee:             p.Fee,
		NetAmount:       p.NetAmount,
		PaymentDate:     p.PaymentDate,
		LeadSource:      client.LeadSource,
		IsResign:        client.IsResign,
		AssignedCoachID: coachFor(client),
		Schedule:        sched,
	}

	if in.Profiles, err = s.repo.GetProfiles(ctx, coachIDs(sched, in.AssignedCoachID)); err != nil {
		return nil, errors.NewPersistenceError("load commission profiles").WithCause(err)
	}
	if sched != nil {
		if in.ReferrersCredited, err = s.repo.CreditedReferrers(ctx, sched.ID); err != nil {
			return nil, errors.NewPersistenceError("load credited referrers").WithCause(err)
		}
	}

	now := clock.Now()
	lines := s.rates.Plan(in, now)
	entries := make([]*commission.LedgerEntry, 0, len(lines))
	for _, line := range lines {
		entry, err := commission.NewLedgerEntry(line.UserID, p.ID, line.Role, line.Gross, line.Amount, line.Basis)
		if err != nil {
			return nil, errors.NewInternalError("build ledger entry").WithCause(err)
		}
		entry.ClientID = p.ClientID
		entries = append(entries, entry)
	}

	inserted, err := s.repo.CreateLedgerEntries(ctx, entries)
	if err != nil {
		return nil, errors.NewPersistenceError("create ledger entries").WithCause(err)
	}

	// Set only after every entry is persisted.
	if err := s.payments.MarkCommissionCalculated(ctx, p.ID); err != nil {
		return nil, errors.NewPersistenceError("mark commission calculated").WithCause(err)
	}

	for _, e := range entries {
		if s.metrics != nil {
			s.metrics.RecordCommissionEntry(string(e.Role), e.CommissionAmount.InexactFloat64())
		}
		log.Info("commission entry",
			zap.String("user_id", e.UserID.String()),
			zap.String("role", string(e.Role)),
			zap.String("rule", e.Basis.Rule),
			zap.String("amount", e.CommissionAmount.StringFixed(2)))
	}
	return &Result{PaymentID: p.ID, Entries: entries, Inserted: inserted}, nil
}

func (s *service) HandleSubscriptionInvoice(ctx context.Context, inv *SubscriptionInvoice) (*Result, error) {
	log := s.logger.With(zap.String("subscription_id", inv.SubscriptionID), zap.String("invoice_id", inv.InvoiceID))

	cfg, err := s.repo.GetSubscriptionConfig(ctx, inv.SubscriptionID)
	if err != nil {
		if errors.IsNotFound(err) {
			log.Debug("no commission config for subscription")
			return s.skip(uuid.Nil, SkipNoConfig), nil
		}
		return nil, errors.NewPersistenceError("get subscription config").WithCause(err)
	}
	if !cfg.IsActive {
		return s.skip(uuid.Nil, SkipNoConfig), nil
	}

	existing, err := s.payments.GetPaymentByProviderID(ctx, inv.ProviderPaymentID())
	switch {
	case err == nil && existing.CommissionCalculated:
		return s.skip(existing.ID, SkipAlreadyCalculated), nil
	case err != nil && !errors.IsNotFound(err):
		return nil, errors.NewPersistenceError("get payment").WithCause(err)
	}

	synthetic := cfg.SyntheticSchedule(inv.Amount, inv.CustomerID, inv.PaidAt)
	if current, err := s.schedules.GetSchedule(ctx, synthetic.ID); err == nil {
		current.CommissionSplits = synthetic.CommissionSplits
		current.ProgramTermMonths = synthetic.ProgramTermMonths
		synthetic = current
	} else if !errors.IsNotFound(err) {
		return nil, errors.NewPersistenceError("get subscription schedule").WithCause(err)
	}
	if err := s.schedules.SaveSchedule(ctx, synthetic); err != nil {
		return nil, errors.NewPersistenceError("save subscription schedule").WithCause(err)
	}

	breakdown := s.fees.Resolve(ctx, inv.Amount, inv.PaymentIntentID)
	clientID := cfg.ClientID
	scheduleID := synthetic.ID
	stored, err := s.recorder.Record(ctx, &payment.Record{
		ProviderPaymentID: inv.ProviderPaymentID(),
		Amount:            breakdown.Amount,
		Fee:               breakdown.Fee,
		NetAmount:         breakdown.Net,
		Currency:          inv.Currency,
		Status:            payment.StatusSucceeded,
		ClientID:          &clientID,
		ClientEmail:       inv.CustomerEmail,
		CustomerID:        inv.CustomerID,
		ProductName:       inv.ProductName,
		ScheduleID:        &scheduleID,
		SubscriptionID:    inv.SubscriptionID,
		PaymentDate:       inv.PaidAt,
	})
	if err != nil {
		return nil, err
	}
	return s.calculate(ctx, stored)
}

func (s *service) SetSubscriptionActive(ctx context.Context, subscriptionID string, active bool) error {
	if err := s.repo.SetSubscriptionConfigActive(ctx, subscriptionID, active); err != nil {
		if errors.IsNotFound(err) {
			return nil
		}
		return errors.NewPersistenceError("update subscription config").WithCause(err)
	}

	if !active {
		sched, err := s.schedules.GetSchedule(ctx, schedule.SubscriptionPrefix+subscriptionID)
		switch {
		case err == nil:
			if !sched.Status.IsTerminal() {
				if err := sched.Cancel(); err != nil {
					return errors.NewBusinessError("INVALID_SCHEDULE_TRANSITION", err.Error())
				}
				if err := s.schedules.SaveSchedule(ctx, sched); err != nil {
					return errors.NewPersistenceError("cancel subscription schedule").WithCause(err)
				}
			}
		case !errors.IsNotFound(err):
			return errors.NewPersistenceError("get subscription schedule").WithCause(err)
		}
	}

	s.logger.Info("subscription commission config updated",
		zap.String("subscription_id", subscriptionID),
		zap.Bool("active", active))
	return nil
}

func (s *service) Statement(ctx context.Context, userID uuid.UUID) (*commission.Statement, error) {
	entries, err := s.repo.ListEntriesByUser(ctx, userID)
	if err != nil {
		return nil, errors.NewPersistenceError("list ledger entries").WithCause(err)
	}
	adjustments, err := s.repo.ListAdjustmentsByUser(ctx, userID)
	if err != nil {
		return nil, errors.NewPersistenceError("list adjustments").WithCause(err)
	}
	return commission.BuildStatement(userID, entries, adjustments), nil
}

func (s *service) scheduleFor(ctx context.Context, p *payment.Payment) (*schedule.PaymentSchedule, error) {
	if p.ScheduleID == nil {
		return nil, nil
	}
	sched, err := s.schedules.GetSchedule(ctx, *p.ScheduleID)
	if err != nil {
		if errors.IsNotFound(err) {
			s.logger.Warn("payment references unknown schedule",
				zap.String("payment_id", p.ID.String()),
				zap.String("schedule_id", *p.ScheduleID))
			return nil, nil
		}
		return nil, errors.NewPersistenceError("get schedule").WithCause(err)
	}
	return sched, nil
}

func (s *service) skip(paymentID uuid.UUID, reason string) *Result {
	if s.metrics != nil {
		s.metrics.RecordCommissionSkipped(reason)
	}
	return &Result{PaymentID: paymentID, Skipped: true, SkipReason: reason}
}

func coachFor(c *crm.Client) *uuid.UUID {
	if c.AssignedCoachID != nil {
		return c.AssignedCoachID
	}
	if open := c.OpenCoachEntry(); open != nil {
		id := open.CoachID
		return &id
	}
	return nil
}

func coachIDs(sched *schedule.PaymentSchedule, assigned *uuid.UUID) []uuid.UUID {
	var ids []uuid.UUID
	if sched != nil {
		for _, s := range schedule.ByRole(sched.CommissionSplits, schedule.RoleCoach) {
			ids = append(ids, s.UserID)
		}
	}
	if len(ids) == 0 && assigned != nil {
		ids = append(ids, *assigned)
	}
	return ids
}
