package schedules

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidleathers/coaching-backoffice/internal/domain/errors"
	"github.com/davidleathers/coaching-backoffice/internal/domain/schedule"
)

type service struct {
	repo   Repository
	logger *zap.Logger
}

// NewService creates a schedule service
func NewService(repo Repository, logger *zap.Logger) Service {
	return &service{
		repo:   repo,
		logger: logger.With(zap.String("service", "schedules")),
	}
}

func (s *service) Get(ctx context.Context, scheduleID string) (*View, error) {
	sched, err := s.load(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	return s.refresh(ctx, sched)
}

func (s *service) Activate(ctx context.Context, scheduleID string, a schedule.Activation) (*schedule.PaymentSchedule, bool, error) {
	sched, err := s.load(ctx, scheduleID)
	if err != nil {
		return nil, false, err
	}

	changed, err := sched.Activate(a)
	if err != nil {
		return nil, false, errors.NewBusinessError("INVALID_SCHEDULE_TRANSITION", err.Error())
	}
	if err := s.repo.SaveSchedule(ctx, sched); err != nil {
		return nil, false, errors.NewPersistenceError("save schedule").WithCause(err)
	}

	if changed {
		s.logger.Info("schedule activated",
			zap.String("schedule_id", sched.ID),
			zap.String("customer_id", sched.CustomerID),
			zap.String("product_name", sched.ProductName))
	}
	return sched, changed, nil
}

func (s *service) LinkClient(ctx context.Context, scheduleID string, clientID uuid.UUID) error {
	sched, err := s.load(ctx, scheduleID)
	if err != nil {
		return err
	}
	if sched.ClientID != nil && *sched.ClientID == clientID {
		return nil
	}
	sched.LinkClient(clientID)
	if err := s.repo.SaveSchedule(ctx, sched); err != nil {
		return errors.NewPersistenceError("link schedule client").WithCause(err)
	}
	return nil
}

func (s *service) CancelScheduledCharge(ctx context.Context, scheduleID string, chargeID uuid.UUID) (*View, error) {
	sched, charge, err := s.loadCharge(ctx, scheduleID, chargeID)
	if err != nil {
		return nil, err
	}
	if err := charge.Cancel(); err != nil {
		return nil, errors.NewBusinessError("CHARGE_NOT_PENDING", err.Error())
	}
	if err := s.repo.SaveCharge(ctx, charge); err != nil {
		return nil, errors.NewPersistenceError("save charge").WithCause(err)
	}

	s.logger.Info("scheduled charge cancelled",
		zap.String("schedule_id", scheduleID),
		zap.String("charge_id", chargeID.String()))
	return s.refresh(ctx, sched)
}

func (s *service) UpdateScheduledCharge(ctx context.Context, scheduleID string, chargeID uuid.UUID, u schedule.ChargeUpdate) (*View, error) {
	sched, charge, err := s.loadCharge(ctx, scheduleID, chargeID)
	if err != nil {
		return nil, err
	}
	if err := charge.Update(u); err != nil {
		return nil, errors.NewBusinessError("INVALID_CHARGE_UPDATE", err.Error())
	}
	if err := s.repo.SaveCharge(ctx, charge); err != nil {
		return nil, errors.NewPersistenceError("save charge").WithCause(err)
	}
	return s.refresh(ctx, sched)
}

func (s *service) SettleCharge(ctx context.Context, scheduleID string, chargeID uuid.UUID, paidAt time.Time) (*View, error) {
	sched, charge, err := s.loadCharge(ctx, scheduleID, chargeID)
	if err != nil {
		return nil, err
	}
	changed, err := charge.MarkPaid(paidAt)
	if err != nil {
		return nil, errors.NewBusinessError("CHARGE_NOT_SETTLEABLE", err.Error())
	}
	if changed {
		if err := s.repo.SaveCharge(ctx, charge); err != nil {
			return nil, errors.NewPersistenceError("save charge").WithCause(err)
		}
		s.logger.Info("scheduled charge settled",
			zap.String("schedule_id", scheduleID),
			zap.String("charge_id", chargeID.String()))
	}
	return s.refresh(ctx, sched)
}

func (s *service) CancelSchedule(ctx context.Context, scheduleID string) (*View, error) {
	sched, err := s.load(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if err := sched.Cancel(); err != nil {
		return nil, errors.NewBusinessError("INVALID_SCHEDULE_TRANSITION", err.Error())
	}

	charges, err := s.repo.ListCharges(ctx, scheduleID)
	if err != nil {
		return nil, errors.NewPersistenceError("list charges").WithCause(err)
	}
	for _, c := range charges {
		if c.Status != schedule.ChargeStatusPending {
			continue
		}
		if err := c.Cancel(); err != nil {
			return nil, errors.NewInternalError("cancel pending charge").WithCause(err)
		}
		if err := s.repo.SaveCharge(ctx, c); err != nil {
			return nil, errors.NewPersistenceError("save charge").WithCause(err)
		}
	}

	sched.Recompute(charges)
	if err := s.repo.SaveSchedule(ctx, sched); err != nil {
		return nil, errors.NewPersistenceError("save schedule").WithCause(err)
	}
	s.logger.Info("schedule cancelled", zap.String("schedule_id", scheduleID))
	return &View{Schedule: sched, Charges: charges}, nil
}

// refresh recomputes the remaining amount from the charge rows and persists
// the schedule when the stored value or status drifted.
func (s *service) refresh(ctx context.Context, sched *schedule.PaymentSchedule) (*View, error) {
	charges, err := s.repo.ListCharges(ctx, sched.ID)
	if err != nil {
		return nil, errors.NewPersistenceError("list charges").WithCause(err)
	}

	before, beforeStatus := sched.RemainingAmount, sched.Status
	completed := sched.Recompute(charges)
	if !before.Equal(sched.RemainingAmount) || beforeStatus != sched.Status {
		if err := s.repo.SaveSchedule(ctx, sched); err != nil {
			return nil, errors.NewPersistenceError("save schedule").WithCause(err)
		}
	}
	if completed {
		s.logger.Info("schedule completed", zap.String("schedule_id", sched.ID))
	}
	return &View{Schedule: sched, Charges: charges}, nil
}

func (s *service) load(ctx context.Context, scheduleID string) (*schedule.PaymentSchedule, error) {
	sched, err := s.repo.GetSchedule(ctx, scheduleID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NewNotFoundError("payment schedule")
		}
		return nil, errors.NewPersistenceError("get schedule").WithCause(err)
	}
	return sched, nil
}

func (s *service) loadCharge(ctx context.Context, scheduleID string, chargeID uuid.UUID) (*schedule.PaymentSchedule, *schedule.ScheduledCharge, error) {
	sched, err := s.load(ctx, scheduleID)
	if err != nil {
		return nil, nil, err
	}
	charge, err := s.repo.GetCharge(ctx, chargeID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, nil, errors.NewNotFoundError("scheduled charge")
		}
		return nil, nil, errors.NewPersistenceError("get charge").WithCause(err)
	}
	if charge.ScheduleID != sched.ID {
		return nil, nil, errors.NewNotFoundError("scheduled charge")
	}
	return sched, charge, nil
}
