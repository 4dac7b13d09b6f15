package schedules

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/coaching-backoffice/internal/domain/schedule"
)

// Service manages payment schedules and their scheduled charges.
type Service interface {
	// Get returns a schedule with its charges and a freshly computed remaining amount
	Get(ctx context.Context, scheduleID string) (*View, error)
	// Activate applies checkout completion to a schedule
	Activate(ctx context.Context, scheduleID string, a schedule.Activation) (*schedule.PaymentSchedule, bool, error)
	// LinkClient attaches a client to a schedule
	LinkClient(ctx context.Context, scheduleID string, clientID uuid.UUID) error
	// CancelScheduledCharge cancels one pending charge
	CancelScheduledCharge(ctx context.Context, scheduleID string, chargeID uuid.UUID) (*View, error)
	// UpdateScheduledCharge edits amount or due date of a pending charge
	UpdateScheduledCharge(ctx context.Context, scheduleID string, chargeID uuid.UUID, u schedule.ChargeUpdate) (*View, error)
	// SettleCharge marks a charge paid after its payment succeeded
	SettleCharge(ctx context.Context, scheduleID string, chargeID uuid.UUID, paidAt time.Time) (*View, error)
	// CancelSchedule cancels the schedule and all of its pending charges
	CancelSchedule(ctx context.Context, scheduleID string) (*View, error)
}

// Repository persists schedules and charges.
type Repository interface {
	GetSchedule(ctx context.Context, id string) (*schedule.PaymentSchedule, error)
	SaveSchedule(ctx context.Context, s *schedule.PaymentSchedule) error
	ListCharges(ctx context.Context, scheduleID string) ([]*schedule.ScheduledCharge, error)
	GetCharge(ctx context.Context, chargeID uuid.UUID) (*schedule.ScheduledCharge, error)
	SaveCharge(ctx context.Context, c *schedule.ScheduledCharge) error
}

// View is a schedule with its charges.
type View struct {
	Schedule *schedule.PaymentSchedule   `json:"schedule"`
	Charges  []*schedule.ScheduledCharge `json:"charges"`
}
