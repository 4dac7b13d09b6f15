package schedule

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/davidleathers/coaching-backoffice/internal/domain/clock"
)

// ScheduledCharge is one future installment of a schedule. Charging is done
// by an external job; this system edits and cancels pending charges and
// settles them when the provider reports the payment.
type ScheduledCharge struct {
	ID          uuid.UUID       `json:"id"`
	ScheduleID  string          `json:"schedule_id"`
	Amount      decimal.Decimal `json:"amount"`
	DueDate     time.Time       `json:"due_date"`
	Status      ChargeStatus    `json:"status"`
	FailureNote string          `json:"failure_note,omitempty"`
	PaidAt      *time.Time      `json:"paid_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type ChargeStatus string

const (
	ChargeStatusPending   ChargeStatus = "pending"
	ChargeStatusPaid      ChargeStatus = "paid"
	ChargeStatusFailed    ChargeStatus = "failed"
	ChargeStatusCancelled ChargeStatus = "cancelled"
)

func (s ChargeStatus) IsTerminal() bool {
	return s == ChargeStatusPaid || s == ChargeStatusCancelled
}

// ChargeUpdate holds the editable fields of a pending charge. Nil fields are
// left unchanged.
type ChargeUpdate struct {
	Amount  *decimal.Decimal
	DueDate *time.Time
}

// Update edits a pending charge.
func (c *ScheduledCharge) Update(u ChargeUpdate) error {
	if c.Status != ChargeStatusPending {
		return fmt.Errorf("cannot update charge in %s status", c.Status)
	}
	if u.Amount != nil {
		if !u.Amount.IsPositive() {
			return fmt.Errorf("charge amount must be positive")
		}
		c.Amount = *u.Amount
	}
	if u.DueDate != nil {
		if u.DueDate.IsZero() {
			return fmt.Errorf("due date is required")
		}
		c.DueDate = *u.DueDate
	}
	c.UpdatedAt = clock.Now()
	return nil
}

// Cancel cancels a pending charge.
func (c *ScheduledCharge) Cancel() error {
	if c.Status != ChargeStatusPending {
		return fmt.Errorf("cannot cancel charge in %s status", c.Status)
	}
	c.Status = ChargeStatusCancelled
	c.UpdatedAt = clock.Now()
	return nil
}

// MarkPaid settles a pending or failed charge. It reports false when the
// charge was already paid.
func (c *ScheduledCharge) MarkPaid(at time.Time) (bool, error) {
	switch c.Status {
	case ChargeStatusPaid:
		return false, nil
	case ChargeStatusCancelled:
		return false, fmt.Errorf("cannot settle a cancelled charge")
	}
	c.Status = ChargeStatusPaid
	c.PaidAt = &at
	c.FailureNote = ""
	c.UpdatedAt = clock.Now()
	return true, nil
}

// RemainingAmount sums the pending charges. Stored remaining amounts are never
// trusted over this value.
func RemainingAmount(charges []*ScheduledCharge) decimal.Decimal {
	total := decimal.Zero
	for _, c := range charges {
		if c.Status == ChargeStatusPending {
			total = total.Add(c.Amount)
		}
	}
	return total
}
