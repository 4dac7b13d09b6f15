package commission

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/davidleathers/coaching-backoffice/internal/domain/clock"
	"github.com/davidleathers/coaching-backoffice/internal/domain/schedule"
)

// LedgerEntry is one user's commission on one payment. Entries are immutable
// apart from Status and PaidAt; corrections are CommissionAdjustments.
type LedgerEntry struct {
	ID               uuid.UUID        `json:"id"`
	UserID           uuid.UUID        `json:"user_id"`
	ClientID         *uuid.UUID       `json:"client_id,omitempty"`
	PaymentID        uuid.UUID        `json:"payment_id"`
	ScheduleID       string           `json:"schedule_id,omitempty"`
	GrossAmount      decimal.Decimal  `json:"gross_amount"`
	CommissionAmount decimal.Decimal  `json:"commission_amount"`
	Role             schedule.Role    `json:"split_role"`
	Basis            CalculationBasis `json:"calculation_basis"`
	Status           EntryStatus      `json:"status"`
	PaidAt           *time.Time       `json:"paid_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

type EntryStatus string

const (
	EntryStatusPending EntryStatus = "pending"
	EntryStatusPaid    EntryStatus = "paid"
)

// CalculationBasis snapshots the inputs of a commission so it can be audited
// after rates or client attributes change.
type CalculationBasis struct {
	Rule          string           `json:"rule"`
	Rate          decimal.Decimal  `json:"rate"`
	BaseAmount    decimal.Decimal  `json:"base_amount"`
	Share         decimal.Decimal  `json:"share"`
	PaymentAmount decimal.Decimal  `json:"payment_amount"`
	Fee           *decimal.Decimal `json:"fee,omitempty"`
	NetAmount     *decimal.Decimal `json:"net_amount,omitempty"`
	LeadSource    string           `json:"lead_source,omitempty"`
	IsResign      bool             `json:"is_resign"`
	RateOverride  bool             `json:"rate_override,omitempty"`
	ScheduleID    string           `json:"schedule_id,omitempty"`
	CalculatedAt  time.Time        `json:"calculated_at"`
}

// NewLedgerEntry validates and builds a pending entry.
func NewLedgerEntry(userID, paymentID uuid.UUID, role schedule.Role, gross, amount decimal.Decimal, basis CalculationBasis) (*LedgerEntry, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("user id is required")
	}
	if paymentID == uuid.Nil {
		return nil, fmt.Errorf("payment id is required")
	}
	if !role.IsValid() {
		return nil, fmt.Errorf("invalid split role %q", role)
	}
	if amount.IsNegative() {
		return nil, fmt.Errorf("commission amount cannot be negative")
	}
	return &LedgerEntry{
		ID:               uuid.New(),
		UserID:           userID,
		PaymentID:        paymentID,
		ScheduleID:       basis.ScheduleID,
		GrossAmount:      gross,
		CommissionAmount: amount,
		Role:             role,
		Basis:            basis,
		Status:           EntryStatusPending,
		CreatedAt:        clock.Now(),
	}, nil
}

// MarkPaid flags a pending entry as paid out.
func (e *LedgerEntry) MarkPaid(at time.Time) error {
	if e.Status == EntryStatusPaid {
		return fmt.Errorf("entry %s is already paid", e.ID)
	}
	e.Status = EntryStatusPaid
	e.PaidAt = &at
	return nil
}
