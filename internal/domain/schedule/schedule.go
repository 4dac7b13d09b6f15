package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/davidleathers/coaching-backoffice/internal/domain/clock"
)

// SubscriptionPrefix prefixes the id of schedules synthesised for
// subscription commissions.
const SubscriptionPrefix = "sub-"

// PaymentSchedule is the agreed plan for collecting a client's program fee,
// and the carrier of the commission splits for payments made against it.
type PaymentSchedule struct {
	ID                string            `json:"id"`
	ClientID          *uuid.UUID        `json:"client_id,omitempty"`
	LeadID            *uuid.UUID        `json:"lead_id,omitempty"`
	Status            Status            `json:"status"`
	PaymentType       PaymentType       `json:"payment_type"`
	Amount            decimal.Decimal   `json:"amount"`
	TotalAmount       decimal.Decimal   `json:"total_amount"`
	RemainingAmount   decimal.Decimal   `json:"remaining_amount"`
	CommissionSplits  []CommissionSplit `json:"commission_splits"`
	ProgramTermMonths int               `json:"program_term_months,omitempty"`
	CustomerID        string            `json:"customer_id,omitempty"`
	PaymentMethodID   string            `json:"payment_method_id,omitempty"`
	ProductName       string            `json:"product_name,omitempty"`
	CheckoutSessionID string            `json:"checkout_session_id,omitempty"`
	ActivatedAt       *time.Time        `json:"activated_at,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

type Status string

const (
	StatusDraft          Status = "draft"
	StatusPendingInitial Status = "pending_initial"
	StatusActive         Status = "active"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusPendingInitial, StatusActive, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type PaymentType string

const (
	PaymentTypePaidInFull   PaymentType = "paid_in_full"
	PaymentTypeSplit        PaymentType = "split"
	PaymentTypeSubscription PaymentType = "subscription"
)

func (t PaymentType) IsValid() bool {
	switch t {
	case PaymentTypePaidInFull, PaymentTypeSplit, PaymentTypeSubscription:
		return true
	}
	return false
}

// IsSubscription reports whether the schedule was synthesised from a
// subscription commission config.
func (s *PaymentSchedule) IsSubscription() bool {
	return strings.HasPrefix(s.ID, SubscriptionPrefix)
}

// Activation carries the values backfilled when the first checkout completes.
type Activation struct {
	CustomerID      string
	PaymentMethodID string
	ProductName     string
	SessionID       string
}

// Activate applies the checkout-completion transition. Draft and
// pending_initial schedules become active. Re-activating an active schedule only
// fills in values that are still empty, which keeps re-delivered events harmless.
// It reports whether the status changed.
func (s *PaymentSchedule) Activate(a Activation) (bool, error) {
	switch s.Status {
	case StatusDraft, StatusPendingInitial, StatusActive:
	default:
		return false, fmt.Errorf("cannot activate schedule in %s status", s.Status)
	}

	changed := s.Status != StatusActive
	now := clock.Now()
	if changed {
		s.Status = StatusActive
		s.ActivatedAt = &now
	}
	if s.CustomerID == "" {
		s.CustomerID = a.CustomerID
	}
	if s.PaymentMethodID == "" {
		s.PaymentMethodID = a.PaymentMethodID
	}
	if s.ProductName == "" {
		s.ProductName = a.ProductName
	}
	if s.CheckoutSessionID == "" {
		s.CheckoutSessionID = a.SessionID
	}
	s.UpdatedAt = now
	return changed, nil
}

// Cancel moves any non-terminal schedule to cancelled.
func (s *PaymentSchedule) Cancel() error {
	if s.Status == StatusCancelled {
		return nil
	}
	if s.Status.IsTerminal() {
		return fmt.Errorf("cannot cancel schedule in %s status", s.Status)
	}
	s.Status = StatusCancelled
	s.UpdatedAt = clock.Now()
	return nil
}

// Recompute sets RemainingAmount from the pending charges and completes an
// active schedule with nothing left to collect. It reports whether the status
// changed.
func (s *PaymentSchedule) Recompute(charges []*ScheduledCharge) bool {
	s.RemainingAmount = RemainingAmount(charges)

	if s.Status != StatusActive || len(charges) == 0 {
		return false
	}
	for _, c := range charges {
		if c.Status == ChargeStatusPending || c.Status == ChargeStatusFailed {
			return false
		}
	}
	s.Status = StatusCompleted
	s.UpdatedAt = clock.Now()
	return true
}

// LinkClient attaches the client a converted lead became.
func (s *PaymentSchedule) LinkClient(clientID uuid.UUID) {
	id := clientID
	s.ClientID = &id
	s.UpdatedAt = clock.Now()
}

// ProgramEnd is the last day closer commissions accrue. The zero time means
// the term is open-ended.
func (s *PaymentSchedule) ProgramEnd() time.Time {
	if s.ProgramTermMonths <= 0 || s.ActivatedAt == nil {
		return time.Time{}
	}
	return s.ActivatedAt.AddDate(0, s.ProgramTermMonths, 0)
}

// WithinProgramTerm reports whether t falls inside the program term.
func (s *PaymentSchedule) WithinProgramTerm(t time.Time) bool {
	end := s.ProgramEnd()
	return end.IsZero() || !t.After(end)
}
