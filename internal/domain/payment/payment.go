package payment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment is the system-of-record for a single captured money movement reported
// by the payment provider. It is keyed by the provider's payment id and is never
// deleted; refunds and disputes only move its status.
type Payment struct {
	ID                uuid.UUID        `json:"id"`
	ProviderPaymentID string           `json:"provider_payment_id"`
	Amount            decimal.Decimal  `json:"amount"`
	Fee               *decimal.Decimal `json:"fee,omitempty"`
	NetAmount         *decimal.Decimal `json:"net_amount,omitempty"`
	RefundedAmount    decimal.Decimal  `json:"refunded_amount"`
	Currency          string           `json:"currency"`
	Status            Status           `json:"status"`

	ClientID    *uuid.UUID `json:"client_id,omitempty"`
	ClientEmail string     `json:"client_email,omitempty"`
	CustomerID  string     `json:"customer_id,omitempty"`
	ProductName string     `json:"product_name,omitempty"`

	// ScheduleID links the payment to the payment schedule (or synthetic
	// subscription schedule) whose commission splits apply.
	ScheduleID     *string `json:"schedule_id,omitempty"`
	SubscriptionID string  `json:"subscription_id,omitempty"`

	PaymentDate          time.Time `json:"payment_date"`
	CommissionCalculated bool      `json:"commission_calculated"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Status mirrors the provider's payment-intent statuses plus the refund and
// dispute states this system adds.
type Status string

const (
	StatusRequiresPaymentMethod Status = "requires_payment_method"
	StatusRequiresAction        Status = "requires_action"
	StatusRequiresConfirmation  Status = "requires_confirmation"
	StatusProcessing            Status = "processing"
	StatusSucceeded             Status = "succeeded"
	StatusFailed                Status = "failed"
	StatusRefunded              Status = "refunded"
	StatusPartiallyRefunded     Status = "partially_refunded"
	StatusDisputed              Status = "disputed"
)

func (s Status) String() string {
	return string(s)
}

func (s Status) IsValid() bool {
	switch s {
	case StatusRequiresPaymentMethod, StatusRequiresAction, StatusRequiresConfirmation,
		StatusProcessing, StatusSucceeded, StatusFailed, StatusRefunded,
		StatusPartiallyRefunded, StatusDisputed:
		return true
	}
	return false
}

// IsPostSettlement reports statuses that a late or re-delivered success event
// must not overwrite.
func (s Status) IsPostSettlement() bool {
	switch s {
	case StatusRefunded, StatusPartiallyRefunded, StatusDisputed:
		return true
	}
	return false
}

// Record is the writer's input: everything known about a payment from a
// single provider event. Optional fields left empty never clear stored values.
type Record struct {
	ProviderPaymentID string
	Amount            decimal.Decimal
	Fee               *decimal.Decimal
	NetAmount         *decimal.Decimal
	Currency          string
	Status            Status
	ClientID          *uuid.UUID
	ClientEmail       string
	CustomerID        string
	ProductName       string
	ScheduleID        *string
	SubscriptionID    string
	PaymentDate       time.Time
}

// Validate checks the fields every upsert needs.
func (r *Record) Validate() error {
	if r.ProviderPaymentID == "" {
		return fmt.Errorf("provider payment id is required")
	}
	if r.Amount.IsNegative() {
		return fmt.Errorf("amount cannot be negative")
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("invalid payment status %q", r.Status)
	}
	if r.PaymentDate.IsZero() {
		return fmt.Errorf("payment date is required")
	}
	return nil
}

// ApplyRefund records the cumulative refunded amount and moves the payment to
// refunded or partially_refunded.
func (p *Payment) ApplyRefund(refunded decimal.Decimal) error {
	if refunded.IsNegative() {
		return fmt.Errorf("refunded amount cannot be negative")
	}
	if refunded.GreaterThan(p.Amount) {
		return fmt.Errorf("refunded amount %s exceeds payment amount %s", refunded, p.Amount)
	}
	p.RefundedAmount = refunded
	if refunded.Equal(p.Amount) {
		p.Status = StatusRefunded
	} else if refunded.IsPositive() {
		p.Status = StatusPartiallyRefunded
	}
	return nil
}

// RefundedFraction is the share of the payment that has been refunded, in [0,1].
func (p *Payment) RefundedFraction() decimal.Decimal {
	if p.Amount.IsZero() {
		return decimal.Zero
	}
	return p.RefundedAmount.Div(p.Amount)
}
