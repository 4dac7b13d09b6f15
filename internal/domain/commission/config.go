package commission

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/davidleathers/coaching-backoffice/internal/domain/schedule"
)

// SubscriptionConfig attaches commission splits to a recurring subscription.
type SubscriptionConfig struct {
	SubscriptionID    string                     `json:"subscription_id"`
	ClientID          uuid.UUID                  `json:"client_id"`
	AssignedCoachID   *uuid.UUID                 `json:"assigned_coach_id,omitempty"`
	CommissionSplits  []schedule.CommissionSplit `json:"commission_splits"`
	ProgramTermMonths int                        `json:"program_term_months,omitempty"`
	IsActive          bool                       `json:"is_active"`
	CreatedAt         time.Time                  `json:"created_at"`
	UpdatedAt         time.Time                  `json:"updated_at"`
}

// SyntheticSchedule builds the schedule a subscription invoice is commissioned
// against. Its id is the subscription id with the sub- prefix.
func (c *SubscriptionConfig) SyntheticSchedule(amount decimal.Decimal, customerID string, activatedAt time.Time) *schedule.PaymentSchedule {
	clientID := c.ClientID
	splits := append([]schedule.CommissionSplit(nil), c.CommissionSplits...)
	if c.AssignedCoachID != nil && len(schedule.ByRole(splits, schedule.RoleCoach)) == 0 {
		splits = append(splits, schedule.CommissionSplit{
			UserID:     *c.AssignedCoachID,
			Role:       schedule.RoleCoach,
			Percentage: decimal.NewFromInt(100),
		})
	}
	activated := activatedAt
	return &schedule.PaymentSchedule{
		ID:                schedule.SubscriptionPrefix + c.SubscriptionID,
		ClientID:          &clientID,
		Status:            schedule.StatusActive,
		PaymentType:       schedule.PaymentTypeSubscription,
		Amount:            amount,
		TotalAmount:       amount,
		RemainingAmount:   decimal.Zero,
		CommissionSplits:  splits,
		ProgramTermMonths: c.ProgramTermMonths,
		CustomerID:        customerID,
		ActivatedAt:       &activated,
		CreatedAt:         activatedAt,
		UpdatedAt:         activatedAt,
	}
}

// Validate checks a config before it is stored.
func (c *SubscriptionConfig) Validate() error {
	if c.SubscriptionID == "" {
		return fmt.Errorf("subscription id is required")
	}
	if c.ClientID == uuid.Nil {
		return fmt.Errorf("client id is required")
	}
	return schedule.ValidateSplits(c.CommissionSplits)
}

// Profile holds per-user commission overrides.
type Profile struct {
	UserID uuid.UUID `json:"user_id"`
	// CompanyDrivenRate replaces the default rate on company-driven clients.
	CompanyDrivenRate *decimal.Decimal `json:"company_driven_rate,omitempty"`
}
