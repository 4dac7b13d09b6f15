package schedule

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/davidleathers/coaching-backoffice/internal/domain/values"
)

// Role is a party's part in a sale.
type Role string

const (
	RoleCoach    Role = "coach"
	RoleCloser   Role = "closer"
	RoleSetter   Role = "setter"
	RoleReferrer Role = "referrer"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleCoach, RoleCloser, RoleSetter, RoleReferrer:
		return true
	}
	return false
}

// CommissionSplit assigns a user a role on a schedule. Percentage is the
// user's share of that role's commission (100 when the role is not shared).
type CommissionSplit struct {
	UserID     uuid.UUID       `json:"user_id"`
	Role       Role            `json:"role"`
	Percentage decimal.Decimal `json:"percentage"`
}

// Share converts Percentage to a multiplier, treating zero as a full share.
func (c CommissionSplit) Share() decimal.Decimal {
	if c.Percentage.IsZero() {
		return decimal.NewFromInt(1)
	}
	return values.Percent(c.Percentage)
}

// ValidateSplits rejects unknown roles, nil users and per-role totals over 100%.
func ValidateSplits(splits []CommissionSplit) error {
	totals := make(map[Role]decimal.Decimal)
	for i, s := range splits {
		if !s.Role.IsValid() {
			return fmt.Errorf("split %d: invalid role %q", i, s.Role)
		}
		if s.UserID == uuid.Nil {
			return fmt.Errorf("split %d: user id is required", i)
		}
		if s.Percentage.IsNegative() || s.Percentage.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("split %d: percentage must be between 0 and 100", i)
		}
		totals[s.Role] = totals[s.Role].Add(s.Share().Mul(decimal.NewFromInt(100)))
	}
	for role, total := range totals {
		if total.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("%s splits exceed 100%%", role)
		}
	}
	return nil
}

// ByRole returns the splits for one role, in order.
func ByRole(splits []CommissionSplit, role Role) []CommissionSplit {
	var out []CommissionSplit
	for _, s := range splits {
		if s.Role == role {
			out = append(out, s)
		}
	}
	return out
}
