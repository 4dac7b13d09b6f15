package commission

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/davidleathers/coaching-backoffice/internal/domain/crm"
	"github.com/davidleathers/coaching-backoffice/internal/domain/schedule"
	"github.com/davidleathers/coaching-backoffice/internal/domain/values"
)

// Calculation rule names recorded in CalculationBasis.Rule.
const (
	RuleCoachResign           = "coach_resign"
	RuleCoachDriven           = "coach_driven"
	RuleCompanyDriven         = "company_driven"
	RuleCompanyDrivenOverride = "company_driven_override"
	RuleCloserGross           = "closer_gross"
	RuleSetterGross           = "setter_gross"
	RuleReferrerFlat          = "referrer_flat"
)

// Rates are the commission parameters. Coach rates apply to the net amount;
// closer and setter rates apply to the gross amount.
type Rates struct {
	Resign        decimal.Decimal
	CoachDriven   decimal.Decimal
	CompanyDriven decimal.Decimal
	Closer        decimal.Decimal
	Setter        decimal.Decimal
	ReferrerBonus decimal.Decimal
}

// DefaultRates returns the standard compensation plan.
func DefaultRates() Rates {
	return Rates{
		Resign:        decimal.RequireFromString("0.70"),
		CoachDriven:   decimal.RequireFromString("0.70"),
		CompanyDriven: decimal.RequireFromString("0.50"),
		Closer:        decimal.RequireFromString("0.10"),
		Setter:        decimal.Zero,
		ReferrerBonus: decimal.NewFromInt(100),
	}
}

// Validate rejects rates outside [0,1] and a negative bonus.
func (r Rates) Validate() error {
	one := decimal.NewFromInt(1)
	for name, rate := range map[string]decimal.Decimal{
		"resign":         r.Resign,
		"coach_driven":   r.CoachDriven,
		"company_driven": r.CompanyDriven,
		"closer":         r.Closer,
		"setter":         r.Setter,
	} {
		if rate.IsNegative() || rate.GreaterThan(one) {
			return fmt.Errorf("%s rate %s must be between 0 and 1", name, rate)
		}
	}
	if r.ReferrerBonus.IsNegative() {
		return fmt.Errorf("referrer bonus cannot be negative")
	}
	return nil
}

// CoachRate picks the coach rate. Re-signs win over lead source; a
// company-driven client uses the coach's override when one is configured.
func (r Rates) CoachRate(source crm.LeadSource, isResign bool, profile *Profile) (decimal.Decimal, string, bool) {
	switch {
	case isResign:
		return r.Resign, RuleCoachResign, false
	case source == crm.LeadSourceCoachDriven:
		return r.CoachDriven, RuleCoachDriven, false
	case profile != nil && profile.CompanyDrivenRate != nil:
		return *profile.CompanyDrivenRate, RuleCompanyDrivenOverride, true
	default:
		return r.CompanyDriven, RuleCompanyDriven, false
	}
}

// PlanInput is everything the calculation needs, already loaded.
type PlanInput struct {
	PaymentID     uuid.UUID
	PaymentAmount decimal.Decimal
	Fee           *decimal.Decimal
	NetAmount     *decimal.Decimal
	PaymentDate   time.Time

	LeadSource      crm.LeadSource
	IsResign        bool
	AssignedCoachID *uuid.UUID

	// Schedule is nil for payments with no schedule; only the assigned coach
	// is paid then.
	Schedule *schedule.PaymentSchedule
	Profiles map[uuid.UUID]*Profile
	// ReferrersCredited lists referrers already paid on this schedule.
	ReferrersCredited map[uuid.UUID]bool
}

// Line is one planned ledger entry.
type Line struct {
	UserID uuid.UUID
	Role   schedule.Role
	Gross  decimal.Decimal
	Amount decimal.Decimal
	Basis  CalculationBasis
}

// Plan computes the commission lines for a payment. It is pure; the caller
// persists the result. Zero-value lines are dropped.
func (r Rates) Plan(in PlanInput, now time.Time) []Line {
	net := in.PaymentAmount
	if in.NetAmount != nil {
		net = *in.NetAmount
	}

	var splits []schedule.CommissionSplit
	scheduleID := ""
	if in.Schedule != nil {
		splits = in.Schedule.CommissionSplits
		scheduleID = in.Schedule.ID
	}

	base := CalculationBasis{
		PaymentAmount: in.PaymentAmount,
		Fee:           in.Fee,
		NetAmount:     in.NetAmount,
		LeadSource:    string(in.LeadSource),
		IsResign:      in.IsResign,
		ScheduleID:    scheduleID,
		CalculatedAt:  now,
	}

	var lines []Line
	add := func(userID uuid.UUID, role schedule.Role, amount decimal.Decimal, basis CalculationBasis) {
		amount = values.RoundCents(amount)
		if !amount.IsPositive() {
			return
		}
		lines = append(lines, Line{UserID: userID, Role: role, Gross: in.PaymentAmount, Amount: amount, Basis: basis})
	}

	coaches := schedule.ByRole(splits, schedule.RoleCoach)
	if len(coaches) == 0 && in.AssignedCoachID != nil {
		coaches = []schedule.CommissionSplit{{UserID: *in.AssignedCoachID, Role: schedule.RoleCoach}}
	}
	for _, c := range coaches {
		rate, rule, override := r.CoachRate(in.LeadSource, in.IsResign, in.Profiles[c.UserID])
		b := base
		b.Rule, b.Rate, b.BaseAmount, b.Share, b.RateOverride = rule, rate, net, c.Share(), override
		add(c.UserID, schedule.RoleCoach, net.Mul(rate).Mul(c.Share()), b)
	}

	inTerm := in.Schedule == nil || in.Schedule.WithinProgramTerm(in.PaymentDate)
	if inTerm {
		for _, c := range schedule.ByRole(splits, schedule.RoleCloser) {
			b := base
			b.Rule, b.Rate, b.BaseAmount, b.Share = RuleCloserGross, r.Closer, in.PaymentAmount, c.Share()
			add(c.UserID, schedule.RoleCloser, in.PaymentAmount.Mul(r.Closer).Mul(c.Share()), b)
		}
		for _, c := range schedule.ByRole(splits, schedule.RoleSetter) {
			b := base
			b.Rule, b.Rate, b.BaseAmount, b.Share = RuleSetterGross, r.Setter, in.PaymentAmount, c.Share()
			add(c.UserID, schedule.RoleSetter, in.PaymentAmount.Mul(r.Setter).Mul(c.Share()), b)
		}
	}

	for _, c := range schedule.ByRole(splits, schedule.RoleReferrer) {
		if in.ReferrersCredited[c.UserID] {
			continue
		}
		b := base
		b.Rule, b.Rate, b.BaseAmount, b.Share = RuleReferrerFlat, decimal.Zero, r.ReferrerBonus, c.Share()
		add(c.UserID, schedule.RoleReferrer, r.ReferrerBonus.Mul(c.Share()), b)
	}

	return lines
}
