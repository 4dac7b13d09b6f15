// Package repository implements the service repositories on PostgreSQL.
package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/davidleathers/coaching-backoffice/internal/infrastructure/database"
	commissionsvc "github.com/davidleathers/coaching-backoffice/internal/service/commission"
	"github.com/davidleathers/coaching-backoffice/internal/service/conversion"
	"github.com/davidleathers/coaching-backoffice/internal/service/disputes"
	"github.com/davidleathers/coaching-backoffice/internal/service/onboarding"
	payrollsvc "github.com/davidleathers/coaching-backoffice/internal/service/payroll"
	"github.com/davidleathers/coaching-backoffice/internal/service/reconciliation"
	"github.com/davidleathers/coaching-backoffice/internal/service/schedules"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Repositories holds all repository instances
type Repositories struct {
	CRM        *CRMRepository
	Onboarding *OnboardingRepository
	Schedules  *ScheduleRepository
	Payments   *PaymentRepository
	Commission *CommissionRepository
	Payroll    *PayrollRepository
}

// NewRepositories creates a new repository collection
func NewRepositories(db *database.DB) *Repositories {
	return &Repositories{
		CRM:        NewCRMRepository(db),
		Onboarding: NewOnboardingRepository(db),
		Schedules:  NewScheduleRepository(db),
		Payments:   NewPaymentRepository(db),
		Commission: NewCommissionRepository(db),
		Payroll:    NewPayrollRepository(db),
	}
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func decimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func marshalJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal json: %w", err)
	}
	return b, nil
}

// execBatch runs every queued statement and sums the affected rows.
func execBatch(ctx context.Context, q querier, b *pgx.Batch) (int, error) {
	br := q.SendBatch(ctx, b)
	defer br.Close()

	n := 0
	for i := 0; i < b.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			return n, err
		}
		n += int(tag.RowsAffected())
	}
	return n, br.Close()
}

var (
	_ reconciliation.ClientRepository  = (*CRMRepository)(nil)
	_ reconciliation.PaymentRepository = (*PaymentRepository)(nil)
	_ conversion.ClientRepository      = (*CRMRepository)(nil)
	_ conversion.LeadRepository        = (*CRMRepository)(nil)
	_ conversion.ActivityRepository    = (*CRMRepository)(nil)
	_ onboarding.Repository            = (*OnboardingRepository)(nil)
	_ schedules.Repository             = (*ScheduleRepository)(nil)
	_ conversion.ScheduleLinker        = (*ScheduleRepository)(nil)
	_ commissionsvc.PaymentRepository  = (*PaymentRepository)(nil)
	_ commissionsvc.ClientReader       = (*CRMRepository)(nil)
	_ commissionsvc.ScheduleRepository = (*ScheduleRepository)(nil)
	_ commissionsvc.Repository         = (*CommissionRepository)(nil)
	_ disputes.PaymentRepository       = (*PaymentRepository)(nil)
	_ disputes.CommissionRepository    = (*CommissionRepository)(nil)
	_ payrollsvc.Repository            = (*PayrollRepository)(nil)
)
