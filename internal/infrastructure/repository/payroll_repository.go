package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/davidleathers/coaching-backoffice/internal/domain/commission"
	apperrors "github.com/davidleathers/coaching-backoffice/internal/domain/errors"
	"github.com/davidleathers/coaching-backoffice/internal/domain/payroll"
	"github.com/davidleathers/coaching-backoffice/internal/infrastructure/database"
)

// PayrollRepository stores payroll runs and the entries they batch.
type PayrollRepository struct {
	db      *database.DB
	entries *CommissionRepository
}

func NewPayrollRepository(db *database.DB) *PayrollRepository {
	return &PayrollRepository{db: db, entries: NewCommissionRepository(db)}
}

// ListUnbatchedPendingEntries returns pending entries created no later than
// before that no live run holds.
func (r *PayrollRepository) ListUnbatchedPendingEntries(ctx context.Context, before time.Time) ([]*commission.LedgerEntry, error) {
	return r.entries.listEntries(ctx, r.db, "list unbatched entries", `
		status = $1
		AND created_at <= $2
		AND NOT EXISTS (SELECT 1 FROM payroll_run_entries pre WHERE pre.ledger_entry_id = commission_ledger_entries.id)`,
		commission.EntryStatusPending, before)
}

// CreatePayrollRun inserts the run and claims its entries in one transaction.
// An entry already claimed by another run aborts with a conflict.
func (r *PayrollRepository) CreatePayrollRun(ctx context.Context, run *payroll.Run) error {
	err := r.db.Transaction(ctx, func(tx pgx.Tx) error {
		if err := insertRun(ctx, tx, run); err != nil {
			return err
		}
		b := &pgx.Batch{}
		for _, id := range run.EntryIDs {
			b.Queue(`
				INSERT INTO payroll_run_entries (ledger_entry_id, run_id)
				VALUES ($1, $2)
				ON CONFLICT (ledger_entry_id) DO NOTHING`, id, run.ID)
		}
		n, err := execBatch(ctx, tx, b)
		if err != nil {
			return err
		}
		if n != len(run.EntryIDs) {
			return apperrors.NewConflictError("ledger entry already belongs to a payroll run")
		}
		return nil
	})
	return WrapRepositoryError(err, "payroll run", "create payroll run")
}

func insertRun(ctx context.Context, q querier, run *payroll.Run) error {
	_, err := q.Exec(ctx, `
		INSERT INTO payroll_runs (id, status, period_end, total_payout, entry_ids, created_by,
			created_at, approved_at, approved_by, paid_at, voided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		run.ID, run.Status, run.PeriodEnd, run.TotalPayout, run.EntryIDs, run.CreatedBy,
		run.CreatedAt, run.ApprovedAt, run.ApprovedBy, run.PaidAt, run.VoidedAt)
	return err
}

func (r *PayrollRepository) GetPayrollRun(ctx context.Context, id uuid.UUID) (*payroll.Run, error) {
	var run payroll.Run
	err := r.db.QueryRow(ctx, `
		SELECT id, status, period_end, total_payout, entry_ids, created_by,
			created_at, approved_at, approved_by, paid_at, voided_at
		FROM payroll_runs WHERE id = $1`, id).Scan(
		&run.ID, &run.Status, &run.PeriodEnd, &run.TotalPayout, &run.EntryIDs, &run.CreatedBy,
		&run.CreatedAt, &run.ApprovedAt, &run.ApprovedBy, &run.PaidAt, &run.VoidedAt,
	)
	if err != nil {
		return nil, WrapRepositoryError(err, "payroll run", "get payroll run")
	}
	return &run, nil
}

// UpdatePayrollRun persists status transitions. The batched entries and the
// total never change after creation.
func (r *PayrollRepository) UpdatePayrollRun(ctx context.Context, run *payroll.Run) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE payroll_runs
		SET status = $2, approved_at = $3, approved_by = $4, paid_at = $5, voided_at = $6
		WHERE id = $1`,
		run.ID, run.Status, run.ApprovedAt, run.ApprovedBy, run.PaidAt, run.VoidedAt)
	if err != nil {
		return WrapRepositoryError(err, "payroll run", "update payroll run")
	}
	if tag.RowsAffected() == 0 {
		return WrapRepositoryError(ErrNotFound, "payroll run", "update payroll run")
	}
	return nil
}

// ReleasePayrollEntries frees a voided run's entries for a later run.
func (r *PayrollRepository) ReleasePayrollEntries(ctx context.Context, runID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM payroll_run_entries WHERE run_id = $1`, runID)
	return WrapRepositoryError(err, "payroll run", "release payroll entries")
}

func (r *PayrollRepository) MarkEntriesPaid(ctx context.Context, entryIDs []uuid.UUID, at time.Time) error {
	if len(entryIDs) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `
		UPDATE commission_ledger_entries SET status = $2, paid_at = $3 WHERE id = ANY($1)`,
		entryIDs, commission.EntryStatusPaid, at)
	return WrapRepositoryError(err, "ledger entry", "mark entries paid")
}
