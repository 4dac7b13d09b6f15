package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/davidleathers/coaching-backoffice/internal/domain/clock"
	"github.com/davidleathers/coaching-backoffice/internal/domain/schedule"
	"github.com/davidleathers/coaching-backoffice/internal/infrastructure/database"
)

// ScheduleRepository stores payment schedules and their scheduled charges.
type ScheduleRepository struct {
	db *database.DB
}

func NewScheduleRepository(db *database.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

func (r *ScheduleRepository) GetSchedule(ctx context.Context, id string) (*schedule.PaymentSchedule, error) {
	var (
		s      schedule.PaymentSchedule
		splits []byte
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, client_id, lead_id, status, payment_type, amount, total_amount, remaining_amount,
			commission_splits, program_term_months, customer_id, payment_method_id, product_name,
			checkout_session_id, activated_at, created_at, updated_at
		FROM payment_schedules WHERE id = $1`, id).Scan(
		&s.ID, &s.ClientID, &s.LeadID, &s.Status, &s.PaymentType, &s.Amount, &s.TotalAmount, &s.RemainingAmount,
		&splits, &s.ProgramTermMonths, &s.CustomerID, &s.PaymentMethodID, &s.ProductName,
		&s.CheckoutSessionID, &s.ActivatedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, WrapRepositoryError(err, "payment schedule", "get schedule")
	}
	if err := json.Unmarshal(splits, &s.CommissionSplits); err != nil {
		return nil, WrapRepositoryError(err, "payment schedule", "decode commission splits")
	}
	return &s, nil
}

// SaveSchedule inserts or fully replaces a schedule.
func (r *ScheduleRepository) SaveSchedule(ctx context.Context, s *schedule.PaymentSchedule) error {
	splits := s.CommissionSplits
	if splits == nil {
		splits = []schedule.CommissionSplit{}
	}
	raw, err := marshalJSON(splits)
	if err != nil {
		return WrapRepositoryError(err, "payment schedule", "encode commission splits")
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO payment_schedules (id, client_id, lead_id, status, payment_type, amount, total_amount,
			remaining_amount, commission_splits, program_term_months, customer_id, payment_method_id,
			product_name, checkout_session_id, activated_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			client_id = EXCLUDED.client_id,
			lead_id = EXCLUDED.lead_id,
			status = EXCLUDED.status,
			payment_type = EXCLUDED.payment_type,
			amount = EXCLUDED.amount,
			total_amount = EXCLUDED.total_amount,
			remaining_amount = EXCLUDED.remaining_amount,
			commission_splits = EXCLUDED.commission_splits,
			program_term_months = EXCLUDED.program_term_months,
			customer_id = EXCLUDED.customer_id,
			payment_method_id = EXCLUDED.payment_method_id,
			product_name = EXCLUDED.product_name,
			checkout_session_id = EXCLUDED.checkout_session_id,
			activated_at = EXCLUDED.activated_at,
			updated_at = EXCLUDED.updated_at`,
		s.ID, s.ClientID, s.LeadID, s.Status, s.PaymentType, s.Amount, s.TotalAmount,
		s.RemainingAmount, raw, s.ProgramTermMonths, s.CustomerID, s.PaymentMethodID,
		s.ProductName, s.CheckoutSessionID, s.ActivatedAt, s.CreatedAt, s.UpdatedAt,
	)
	return WrapRepositoryError(err, "payment schedule", "save schedule")
}

func (r *ScheduleRepository) LinkClient(ctx context.Context, scheduleID string, clientID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE payment_schedules SET client_id = $2, updated_at = $3 WHERE id = $1`,
		scheduleID, clientID, clock.Now())
	if err != nil {
		return WrapRepositoryError(err, "payment schedule", "link client")
	}
	if tag.RowsAffected() == 0 {
		return WrapRepositoryError(ErrNotFound, "payment schedule", "link client")
	}
	return nil
}

const chargeColumns = `id, schedule_id, amount, due_date, status, failure_note, paid_at, created_at, updated_at`

func scanCharge(row pgx.Row) (*schedule.ScheduledCharge, error) {
	var c schedule.ScheduledCharge
	err := row.Scan(&c.ID, &c.ScheduleID, &c.Amount, &c.DueDate, &c.Status, &c.FailureNote, &c.PaidAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCharges returns a schedule's charges ordered by due date.
func (r *ScheduleRepository) ListCharges(ctx context.Context, scheduleID string) ([]*schedule.ScheduledCharge, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+chargeColumns+`
		FROM scheduled_charges
		WHERE schedule_id = $1
		ORDER BY due_date, created_at`, scheduleID)
	if err != nil {
		return nil, WrapRepositoryError(err, "scheduled charge", "list charges")
	}
	defer rows.Close()

	var out []*schedule.ScheduledCharge
	for rows.Next() {
		c, err := scanCharge(rows)
		if err != nil {
			return nil, WrapRepositoryError(err, "scheduled charge", "scan charge")
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapRepositoryError(err, "scheduled charge", "list charges")
	}
	return out, nil
}

func (r *ScheduleRepository) GetCharge(ctx context.Context, chargeID uuid.UUID) (*schedule.ScheduledCharge, error) {
	c, err := scanCharge(r.db.QueryRow(ctx, `SELECT `+chargeColumns+` FROM scheduled_charges WHERE id = $1`, chargeID))
	if err != nil {
		return nil, WrapRepositoryError(err, "scheduled charge", "get charge")
	}
	return c, nil
}

// SaveCharge inserts or fully replaces a charge.
func (r *ScheduleRepository) SaveCharge(ctx context.Context, c *schedule.ScheduledCharge) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO scheduled_charges (`+chargeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			amount = EXCLUDED.amount,
			due_date = EXCLUDED.due_date,
			status = EXCLUDED.status,
			failure_note = EXCLUDED.failure_note,
			paid_at = EXCLUDED.paid_at,
			updated_at = EXCLUDED.updated_at`,
		c.ID, c.ScheduleID, c.Amount, c.DueDate, c.Status, c.FailureNote, c.PaidAt, c.CreatedAt, c.UpdatedAt,
	)
	return WrapRepositoryError(err, "scheduled charge", "save charge")
}
