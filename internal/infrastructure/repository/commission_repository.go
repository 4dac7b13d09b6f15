package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/davidleathers/coaching-backoffice/internal/domain/clock"
	"github.com/davidleathers/coaching-backoffice/internal/domain/commission"
	"github.com/davidleathers/coaching-backoffice/internal/domain/schedule"
	"github.com/davidleathers/coaching-backoffice/internal/infrastructure/database"
)

// CommissionRepository stores ledger entries, adjustments, commission
// profiles and subscription commission configs.
type CommissionRepository struct {
	db *database.DB
}

func NewCommissionRepository(db *database.DB) *CommissionRepository {
	return &CommissionRepository{db: db}
}

// CreateLedgerEntries skips entries whose (payment, user, role) already exists
// and referrer entries for a (schedule, user) already credited.
func (r *CommissionRepository) CreateLedgerEntries(ctx context.Context, entries []*commission.LedgerEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	b := &pgx.Batch{}
	for _, e := range entries {
		basis, err := marshalJSON(e.Basis)
		if err != nil {
			return 0, WrapRepositoryError(err, "ledger entry", "encode calculation basis")
		}
		b.Queue(`
			INSERT INTO commission_ledger_entries (id, user_id, client_id, payment_id, schedule_id,
				gross_amount, commission_amount, split_role, calculation_basis, status, paid_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT DO NOTHING`,
			e.ID, e.UserID, e.ClientID, e.PaymentID, e.ScheduleID,
			e.GrossAmount, e.CommissionAmount, e.Role, basis, e.Status, e.PaidAt, e.CreatedAt)
	}
	n, err := execBatch(ctx, r.db, b)
	if err != nil {
		return n, WrapRepositoryError(err, "ledger entry", "create ledger entries")
	}
	return n, nil
}

// CreditedReferrers returns the referrers already paid on a schedule.
func (r *CommissionRepository) CreditedReferrers(ctx context.Context, scheduleID string) (map[uuid.UUID]bool, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT user_id
		FROM commission_ledger_entries
		WHERE schedule_id = $1 AND split_role = $2`, scheduleID, schedule.RoleReferrer)
	if err != nil {
		return nil, WrapRepositoryError(err, "ledger entry", "list credited referrers")
	}
	defer rows.Close()

	out := make(map[uuid.UUID]bool)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, WrapRepositoryError(err, "ledger entry", "scan referrer")
		}
		out[id] = true
	}
	return out, WrapRepositoryError(rows.Err(), "ledger entry", "list credited referrers")
}

func (r *CommissionRepository) GetProfiles(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]*commission.Profile, error) {
	out := make(map[uuid.UUID]*commission.Profile)
	if len(userIDs) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT user_id, company_driven_rate
		FROM commission_profiles
		WHERE user_id = ANY($1)`, userIDs)
	if err != nil {
		return nil, WrapRepositoryError(err, "commission profile", "get profiles")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p    commission.Profile
			rate decimal.NullDecimal
		)
		if err := rows.Scan(&p.UserID, &rate); err != nil {
			return nil, WrapRepositoryError(err, "commission profile", "scan profile")
		}
		p.CompanyDrivenRate = decimalPtr(rate)
		out[p.UserID] = &p
	}
	return out, WrapRepositoryError(rows.Err(), "commission profile", "get profiles")
}

// SaveProfile inserts or replaces a user's commission overrides.
func (r *CommissionRepository) SaveProfile(ctx context.Context, p *commission.Profile) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO commission_profiles (user_id, company_driven_rate)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET company_driven_rate = EXCLUDED.company_driven_rate`,
		p.UserID, nullDecimal(p.CompanyDrivenRate))
	return WrapRepositoryError(err, "commission profile", "save profile")
}

const entryColumns = `
	id, user_id, client_id, payment_id, schedule_id, gross_amount, commission_amount,
	split_role, calculation_basis, status, paid_at, created_at`

func (r *CommissionRepository) listEntries(ctx context.Context, q querier, operation, where string, args ...any) ([]*commission.LedgerEntry, error) {
	rows, err := q.Query(ctx, `SELECT `+entryColumns+` FROM commission_ledger_entries WHERE `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, WrapRepositoryError(err, "ledger entry", operation)
	}
	defer rows.Close()

	var out []*commission.LedgerEntry
	for rows.Next() {
		var (
			e     commission.LedgerEntry
			basis []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.ClientID, &e.PaymentID, &e.ScheduleID, &e.GrossAmount,
			&e.CommissionAmount, &e.Role, &basis, &e.Status, &e.PaidAt, &e.CreatedAt); err != nil {
			return nil, WrapRepositoryError(err, "ledger entry", operation)
		}
		if err := json.Unmarshal(basis, &e.Basis); err != nil {
			return nil, WrapRepositoryError(err, "ledger entry", "decode calculation basis")
		}
		out = append(out, &e)
	}
	return out, WrapRepositoryError(rows.Err(), "ledger entry", operation)
}

func (r *CommissionRepository) ListEntriesByUser(ctx context.Context, userID uuid.UUID) ([]*commission.LedgerEntry, error) {
	return r.listEntries(ctx, r.db, "list entries by user", `user_id = $1`, userID)
}

func (r *CommissionRepository) ListEntriesByPayment(ctx context.Context, paymentID uuid.UUID) ([]*commission.LedgerEntry, error) {
	return r.listEntries(ctx, r.db, "list entries by payment", `payment_id = $1`, paymentID)
}

func (r *CommissionRepository) listAdjustments(ctx context.Context, operation, where string, args ...any) ([]*commission.Adjustment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, ledger_entry_id, payment_id, amount, reason, COALESCE(source_key, ''), created_at
		FROM commission_adjustments
		WHERE `+where+`
		ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, WrapRepositoryError(err, "commission adjustment", operation)
	}
	defer rows.Close()

	var out []*commission.Adjustment
	for rows.Next() {
		var a commission.Adjustment
		if err := rows.Scan(&a.ID, &a.UserID, &a.LedgerEntryID, &a.PaymentID, &a.Amount, &a.Reason, &a.SourceKey, &a.CreatedAt); err != nil {
			return nil, WrapRepositoryError(err, "commission adjustment", operation)
		}
		out = append(out, &a)
	}
	return out, WrapRepositoryError(rows.Err(), "commission adjustment", operation)
}

func (r *CommissionRepository) ListAdjustmentsByUser(ctx context.Context, userID uuid.UUID) ([]*commission.Adjustment, error) {
	return r.listAdjustments(ctx, "list adjustments by user", `user_id = $1`, userID)
}

func (r *CommissionRepository) ListAdjustmentsByEntry(ctx context.Context, entryID uuid.UUID) ([]*commission.Adjustment, error) {
	return r.listAdjustments(ctx, "list adjustments by entry", `ledger_entry_id = $1`, entryID)
}

// CreateAdjustment reports false when the source key was already used.
func (r *CommissionRepository) CreateAdjustment(ctx context.Context, a *commission.Adjustment) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO commission_adjustments (id, user_id, ledger_entry_id, payment_id, amount, reason, source_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (source_key) DO NOTHING`,
		a.ID, a.UserID, a.LedgerEntryID, a.PaymentID, a.Amount, a.Reason, nullIfEmpty(a.SourceKey), a.CreatedAt)
	if err != nil {
		return false, WrapRepositoryError(err, "commission adjustment", "create adjustment")
	}
	return tag.RowsAffected() == 1, nil
}

func (r *CommissionRepository) GetSubscriptionConfig(ctx context.Context, subscriptionID string) (*commission.SubscriptionConfig, error) {
	var (
		c      commission.SubscriptionConfig
		splits []byte
	)
	err := r.db.QueryRow(ctx, `
		SELECT subscription_id, client_id, assigned_coach_id, commission_splits, program_term_months,
			is_active, created_at, updated_at
		FROM subscription_commission_configs
		WHERE subscription_id = $1`, subscriptionID).Scan(
		&c.SubscriptionID, &c.ClientID, &c.AssignedCoachID, &splits, &c.ProgramTermMonths,
		&c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, WrapRepositoryError(err, "subscription commission config", "get subscription config")
	}
	if err := json.Unmarshal(splits, &c.CommissionSplits); err != nil {
		return nil, WrapRepositoryError(err, "subscription commission config", "decode commission splits")
	}
	return &c, nil
}

// SaveSubscriptionConfig inserts or replaces a config.
func (r *CommissionRepository) SaveSubscriptionConfig(ctx context.Context, c *commission.SubscriptionConfig) error {
	splits := c.CommissionSplits
	if splits == nil {
		splits = []schedule.CommissionSplit{}
	}
	raw, err := marshalJSON(splits)
	if err != nil {
		return WrapRepositoryError(err, "subscription commission config", "encode commission splits")
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO subscription_commission_configs (subscription_id, client_id, assigned_coach_id,
			commission_splits, program_term_months, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (subscription_id) DO UPDATE SET
			client_id = EXCLUDED.client_id,
			assigned_coach_id = EXCLUDED.assigned_coach_id,
			commission_splits = EXCLUDED.commission_splits,
			program_term_months = EXCLUDED.program_term_months,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at`,
		c.SubscriptionID, c.ClientID, c.AssignedCoachID, raw, c.ProgramTermMonths, c.IsActive, c.CreatedAt, c.UpdatedAt)
	return WrapRepositoryError(err, "subscription commission config", "save subscription config")
}

func (r *CommissionRepository) SetSubscriptionConfigActive(ctx context.Context, subscriptionID string, active bool) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE subscription_commission_configs SET is_active = $2, updated_at = $3 WHERE subscription_id = $1`,
		subscriptionID, active, clock.Now())
	if err != nil {
		return WrapRepositoryError(err, "subscription commission config", "set subscription config active")
	}
	if tag.RowsAffected() == 0 {
		return WrapRepositoryError(ErrNotFound, "subscription commission config", "set subscription config active")
	}
	return nil
}
