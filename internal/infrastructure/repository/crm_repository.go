package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/davidleathers/coaching-backoffice/internal/domain/clock"
	"github.com/davidleathers/coaching-backoffice/internal/domain/crm"
	"github.com/davidleathers/coaching-backoffice/internal/infrastructure/database"
)

// CRMRepository stores clients, leads, their activity timeline and notes.
type CRMRepository struct {
	db *database.DB
}

func NewCRMRepository(db *database.DB) *CRMRepository {
	return &CRMRepository{db: db}
}

const clientColumns = `
	id, name, email, phone, customer_id, status, client_type, assigned_coach_id,
	lead_source, is_resign, sold_by_user_id, appointment_setter_id, lead_id,
	created_at, updated_at`

func scanClient(row pgx.Row) (*crm.Client, error) {
	var c crm.Client
	err := row.Scan(
		&c.ID, &c.Name, &c.Email, &c.Phone, &c.CustomerID, &c.Status, &c.ClientType, &c.AssignedCoachID,
		&c.LeadSource, &c.IsResign, &c.SoldByUserID, &c.AppointmentSetterID, &c.LeadID,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// getClientWhere loads one client and its coach history.
func (r *CRMRepository) getClientWhere(ctx context.Context, q querier, where string, args ...any) (*crm.Client, error) {
	c, err := scanClient(q.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE `+where, args...))
	if err != nil {
		return nil, WrapRepositoryError(err, "client", "get client")
	}

	rows, err := q.Query(ctx, `
		SELECT coach_id, started_at, ended_at
		FROM client_coach_history
		WHERE client_id = $1
		ORDER BY started_at`, c.ID)
	if err != nil {
		return nil, WrapRepositoryError(err, "client", "get coach history")
	}
	defer rows.Close()

	for rows.Next() {
		var h crm.CoachHistoryEntry
		if err := rows.Scan(&h.CoachID, &h.StartedAt, &h.EndedAt); err != nil {
			return nil, WrapRepositoryError(err, "client", "scan coach history")
		}
		c.CoachHistory = append(c.CoachHistory, h)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapRepositoryError(err, "client", "get coach history")
	}
	return c, nil
}

func (r *CRMRepository) GetClient(ctx context.Context, id uuid.UUID) (*crm.Client, error) {
	return r.getClientWhere(ctx, r.db, `id = $1`, id)
}

func (r *CRMRepository) GetClientByLeadID(ctx context.Context, leadID uuid.UUID) (*crm.Client, error) {
	return r.getClientWhere(ctx, r.db, `lead_id = $1`, leadID)
}

// FindByCustomerID returns the oldest client with the provider customer id.
func (r *CRMRepository) FindByCustomerID(ctx context.Context, customerID string) (*crm.Client, error) {
	return r.getClientWhere(ctx, r.db, `customer_id <> '' AND customer_id = $1 ORDER BY created_at LIMIT 1`, customerID)
}

// FindByEmail matches case-insensitively and returns the oldest client.
func (r *CRMRepository) FindByEmail(ctx context.Context, email string) (*crm.Client, error) {
	return r.getClientWhere(ctx, r.db, `email <> '' AND LOWER(email) = LOWER($1) ORDER BY created_at LIMIT 1`, email)
}

// CreateClient inserts the client with its coach history. lead_id is unique,
// so a concurrent conversion of the same lead returns the existing client.
func (r *CRMRepository) CreateClient(ctx context.Context, c *crm.Client) (*crm.Client, bool, error) {
	var (
		out     *crm.Client
		created bool
	)
	err := r.db.Transaction(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO clients (`+clientColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (lead_id) DO NOTHING`,
			c.ID, c.Name, c.Email, c.Phone, c.CustomerID, c.Status, c.ClientType, c.AssignedCoachID,
			c.LeadSource, c.IsResign, c.SoldByUserID, c.AppointmentSetterID, c.LeadID,
			c.CreatedAt, c.UpdatedAt,
		)
		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			out, err = r.getClientWhere(ctx, tx, `lead_id = $1`, c.LeadID)
			return err
		}

		for _, h := range c.CoachHistory {
			if _, err := tx.Exec(ctx, `
				INSERT INTO client_coach_history (client_id, coach_id, started_at, ended_at)
				VALUES ($1, $2, $3, $4)`,
				c.ID, h.CoachID, h.StartedAt, h.EndedAt); err != nil {
				return err
			}
		}
		created = true
		out, err = r.getClientWhere(ctx, tx, `id = $1`, c.ID)
		return err
	})
	if err != nil {
		return nil, false, WrapRepositoryError(err, "client", "create client")
	}
	return out, created, nil
}

func (r *CRMRepository) UpdateClientStatus(ctx context.Context, id uuid.UUID, status crm.ClientStatus) error {
	tag, err := r.db.Exec(ctx, `UPDATE clients SET status = $2, updated_at = $3 WHERE id = $1`, id, status, clock.Now())
	if err != nil {
		return WrapRepositoryError(err, "client", "update client status")
	}
	if tag.RowsAffected() == 0 {
		return WrapRepositoryError(ErrNotFound, "client", "update client status")
	}
	return nil
}

// BackfillCustomerID only fills an empty customer id.
func (r *CRMRepository) BackfillCustomerID(ctx context.Context, clientID uuid.UUID, customerID string) error {
	return r.backfill(ctx, "clients", "client", clientID, customerID)
}

func (r *CRMRepository) BackfillLeadCustomerID(ctx context.Context, leadID uuid.UUID, customerID string) error {
	return r.backfill(ctx, "leads", "lead", leadID, customerID)
}

func (r *CRMRepository) backfill(ctx context.Context, table, resource string, id uuid.UUID, customerID string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET customer_id = CASE WHEN customer_id = '' THEN $2 ELSE customer_id END
		WHERE id = $1`, table)
	tag, err := r.db.Exec(ctx, query, id, customerID)
	if err != nil {
		return WrapRepositoryError(err, resource, "backfill customer id")
	}
	if tag.RowsAffected() == 0 {
		return WrapRepositoryError(ErrNotFound, resource, "backfill customer id")
	}
	return nil
}

func (r *CRMRepository) GetLead(ctx context.Context, id uuid.UUID) (*crm.Lead, error) {
	var l crm.Lead
	err := r.db.QueryRow(ctx, `
		SELECT id, name, email, phone, status, description, customer_id, client_type,
			assigned_coach_id, sold_by_user_id, appointment_setter_id, converted_at,
			created_at, updated_at
		FROM leads WHERE id = $1`, id).Scan(
		&l.ID, &l.Name, &l.Email, &l.Phone, &l.Status, &l.Description, &l.CustomerID, &l.ClientType,
		&l.AssignedCoachID, &l.SoldByUserID, &l.AppointmentSetterID, &l.ConvertedAt,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, WrapRepositoryError(err, "lead", "get lead")
	}
	return &l, nil
}

// CreateLead is used by seeding and tests; leads are otherwise owned by the
// sales tooling.
func (r *CRMRepository) CreateLead(ctx context.Context, l *crm.Lead) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO leads (id, name, email, phone, status, description, customer_id, client_type,
			assigned_coach_id, sold_by_user_id, appointment_setter_id, converted_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		l.ID, l.Name, l.Email, l.Phone, l.Status, l.Description, l.CustomerID, l.ClientType,
		l.AssignedCoachID, l.SoldByUserID, l.AppointmentSetterID, l.ConvertedAt, l.CreatedAt, l.UpdatedAt,
	)
	return WrapRepositoryError(err, "lead", "create lead")
}

func (r *CRMRepository) MarkLeadConverted(ctx context.Context, lead *crm.Lead) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE leads SET status = $2, converted_at = $3, updated_at = $4 WHERE id = $1`,
		lead.ID, lead.Status, lead.ConvertedAt, lead.UpdatedAt)
	if err != nil {
		return WrapRepositoryError(err, "lead", "mark lead converted")
	}
	if tag.RowsAffected() == 0 {
		return WrapRepositoryError(ErrNotFound, "lead", "mark lead converted")
	}
	return nil
}

// CreateActivity reports false when the dedupe key was already used.
func (r *CRMRepository) CreateActivity(ctx context.Context, a *crm.ActivityLog) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO activity_logs (id, client_id, lead_id, type, description, dedupe_key, occurred_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (dedupe_key) DO NOTHING`,
		a.ID, a.ClientID, a.LeadID, a.Type, a.Description, nullIfEmpty(a.DedupeKey), a.OccurredAt, a.CreatedAt)
	if err != nil {
		return false, WrapRepositoryError(err, "activity", "create activity")
	}
	return tag.RowsAffected() == 1, nil
}

func (r *CRMRepository) HasClientActivity(ctx context.Context, clientID uuid.UUID, t crm.ActivityType) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM activity_logs WHERE client_id = $1 AND type = $2)`,
		clientID, t).Scan(&exists)
	if err != nil {
		return false, WrapRepositoryError(err, "activity", "check client activity")
	}
	return exists, nil
}

// ReparentLeadActivity attaches the lead's orphan rows to the client.
func (r *CRMRepository) ReparentLeadActivity(ctx context.Context, leadID, clientID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE activity_logs SET client_id = $2 WHERE lead_id = $1 AND client_id IS NULL`,
		leadID, clientID)
	if err != nil {
		return 0, WrapRepositoryError(err, "activity", "reparent lead activity")
	}
	return tag.RowsAffected(), nil
}

func (r *CRMRepository) CreateNote(ctx context.Context, n *crm.ClientNote) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO client_notes (id, client_id, body, source_key, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source_key) DO NOTHING`,
		n.ID, n.ClientID, n.Body, nullIfEmpty(n.SourceKey), n.CreatedAt)
	if err != nil {
		return false, WrapRepositoryError(err, "client note", "create note")
	}
	return tag.RowsAffected() == 1, nil
}
