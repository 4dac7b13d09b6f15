package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/davidleathers/coaching-backoffice/internal/domain/clock"
	"github.com/davidleathers/coaching-backoffice/internal/domain/payment"
	"github.com/davidleathers/coaching-backoffice/internal/infrastructure/database"
)

// PaymentRepository stores payments keyed by the provider payment id.
type PaymentRepository struct {
	db *database.DB
}

func NewPaymentRepository(db *database.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// UpsertPayment inserts on first sight of the provider id. A conflicting
// write overwrites the amount, replaces fee and net only when a fee is known,
// keeps stored links and text fields the record leaves empty, and never moves
// a refunded or disputed payment back.
func (r *PaymentRepository) UpsertPayment(ctx context.Context, rec *payment.Record) error {
	now := clock.Now()
	_, err := r.db.Exec(ctx, `
		INSERT INTO payments (id, provider_payment_id, amount, fee, net_amount, currency, status,
			client_id, client_email, customer_id, product_name, schedule_id, subscription_id,
			payment_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE(NULLIF($6, ''), 'usd'), $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
		ON CONFLICT (provider_payment_id) DO UPDATE SET
			amount = EXCLUDED.amount,
			fee = CASE WHEN EXCLUDED.fee IS NOT NULL THEN EXCLUDED.fee ELSE payments.fee END,
			net_amount = CASE WHEN EXCLUDED.fee IS NOT NULL THEN EXCLUDED.net_amount ELSE payments.net_amount END,
			currency = CASE WHEN $6::text = '' THEN payments.currency ELSE EXCLUDED.currency END,
			status = CASE
				WHEN payments.status IN ('refunded', 'partially_refunded', 'disputed') THEN payments.status
				ELSE EXCLUDED.status
			END,
			client_id = COALESCE(EXCLUDED.client_id, payments.client_id),
			schedule_id = COALESCE(EXCLUDED.schedule_id, payments.schedule_id),
			client_email = COALESCE(NULLIF(EXCLUDED.client_email, ''), payments.client_email),
			customer_id = COALESCE(NULLIF(EXCLUDED.customer_id, ''), payments.customer_id),
			product_name = COALESCE(NULLIF(EXCLUDED.product_name, ''), payments.product_name),
			subscription_id = COALESCE(NULLIF(EXCLUDED.subscription_id, ''), payments.subscription_id),
			updated_at = EXCLUDED.updated_at`,
		uuid.New(), rec.ProviderPaymentID, rec.Amount, nullDecimal(rec.Fee), nullDecimal(rec.NetAmount),
		rec.Currency, rec.Status, rec.ClientID, rec.ClientEmail, rec.CustomerID, rec.ProductName,
		rec.ScheduleID, rec.SubscriptionID, rec.PaymentDate, now,
	)
	return WrapRepositoryError(err, "payment", "upsert payment")
}

const paymentColumns = `
	id, provider_payment_id, amount, fee, net_amount, refunded_amount, currency, status,
	client_id, client_email, customer_id, product_name, schedule_id, subscription_id,
	payment_date, commission_calculated, created_at, updated_at`

func scanPayment(row pgx.Row) (*payment.Payment, error) {
	var (
		p        payment.Payment
		fee, net decimal.NullDecimal
	)
	err := row.Scan(
		&p.ID, &p.ProviderPaymentID, &p.Amount, &fee, &net, &p.RefundedAmount, &p.Currency, &p.Status,
		&p.ClientID, &p.ClientEmail, &p.CustomerID, &p.ProductName, &p.ScheduleID, &p.SubscriptionID,
		&p.PaymentDate, &p.CommissionCalculated, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Fee = decimalPtr(fee)
	p.NetAmount = decimalPtr(net)
	return &p, nil
}

func (r *PaymentRepository) GetPaymentByProviderID(ctx context.Context, providerPaymentID string) (*payment.Payment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE provider_payment_id = $1`, providerPaymentID))
	if err != nil {
		return nil, WrapRepositoryError(err, "payment", "get payment by provider id")
	}
	return p, nil
}

func (r *PaymentRepository) GetPayment(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if err != nil {
		return nil, WrapRepositoryError(err, "payment", "get payment")
	}
	return p, nil
}

// LinkPayment attaches a client and, when given, a schedule.
func (r *PaymentRepository) LinkPayment(ctx context.Context, id, clientID uuid.UUID, scheduleID *string) error {
	return r.update(ctx, "link payment", `
		UPDATE payments
		SET client_id = $2, schedule_id = COALESCE($3, schedule_id), updated_at = $4
		WHERE id = $1`, id, clientID, scheduleID, clock.Now())
}

func (r *PaymentRepository) MarkCommissionCalculated(ctx context.Context, id uuid.UUID) error {
	return r.update(ctx, "mark commission calculated", `
		UPDATE payments SET commission_calculated = TRUE, updated_at = $2 WHERE id = $1`, id, clock.Now())
}

func (r *PaymentRepository) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status payment.Status, refunded decimal.Decimal) error {
	return r.update(ctx, "update payment status", `
		UPDATE payments SET status = $2, refunded_amount = $3, updated_at = $4 WHERE id = $1`,
		id, status, refunded, clock.Now())
}

func (r *PaymentRepository) update(ctx context.Context, operation, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return WrapRepositoryError(err, "payment", operation)
	}
	if tag.RowsAffected() == 0 {
		return WrapRepositoryError(ErrNotFound, "payment", operation)
	}
	return nil
}
