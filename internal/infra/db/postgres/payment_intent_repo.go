package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"elearn-settlement/internal/domain"
	"elearn-settlement/internal/domain/model"
	"elearn-settlement/internal/domain/ports/repository"
)

var _ repository.PaymentIntentRepository = (*paymentIntentRepo)(nil)

const uniqueViolation = "23505"

type paymentIntentRepo struct{ pool *pgxpool.Pool }

func NewPaymentIntentRepo(pool *pgxpool.Pool) *paymentIntentRepo {
	return &paymentIntentRepo{pool: pool}
}

const intentColumns = `id, order_tracking_id, payer_id, subject_kind, subject_id, amount, currency, method, status, provider_ref, created_at, updated_at, settled_at`

func scanIntent(row pgx.Row) (*model.PaymentIntent, error) {
	p := &model.PaymentIntent{}
	err := row.Scan(&p.ID, &p.OrderTrackingID, &p.PayerID, &p.Subject.Kind, &p.Subject.ID,
		&p.Amount, &p.Currency, &p.Method, &p.Status, &p.ProviderRef,
		&p.CreatedAt, &p.UpdatedAt, &p.SettledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

// Create inserts the intent. The unique index on order_tracking_id makes the
// idempotency guard atomic: a collision surfaces as ErrDuplicateKey instead
// of a second row.
func (r *paymentIntentRepo) Create(ctx context.Context, qx repository.Tx, p *model.PaymentIntent) error {
	const q = `
INSERT INTO payment_intents (` + intentColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13);`

	_, err := execSQL(ctx, r.pool, qx, q, p.ID, p.OrderTrackingID, p.PayerID,
		p.Subject.Kind, p.Subject.ID, p.Amount, p.Currency, p.Method, p.Status,
		p.ProviderRef, p.CreatedAt, p.UpdatedAt, p.SettledAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrDuplicateKey
		}
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymentIntentRepo) FindByID(ctx context.Context, qx repository.Tx, id string) (*model.PaymentIntent, error) {
	q := `SELECT ` + intentColumns + ` FROM payment_intents WHERE id=$1`
	if _, ok := qx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, qx, q+";", id)
	if err != nil {
		return nil, err
	}
	return scanIntent(row)
}

func (r *paymentIntentRepo) FindByTrackingID(ctx context.Context, qx repository.Tx, trackingID string) (*model.PaymentIntent, error) {
	q := `SELECT ` + intentColumns + ` FROM payment_intents WHERE order_tracking_id=$1`
	if _, ok := qx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, qx, q+";", trackingID)
	if err != nil {
		return nil, err
	}
	return scanIntent(row)
}

// UpdateStatusIfPending is the single way an intent reaches a terminal state:
// an atomic conditional update, so exactly one racing transition wins.
func (r *paymentIntentRepo) UpdateStatusIfPending(ctx context.Context, qx repository.Tx, id string, status model.PaymentStatus, providerRef *string, settledAt *time.Time) (bool, error) {
	const q = `
UPDATE payment_intents
   SET status = $2,
       provider_ref = COALESCE($3, provider_ref),
       settled_at = $4,
       updated_at = NOW()
 WHERE id = $1
   AND status = 'pending';`

	cmd, err := execSQL(ctx, r.pool, qx, q, id, string(status), providerRef, settledAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentIntentRepo) AppendLog(ctx context.Context, qx repository.Tx, e *model.PaymentLogEntry) error {
	const q = `
INSERT INTO payment_logs (id, payment_id, action, details, created_at)
VALUES ($1,$2,$3,$4,$5);`

	_, err := execSQL(ctx, r.pool, qx, q, e.ID, e.PaymentID, e.Action, e.Details, e.CreatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymentIntentRepo) ListLogs(ctx context.Context, qx repository.Tx, paymentID string) ([]*model.PaymentLogEntry, error) {
	const q = `SELECT id, payment_id, action, details, created_at FROM payment_logs WHERE payment_id=$1 ORDER BY created_at ASC;`
	rows, err := queryRows(ctx, r.pool, qx, q, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.PaymentLogEntry
	for rows.Next() {
		e := new(model.PaymentLogEntry)
		if err := rows.Scan(&e.ID, &e.PaymentID, &e.Action, &e.Details, &e.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *paymentIntentRepo) ListPendingOlderThan(ctx context.Context, qx repository.Tx, olderThan time.Time, limit int) ([]*model.PaymentIntent, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + intentColumns + ` FROM payment_intents WHERE status='pending' AND created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	return r.listIntents(ctx, qx, q, olderThan, limit)
}

func (r *paymentIntentRepo) ListSucceededWithoutEntitlement(ctx context.Context, qx repository.Tx, limit int) ([]*model.PaymentIntent, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT p.id, p.order_tracking_id, p.payer_id, p.subject_kind, p.subject_id, p.amount, p.currency, p.method, p.status, p.provider_ref, p.created_at, p.updated_at, p.settled_at
  FROM payment_intents p
  LEFT JOIN entitlements e
    ON e.user_id = p.payer_id
   AND e.subject_kind = p.subject_kind
   AND e.subject_id = p.subject_id
 WHERE p.status = 'succeeded'
   AND e.id IS NULL
 ORDER BY p.settled_at ASC
 LIMIT $1;`
	return r.listIntents(ctx, qx, q, limit)
}

func (r *paymentIntentRepo) ListDoubleCharged(ctx context.Context, qx repository.Tx, limit int) ([]*model.PaymentIntent, error) {
	if limit <= 0 {
		limit = 100
	}
	// Rank succeeded intents per (payer, subject); everything past the first
	// is a duplicate charge.
	const q = `
SELECT id, order_tracking_id, payer_id, subject_kind, subject_id, amount, currency, method, status, provider_ref, created_at, updated_at, settled_at
  FROM (
    SELECT p.*,
           ROW_NUMBER() OVER (
             PARTITION BY p.payer_id, p.subject_kind, p.subject_id
             ORDER BY p.settled_at ASC NULLS LAST, p.id ASC
           ) AS rn
      FROM payment_intents p
     WHERE p.status = 'succeeded'
  ) ranked
 WHERE ranked.rn > 1
 ORDER BY ranked.settled_at ASC
 LIMIT $1;`
	return r.listIntents(ctx, qx, q, limit)
}

func (r *paymentIntentRepo) ListSucceededByOwner(ctx context.Context, qx repository.Tx, ownerID string, offset, limit int) ([]*model.PaymentIntent, int, error) {
	const countQ = `
SELECT COUNT(*) FROM payment_intents p
 WHERE p.status='succeeded' AND (
   (p.subject_kind='course' AND p.subject_id IN (SELECT id FROM courses WHERE instructor_id=$1)) OR
   (p.subject_kind='event'  AND p.subject_id IN (SELECT id FROM events  WHERE created_by=$1))
 );`
	row, err := pickRow(ctx, r.pool, qx, countQ, ownerID)
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := row.Scan(&total); err != nil {
		return nil, 0, domain.ErrReadDatabaseRow
	}

	const q = `
SELECT ` + intentColumns + ` FROM payment_intents p
 WHERE p.status='succeeded' AND (
   (p.subject_kind='course' AND p.subject_id IN (SELECT id FROM courses WHERE instructor_id=$1)) OR
   (p.subject_kind='event'  AND p.subject_id IN (SELECT id FROM events  WHERE created_by=$1))
 )
 ORDER BY p.created_at DESC OFFSET $2 LIMIT $3;`
	out, err := r.listIntents(ctx, qx, q, ownerID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *paymentIntentRepo) SumSucceededByOwnerSince(ctx context.Context, qx repository.Tx, ownerID string, since time.Time) (int64, error) {
	const q = `
SELECT COALESCE(SUM(p.amount),0) FROM payment_intents p
 WHERE p.status='succeeded' AND p.created_at >= $2 AND (
   (p.subject_kind='course' AND p.subject_id IN (SELECT id FROM courses WHERE instructor_id=$1)) OR
   (p.subject_kind='event'  AND p.subject_id IN (SELECT id FROM events  WHERE created_by=$1))
 );`
	row, err := pickRow(ctx, r.pool, qx, q, ownerID, since)
	if err != nil {
		return 0, err
	}
	var sum int64
	if err := row.Scan(&sum); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return sum, nil
}

func (r *paymentIntentRepo) listIntents(ctx context.Context, qx repository.Tx, q string, args ...interface{}) ([]*model.PaymentIntent, error) {
	rows, err := queryRows(ctx, r.pool, qx, q, args...)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.PaymentIntent
	for rows.Next() {
		p := new(model.PaymentIntent)
		if err := rows.Scan(&p.ID, &p.OrderTrackingID, &p.PayerID, &p.Subject.Kind, &p.Subject.ID,
			&p.Amount, &p.Currency, &p.Method, &p.Status, &p.ProviderRef,
			&p.CreatedAt, &p.UpdatedAt, &p.SettledAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
