package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"elearn-settlement/internal/domain"
	"elearn-settlement/internal/domain/model"
	"elearn-settlement/internal/domain/ports/repository"
)

var _ repository.EntitlementRepository = (*entitlementRepo)(nil)

type entitlementRepo struct{ pool *pgxpool.Pool }

func NewEntitlementRepo(pool *pgxpool.Pool) *entitlementRepo {
	return &entitlementRepo{pool: pool}
}

// CreateIfAbsent relies on the unique index over (user_id, subject_kind,
// subject_id): ON CONFLICT DO NOTHING means two concurrent grants insert at
// most one row, with no check-then-create window.
func (r *entitlementRepo) CreateIfAbsent(ctx context.Context, qx repository.Tx, rec *model.EntitlementRecord) (*model.EntitlementRecord, bool, error) {
	const q = `
INSERT INTO entitlements (id, user_id, subject_kind, subject_id, granted_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (user_id, subject_kind, subject_id) DO NOTHING;`

	cmd, err := execSQL(ctx, r.pool, qx, q, rec.ID, rec.UserID, rec.Subject.Kind, rec.Subject.ID, rec.GrantedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, false, err
		}
		return nil, false, domain.ErrOperationFailed
	}
	if cmd.RowsAffected() >= 1 {
		return rec, true, nil
	}

	existing, err := r.Find(ctx, qx, rec.UserID, rec.Subject)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *entitlementRepo) Find(ctx context.Context, qx repository.Tx, userID string, subject model.SubjectRef) (*model.EntitlementRecord, error) {
	const q = `SELECT id, user_id, subject_kind, subject_id, granted_at FROM entitlements WHERE user_id=$1 AND subject_kind=$2 AND subject_id=$3;`
	row, err := pickRow(ctx, r.pool, qx, q, userID, subject.Kind, subject.ID)
	if err != nil {
		return nil, err
	}
	return scanEntitlement(row)
}

func (r *entitlementRepo) ListByUser(ctx context.Context, qx repository.Tx, userID string) ([]*model.EntitlementRecord, error) {
	const q = `SELECT id, user_id, subject_kind, subject_id, granted_at FROM entitlements WHERE user_id=$1 ORDER BY granted_at DESC;`
	rows, err := queryRows(ctx, r.pool, qx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.EntitlementRecord
	for rows.Next() {
		e := new(model.EntitlementRecord)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Subject.Kind, &e.Subject.ID, &e.GrantedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntitlement(row pgx.Row) (*model.EntitlementRecord, error) {
	e := &model.EntitlementRecord{}
	if err := row.Scan(&e.ID, &e.UserID, &e.Subject.Kind, &e.Subject.ID, &e.GrantedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return e, nil
}
