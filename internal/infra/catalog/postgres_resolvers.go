package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"elearn-settlement/internal/domain"
	"elearn-settlement/internal/domain/model"
)

// CourseResolver reads course pricing from the catalog's courses table.
type CourseResolver struct{ pool *pgxpool.Pool }

func NewCourseResolver(pool *pgxpool.Pool) *CourseResolver {
	return &CourseResolver{pool: pool}
}

func (r *CourseResolver) Resolve(ctx context.Context, id string) (*model.SubjectInfo, error) {
	const q = `SELECT title, final_price, currency, instructor_id FROM courses WHERE id=$1;`
	return scanInfo(r.pool.QueryRow(ctx, q, id))
}

// EventResolver reads coaching event pricing from the events table.
type EventResolver struct{ pool *pgxpool.Pool }

func NewEventResolver(pool *pgxpool.Pool) *EventResolver {
	return &EventResolver{pool: pool}
}

func (r *EventResolver) Resolve(ctx context.Context, id string) (*model.SubjectInfo, error) {
	const q = `SELECT title, final_price, currency, created_by FROM events WHERE id=$1;`
	return scanInfo(r.pool.QueryRow(ctx, q, id))
}

func scanInfo(row pgx.Row) (*model.SubjectInfo, error) {
	info := &model.SubjectInfo{}
	if err := row.Scan(&info.Title, &info.FinalPrice, &info.Currency, &info.OwnerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return info, nil
}
