package usecase

import (
	"context"
	"time"

	"elearn-settlement/internal/domain"
	"elearn-settlement/internal/domain/model"
	"elearn-settlement/internal/domain/ports/repository"
)

// Compile-time check
var _ EarningsUseCase = (*earningsUC)(nil)

// payoutShare is the fraction of gross revenue paid out to subject owners
// after the platform commission.
const payoutShare = 0.75

type EarningsSummary struct {
	SalesThisMonth   int64
	LifetimeEarnings int64
	ToBePaid         int64 // owner share of lifetime earnings, minor units
	Payments         []*model.PaymentIntent
	TotalPages       int
	CurrentPage      int
}

// EarningsUseCase aggregates succeeded payments for a subject owner
// (course instructor, event organizer).
type EarningsUseCase interface {
	Summary(ctx context.Context, ownerID string, page, pageSize int) (*EarningsSummary, error)
}

type earningsUC struct {
	intents repository.PaymentIntentRepository
}

func NewEarningsUseCase(intents repository.PaymentIntentRepository) *earningsUC {
	return &earningsUC{intents: intents}
}

func (u *earningsUC) Summary(ctx context.Context, ownerID string, page, pageSize int) (*EarningsSummary, error) {
	if page < 1 || pageSize < 1 {
		return nil, domain.ErrInvalidArgument
	}

	offset := (page - 1) * pageSize
	payments, total, err := u.intents.ListSucceededByOwner(ctx, repository.NoTX, ownerID, offset, pageSize)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	salesThisMonth, err := u.intents.SumSucceededByOwnerSince(ctx, repository.NoTX, ownerID, monthStart)
	if err != nil {
		return nil, err
	}
	lifetime, err := u.intents.SumSucceededByOwnerSince(ctx, repository.NoTX, ownerID, time.Time{})
	if err != nil {
		return nil, err
	}

	return &EarningsSummary{
		SalesThisMonth:   salesThisMonth,
		LifetimeEarnings: lifetime,
		ToBePaid:         int64(float64(lifetime) * payoutShare),
		Payments:         payments,
		TotalPages:       (total + pageSize - 1) / pageSize,
		CurrentPage:      page,
	}, nil
}
