package usecase

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"elearn-settlement/internal/domain/model"
	"elearn-settlement/internal/domain/ports/repository"
	"elearn-settlement/internal/infra/logging"
)

// Compile-time check
var _ EntitlementUseCase = (*entitlementUC)(nil)

// EntitlementUseCase grants and lists access records. Grant is idempotent:
// invoking it twice for the same (user, subject) pair returns the same record,
// so it is safe to call again under retry or reconciliation.
type EntitlementUseCase interface {
	Grant(ctx context.Context, userID string, subject model.SubjectRef) (*model.EntitlementRecord, error)
	ListByUser(ctx context.Context, userID string) ([]*model.EntitlementRecord, error)
}

type entitlementUC struct {
	entitlements repository.EntitlementRepository
	log          *zerolog.Logger
}

func NewEntitlementUseCase(entitlements repository.EntitlementRepository, logger *zerolog.Logger) *entitlementUC {
	return &entitlementUC{entitlements: entitlements, log: logger}
}

func (u *entitlementUC) Grant(ctx context.Context, userID string, subject model.SubjectRef) (*model.EntitlementRecord, error) {
	rec := &model.EntitlementRecord{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Subject:   subject,
		GrantedAt: time.Now(),
	}
	out, created, err := u.entitlements.CreateIfAbsent(ctx, repository.NoTX, rec)
	if err != nil {
		return nil, err
	}
	if created {
		logging.With(ctx, u.log).Info().
			Str("user_id", userID).
			Str("subject", subject.String()).
			Msg("entitlement granted")
	}
	return out, nil
}

func (u *entitlementUC) ListByUser(ctx context.Context, userID string) ([]*model.EntitlementRecord, error) {
	return u.entitlements.ListByUser(ctx, repository.NoTX, userID)
}
