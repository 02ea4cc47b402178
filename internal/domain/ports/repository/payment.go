package repository

import (
	"context"
	"time"

	"elearn-settlement/internal/domain/model"
)

// PaymentIntentRepository is the ledger store for payment intents and their
// append-only audit trail.
type PaymentIntentRepository interface {
	// Create inserts a new intent. Returns domain.ErrDuplicateKey when an
	// intent with the same order tracking ID already exists; the insert is
	// atomic, so two concurrent requests with the same key cannot both
	// create rows.
	Create(ctx context.Context, qx Tx, p *model.PaymentIntent) error

	FindByID(ctx context.Context, qx Tx, id string) (*model.PaymentIntent, error)
	FindByTrackingID(ctx context.Context, qx Tx, trackingID string) (*model.PaymentIntent, error)

	// UpdateStatusIfPending transitions an intent to a terminal status only
	// when its current status is still pending. Returns false when the
	// intent was already terminal (a concurrent transition won).
	UpdateStatusIfPending(ctx context.Context, qx Tx, id string, status model.PaymentStatus, providerRef *string, settledAt *time.Time) (bool, error)

	AppendLog(ctx context.Context, qx Tx, e *model.PaymentLogEntry) error
	ListLogs(ctx context.Context, qx Tx, paymentID string) ([]*model.PaymentLogEntry, error)

	// ListPendingOlderThan returns stale pending intents for reconciliation.
	ListPendingOlderThan(ctx context.Context, qx Tx, olderThan time.Time, limit int) ([]*model.PaymentIntent, error)

	// ListSucceededWithoutEntitlement returns succeeded intents whose payer
	// has no entitlement for the subject yet (grant failed after payment).
	ListSucceededWithoutEntitlement(ctx context.Context, qx Tx, limit int) ([]*model.PaymentIntent, error)

	// ListDoubleCharged returns succeeded intents beyond the first per
	// (payer, subject) pair. These are refund candidates: the payer was
	// charged again for a subject an earlier intent already paid for.
	ListDoubleCharged(ctx context.Context, qx Tx, limit int) ([]*model.PaymentIntent, error)

	// Earnings queries (subject owner revenue reporting).
	ListSucceededByOwner(ctx context.Context, qx Tx, ownerID string, offset, limit int) ([]*model.PaymentIntent, int, error)
	SumSucceededByOwnerSince(ctx context.Context, qx Tx, ownerID string, since time.Time) (int64, error)
}

// EntitlementRepository stores enrollment/participation records.
type EntitlementRepository interface {
	// CreateIfAbsent atomically inserts the record unless one already exists
	// for the (UserID, Subject) pair, in which case the existing record is
	// returned with created=false. Never errors on the duplicate case.
	CreateIfAbsent(ctx context.Context, qx Tx, rec *model.EntitlementRecord) (out *model.EntitlementRecord, created bool, err error)

	// Find returns domain.ErrNotFound when no record exists for the pair.
	Find(ctx context.Context, qx Tx, userID string, subject model.SubjectRef) (*model.EntitlementRecord, error)

	ListByUser(ctx context.Context, qx Tx, userID string) ([]*model.EntitlementRecord, error)
}
