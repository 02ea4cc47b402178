package adapter

import (
	"context"

	"elearn-settlement/internal/domain/model"
)

// Receipt is the payload for a post-settlement confirmation message.
type Receipt struct {
	Email           string
	FullName        string
	SubjectTitle    string
	OrderTrackingID string
	Amount          int64
	Currency        string
	Method          model.PaymentMethod
}

// ReceiptNotifier sends a receipt after a successful settlement.
// Failure to notify must never roll back or block settlement; callers invoke
// it fire-and-forget and log errors locally.
type ReceiptNotifier interface {
	SendReceipt(ctx context.Context, r Receipt) error
}
