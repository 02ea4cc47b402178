package notify

import (
	"context"

	"github.com/rs/zerolog"

	"elearn-settlement/internal/domain/ports/adapter"
)

var _ adapter.ReceiptNotifier = (*LogNotifier)(nil)

// LogNotifier writes receipts to the log instead of sending mail (dev mode).
type LogNotifier struct {
	log *zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: logger}
}

func (n *LogNotifier) SendReceipt(_ context.Context, r adapter.Receipt) error {
	n.log.Info().
		Str("email", r.Email).
		Str("subject_title", r.SubjectTitle).
		Str("order_tracking_id", r.OrderTrackingID).
		Int64("amount", r.Amount).
		Str("currency", r.Currency).
		Msg("receipt (not sent; notifier disabled)")
	return nil
}
