package adapter

import (
	"context"

	"elearn-settlement/internal/domain/model"
)

// ChargeRequest carries everything the provider needs for one charge.
// IdempotencyKey is reused verbatim on every retried attempt so the provider
// can deduplicate calls that succeeded server-side but lost the response.
type ChargeRequest struct {
	IdempotencyKey string
	Amount         int64
	Currency       string
	Method         model.PaymentMethod
	PhoneNumber    string // mobile money methods
	CardNumber     string // card method
	Description    string // shown on provider statements
}

// ChargeResult is the provider-agnostic outcome of a confirmed charge.
type ChargeResult struct {
	ProviderRef string
	Raw         map[string]interface{} // raw provider response, kept for the audit trail
}

// PaymentGateway is the port for external payment providers.
//
// Charge blocks for up to the configured attempt budget. Errors are
// classified through the domain sentinels: errors.Is(err,
// domain.ErrPaymentDeclined) is a definitive business rejection (never
// retried), errors.Is(err, domain.ErrGatewayUnavailable) means every attempt
// failed at the transport level and the caller may try again later. Input
// errors (ErrInvalidMethod, ErrInvalidInstrument) are returned before any
// network call.
type PaymentGateway interface {
	Name() string
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}
