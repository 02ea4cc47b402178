package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrInvalidArgument = errors.New("invalid argument")

	// Input errors (local, never retried)
	ErrInvalidMethod       = errors.New("unsupported payment method")
	ErrInvalidInstrument   = errors.New("invalid payment instrument")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrUnsupportedCurrency = errors.New("unsupported currency")

	// Conflict errors (local, not retried)
	ErrAlreadyEntitled = errors.New("user is already entitled to this subject")
	ErrDuplicateKey    = errors.New("duplicate idempotency key")

	// Gateway outcomes
	ErrPaymentDeclined    = errors.New("payment declined by provider")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// Post-success failure: money was taken, entitlement is still owed.
	// Recoverable out of band via reconciliation; never reported as payment failure.
	ErrEntitlementGrantFailed = errors.New("payment succeeded but entitlement grant failed")

	// Infrastructure errors
	ErrRateLimited        = errors.New("too many checkout attempts")
	ErrOperationFailed    = errors.New("storage operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid database execution context")
)
