package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"elearn-settlement/internal/domain"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"   // ledger row created; charge not yet settled
	PaymentStatusSucceeded PaymentStatus = "succeeded" // provider confirmed the charge
	PaymentStatusFailed    PaymentStatus = "failed"    // provider definitively rejected the charge
)

// IsTerminal reports whether the status can never change again.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusSucceeded || s == PaymentStatusFailed
}

type PaymentMethod string

const (
	MethodMpesa   PaymentMethod = "mpesa"
	MethodVodacom PaymentMethod = "vodacom"
	MethodAirtel  PaymentMethod = "airtel"
	MethodMTN     PaymentMethod = "mtn"
	MethodCard    PaymentMethod = "card"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(strings.ToLower(s)) {
	case MethodMpesa, MethodVodacom, MethodAirtel, MethodMTN, MethodCard:
		return PaymentMethod(strings.ToLower(s)), nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidMethod, s)
	}
}

// SupportedCurrencies are the codes accepted on payment intents.
var SupportedCurrencies = map[string]bool{
	"KES": true,
	"USD": true,
}

// PaymentIntent records one payment attempt and its current state.
// Amounts are stored in the smallest whole currency subunit.
type PaymentIntent struct {
	ID              string // ULID
	OrderTrackingID string // idempotency key; globally unique; immutable once set
	PayerID         string
	Subject         SubjectRef
	Amount          int64
	Currency        string
	Method          PaymentMethod
	Status          PaymentStatus
	ProviderRef     string // provider reference once settled
	CreatedAt       time.Time
	UpdatedAt       time.Time
	SettledAt       *time.Time // set when the intent reaches a terminal state
}

// Validate checks the invariants that must hold before the intent is persisted.
func (p *PaymentIntent) Validate() error {
	if p.Amount <= 0 {
		return domain.ErrInvalidAmount
	}
	if !SupportedCurrencies[p.Currency] {
		return fmt.Errorf("%w: %q", domain.ErrUnsupportedCurrency, p.Currency)
	}
	if _, err := ParsePaymentMethod(string(p.Method)); err != nil {
		return err
	}
	if p.OrderTrackingID == "" {
		return fmt.Errorf("%w: missing order tracking id", domain.ErrInvalidArgument)
	}
	if p.PayerID == "" || p.Subject.IsZero() {
		return fmt.Errorf("%w: missing payer or subject", domain.ErrInvalidArgument)
	}
	return nil
}

type LogAction string

const (
	LogActionProcessed LogAction = "processed" // recorded before the gateway call
	LogActionConfirmed LogAction = "confirmed" // gateway confirmed the charge
	LogActionFailed    LogAction = "failed"    // gateway rejected the charge
)

// PaymentLogEntry is one step of the append-only audit trail of an intent.
// Entries are never mutated or deleted.
type PaymentLogEntry struct {
	ID        string
	PaymentID string
	Action    LogAction
	Details   map[string]interface{} // opaque structured payload, stored as JSONB
	CreatedAt time.Time
}

var (
	cardNumberRe = regexp.MustCompile(`^\d{16}$`)
	phoneTailRe  = regexp.MustCompile(`^\d{9}$`)
)

// ValidateInstrument checks the contact instrument for a method before any
// network call. allowedPrefixes holds the accepted phone country prefixes,
// e.g. ["+254","+255"]; regional, so configured per deployment.
func ValidateInstrument(method PaymentMethod, phoneNumber, cardNumber string, allowedPrefixes []string) error {
	if method == MethodCard {
		if !cardNumberRe.MatchString(cardNumber) {
			return fmt.Errorf("%w: card number must be 16 digits", domain.ErrInvalidInstrument)
		}
		return nil
	}
	for _, pre := range allowedPrefixes {
		if strings.HasPrefix(phoneNumber, pre) && phoneTailRe.MatchString(strings.TrimPrefix(phoneNumber, pre)) {
			return nil
		}
	}
	return fmt.Errorf("%w: phone number must match %s followed by 9 digits",
		domain.ErrInvalidInstrument, strings.Join(allowedPrefixes, " or "))
}
