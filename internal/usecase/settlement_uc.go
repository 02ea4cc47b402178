package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"elearn-settlement/internal/domain"
	"elearn-settlement/internal/domain/model"
	"elearn-settlement/internal/domain/ports/adapter"
	"elearn-settlement/internal/domain/ports/repository"
	"elearn-settlement/internal/infra/logging"
)

// Compile-time check
var _ SettlementUseCase = (*settlementUC)(nil)

// Payer identifies the authenticated caller. Resolved by the identity
// collaborator; name and email are only used for receipts.
type Payer struct {
	ID       string
	FullName string
	Email    string
}

type SettleInput struct {
	Subject        model.SubjectRef
	Method         model.PaymentMethod
	PhoneNumber    string
	CardNumber     string
	IdempotencyKey string
}

type SettlementResult struct {
	OrderTrackingID string
	Status          model.PaymentStatus
	Amount          int64
	Currency        string
	Message         string
	// Replayed is set when an existing terminal intent was returned without
	// re-invoking the gateway.
	Replayed bool
	// GrantPending is set when the payment succeeded but the entitlement
	// grant failed; the grant is owed and recoverable via Reconcile.
	GrantPending bool
	Entitlement  *model.EntitlementRecord
}

type SettlementUseCase interface {
	// Settle drives one checkout end to end. Safe to call repeatedly with
	// the same idempotency key: exactly one intent is created, terminal
	// intents are replayed without re-charging.
	Settle(ctx context.Context, payer Payer, in SettleInput) (*SettlementResult, error)
	// Status returns the intent and its audit trail for polling. Scoped to
	// the calling payer: another payer's tracking ID reads as not found.
	Status(ctx context.Context, payerID, trackingID string) (*model.PaymentIntent, []*model.PaymentLogEntry, error)
	// Reconcile re-grants the entitlement for a succeeded intent without
	// re-charging. Used after ErrEntitlementGrantFailed.
	Reconcile(ctx context.Context, intentID string) (*model.EntitlementRecord, error)
}

// SettlementConfig carries deployment policy for the orchestrator.
type SettlementConfig struct {
	DefaultCurrency      string
	AllowedPhonePrefixes []string
}

type settlementUC struct {
	intents      repository.PaymentIntentRepository
	entitlements repository.EntitlementRepository
	grants       EntitlementUseCase
	catalog      adapter.SubjectCatalog
	gateway      adapter.PaymentGateway
	notifier     adapter.ReceiptNotifier
	tm           repository.TransactionManager
	cfg          SettlementConfig
	log          *zerolog.Logger
}

func NewSettlementUseCase(
	intents repository.PaymentIntentRepository,
	entitlements repository.EntitlementRepository,
	grants EntitlementUseCase,
	catalog adapter.SubjectCatalog,
	gateway adapter.PaymentGateway,
	notifier adapter.ReceiptNotifier,
	tm repository.TransactionManager,
	cfg SettlementConfig,
	logger *zerolog.Logger,
) *settlementUC {
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "KES"
	}
	if len(cfg.AllowedPhonePrefixes) == 0 {
		cfg.AllowedPhonePrefixes = []string{"+254", "+255"}
	}
	return &settlementUC{
		intents:      intents,
		entitlements: entitlements,
		grants:       grants,
		catalog:      catalog,
		gateway:      gateway,
		notifier:     notifier,
		tm:           tm,
		cfg:          cfg,
		log:          logger,
	}
}

func (u *settlementUC) Settle(ctx context.Context, payer Payer, in SettleInput) (*SettlementResult, error) {
	log := logging.With(ctx, u.log)
	defer logging.TraceDuration(log, "SettlementUC.Settle")()

	info, err := u.catalog.Resolve(ctx, in.Subject)
	if err != nil {
		return nil, err
	}

	// Already entitled: reject before creating any intent.
	if _, err := u.entitlements.Find(ctx, repository.NoTX, payer.ID, in.Subject); err == nil {
		return nil, domain.ErrAlreadyEntitled
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	// Free-tier bypass: grant directly, no payment intent at all.
	if info.IsFree() {
		rec, err := u.grants.Grant(ctx, payer.ID, in.Subject)
		if err != nil {
			return nil, err
		}
		return &SettlementResult{
			Status:      model.PaymentStatusSucceeded,
			Message:     fmt.Sprintf("'%s' is free; access granted", info.Title),
			Entitlement: rec,
		}, nil
	}

	// Local validation, before any ledger row or network call.
	if _, err := model.ParsePaymentMethod(string(in.Method)); err != nil {
		return nil, err
	}
	if err := model.ValidateInstrument(in.Method, in.PhoneNumber, in.CardNumber, u.cfg.AllowedPhonePrefixes); err != nil {
		return nil, err
	}

	currency := info.Currency
	if currency == "" {
		currency = u.cfg.DefaultCurrency
	}

	// Resolve-or-create through the idempotency guard: the insert is atomic
	// and a duplicate key resolves to the existing intent.
	key := in.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}
	now := time.Now()
	intent := &model.PaymentIntent{
		ID:              ulid.Make().String(),
		OrderTrackingID: key,
		PayerID:         payer.ID,
		Subject:         in.Subject,
		Amount:          info.FinalPrice,
		Currency:        currency,
		Method:          in.Method,
		Status:          model.PaymentStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	if err := u.intents.Create(ctx, repository.NoTX, intent); err != nil {
		if !errors.Is(err, domain.ErrDuplicateKey) {
			return nil, err
		}
		existing, ferr := u.intents.FindByTrackingID(ctx, repository.NoTX, key)
		if ferr != nil {
			return nil, ferr
		}
		// Tracking IDs are globally unique; a key held by another payer must
		// not resolve to their intent.
		if existing.PayerID != payer.ID {
			return nil, fmt.Errorf("%w: idempotency key is already in use", domain.ErrInvalidArgument)
		}
		intent = existing
	}

	// Terminal intents are replayed as-is; the gateway is never re-invoked.
	if intent.Status.IsTerminal() {
		return &SettlementResult{
			OrderTrackingID: intent.OrderTrackingID,
			Status:          intent.Status,
			Amount:          intent.Amount,
			Currency:        intent.Currency,
			Replayed:        true,
			Message:         fmt.Sprintf("payment already %s", intent.Status),
		}, nil
	}

	return u.charge(ctx, payer, intent, in, info, log)
}

func (u *settlementUC) charge(ctx context.Context, payer Payer, intent *model.PaymentIntent, in SettleInput, info *model.SubjectInfo, log *zerolog.Logger) (*SettlementResult, error) {
	ctx = logging.WithTrackingID(ctx, intent.OrderTrackingID)

	// Contact details are redacted in the audit trail; the full values only
	// ever travel to the gateway.
	if err := u.intents.AppendLog(ctx, repository.NoTX, &model.PaymentLogEntry{
		ID:        ulid.Make().String(),
		PaymentID: intent.ID,
		Action:    model.LogActionProcessed,
		Details: map[string]interface{}{
			"method":       string(intent.Method),
			"amount":       intent.Amount,
			"currency":     intent.Currency,
			"phone_number": logging.Redact(in.PhoneNumber, false),
			"card_number":  logging.Redact(in.CardNumber, false),
		},
		CreatedAt: time.Now(),
	}); err != nil {
		return nil, err
	}

	res, chargeErr := u.gateway.Charge(ctx, adapter.ChargeRequest{
		IdempotencyKey: intent.OrderTrackingID,
		Amount:         intent.Amount,
		Currency:       intent.Currency,
		Method:         intent.Method,
		PhoneNumber:    in.PhoneNumber,
		CardNumber:     in.CardNumber,
		Description:    info.Title,
	})

	switch {
	case chargeErr == nil:
		return u.settleSucceeded(ctx, payer, intent, info, res, log)

	case errors.Is(chargeErr, domain.ErrPaymentDeclined):
		return u.settleDeclined(ctx, intent, chargeErr, log)

	case errors.Is(chargeErr, domain.ErrGatewayUnavailable):
		// Transient: the intent stays pending and the same key can be
		// retried later. No terminal log entry is written.
		log.Warn().Err(chargeErr).Str("payment_id", intent.ID).Msg("gateway unavailable; intent left pending")
		return &SettlementResult{
			OrderTrackingID: intent.OrderTrackingID,
			Status:          model.PaymentStatusPending,
			Amount:          intent.Amount,
			Currency:        intent.Currency,
			Message:         "payment provider unavailable; retry with the same idempotency key or poll for status",
		}, chargeErr

	default:
		return nil, chargeErr
	}
}

func (u *settlementUC) settleSucceeded(ctx context.Context, payer Payer, intent *model.PaymentIntent, info *model.SubjectInfo, res *adapter.ChargeResult, log *zerolog.Logger) (*SettlementResult, error) {
	now := time.Now()
	var won bool
	// The terminal transition and its audit entry commit together; a rollback
	// leaves the intent pending and retriable under the same key.
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var txErr error
		won, txErr = u.intents.UpdateStatusIfPending(ctx, tx, intent.ID, model.PaymentStatusSucceeded, &res.ProviderRef, &now)
		if txErr != nil || !won {
			return txErr
		}
		return u.intents.AppendLog(ctx, tx, &model.PaymentLogEntry{
			ID:        ulid.Make().String(),
			PaymentID: intent.ID,
			Action:    model.LogActionConfirmed,
			Details: map[string]interface{}{
				"provider_ref": res.ProviderRef,
				"provider":     u.gateway.Name(),
				"response":     res.Raw,
			},
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	if !won {
		return u.replayTerminal(ctx, intent.ID)
	}

	rec, grantErr := u.grants.Grant(ctx, payer.ID, intent.Subject)
	if grantErr != nil {
		// Money was taken; never report this as payment failure. The grant
		// is owed and is recoverable via Reconcile or the reconciler worker.
		log.Error().Err(grantErr).
			Str("payment_id", intent.ID).
			Str("subject", intent.Subject.String()).
			Msg("entitlement grant failed after successful payment")
		return &SettlementResult{
			OrderTrackingID: intent.OrderTrackingID,
			Status:          model.PaymentStatusSucceeded,
			Amount:          intent.Amount,
			Currency:        intent.Currency,
			GrantPending:    true,
			Message:         "payment confirmed; access grant is being finalized",
		}, fmt.Errorf("%w: %v", domain.ErrEntitlementGrantFailed, grantErr)
	}

	u.sendReceipt(payer, intent, info, log)

	return &SettlementResult{
		OrderTrackingID: intent.OrderTrackingID,
		Status:          model.PaymentStatusSucceeded,
		Amount:          intent.Amount,
		Currency:        intent.Currency,
		Message:         fmt.Sprintf("payment successful; access to '%s' granted", info.Title),
		Entitlement:     rec,
	}, nil
}

func (u *settlementUC) settleDeclined(ctx context.Context, intent *model.PaymentIntent, chargeErr error, log *zerolog.Logger) (*SettlementResult, error) {
	now := time.Now()
	var won bool
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var txErr error
		won, txErr = u.intents.UpdateStatusIfPending(ctx, tx, intent.ID, model.PaymentStatusFailed, nil, &now)
		if txErr != nil || !won {
			return txErr
		}
		return u.intents.AppendLog(ctx, tx, &model.PaymentLogEntry{
			ID:        ulid.Make().String(),
			PaymentID: intent.ID,
			Action:    model.LogActionFailed,
			Details:   map[string]interface{}{"error": chargeErr.Error()},
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	if !won {
		return u.replayTerminal(ctx, intent.ID)
	}
	return &SettlementResult{
		OrderTrackingID: intent.OrderTrackingID,
		Status:          model.PaymentStatusFailed,
		Amount:          intent.Amount,
		Currency:        intent.Currency,
		Message:         "payment declined by the provider; a new attempt requires a new idempotency key",
	}, chargeErr
}

// replayTerminal handles a lost transition race: another settlement attempt
// already moved the intent to a terminal state, so report that state without
// logging or granting (the winner does both).
func (u *settlementUC) replayTerminal(ctx context.Context, intentID string) (*SettlementResult, error) {
	cur, err := u.intents.FindByID(ctx, repository.NoTX, intentID)
	if err != nil {
		return nil, err
	}
	return &SettlementResult{
		OrderTrackingID: cur.OrderTrackingID,
		Status:          cur.Status,
		Amount:          cur.Amount,
		Currency:        cur.Currency,
		Replayed:        true,
		Message:         fmt.Sprintf("payment already %s", cur.Status),
	}, nil
}

// sendReceipt notifies fire-and-forget; a notification failure never affects
// the settlement outcome.
func (u *settlementUC) sendReceipt(payer Payer, intent *model.PaymentIntent, info *model.SubjectInfo, log *zerolog.Logger) {
	if u.notifier == nil || payer.Email == "" {
		return
	}
	r := adapter.Receipt{
		Email:           payer.Email,
		FullName:        payer.FullName,
		SubjectTitle:    info.Title,
		OrderTrackingID: intent.OrderTrackingID,
		Amount:          intent.Amount,
		Currency:        intent.Currency,
		Method:          intent.Method,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := u.notifier.SendReceipt(ctx, r); err != nil {
			log.Error().Err(err).Str("order_tracking_id", r.OrderTrackingID).Msg("receipt notification failed")
		}
	}()
}

func (u *settlementUC) Status(ctx context.Context, payerID, trackingID string) (*model.PaymentIntent, []*model.PaymentLogEntry, error) {
	intent, err := u.intents.FindByTrackingID(ctx, repository.NoTX, trackingID)
	if err != nil {
		return nil, nil, err
	}
	// Not-found rather than forbidden so foreign tracking IDs stay unprobeable.
	if intent.PayerID != payerID {
		return nil, nil, domain.ErrNotFound
	}
	logs, err := u.intents.ListLogs(ctx, repository.NoTX, intent.ID)
	if err != nil {
		return nil, nil, err
	}
	return intent, logs, nil
}

func (u *settlementUC) Reconcile(ctx context.Context, intentID string) (*model.EntitlementRecord, error) {
	intent, err := u.intents.FindByID(ctx, repository.NoTX, intentID)
	if err != nil {
		return nil, err
	}
	if intent.Status != model.PaymentStatusSucceeded {
		return nil, fmt.Errorf("%w: intent %s is %s, not succeeded", domain.ErrInvalidArgument, intentID, intent.Status)
	}
	return u.grants.Grant(ctx, intent.PayerID, intent.Subject)
}
