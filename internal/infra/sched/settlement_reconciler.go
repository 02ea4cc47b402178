package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"elearn-settlement/internal/domain/ports/repository"
	"elearn-settlement/internal/infra/metrics"
	"elearn-settlement/internal/usecase"
)

// SettlementReconciler periodically repairs and reports the gaps settlement
// can leave behind: succeeded payments whose entitlement grant failed (the
// grant is re-invoked; charging never happens here), stale pending intents,
// and duplicate succeeded payments for the same payer and subject, which are
// refund candidates and only flagged, never auto-refunded.
type SettlementReconciler struct {
	uc         usecase.SettlementUseCase
	intents    repository.PaymentIntentRepository
	interval   time.Duration
	staleAfter time.Duration
	batchSize  int
	log        *zerolog.Logger
}

func NewSettlementReconciler(uc usecase.SettlementUseCase, intents repository.PaymentIntentRepository, interval, staleAfter time.Duration, batchSize int, logger *zerolog.Logger) *SettlementReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	return &SettlementReconciler{
		uc:         uc,
		intents:    intents,
		interval:   interval,
		staleAfter: staleAfter,
		batchSize:  batchSize,
		log:        logger,
	}
}

func (w *SettlementReconciler) Start(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *SettlementReconciler) tick(ctx context.Context) {
	w.regrantOwed(ctx)
	w.reportStalePending(ctx)
	w.reportDoubleCharged(ctx)
}

// regrantOwed finds succeeded intents with no matching entitlement and
// re-invokes the idempotent grant for them.
func (w *SettlementReconciler) regrantOwed(ctx context.Context) {
	owed, err := w.intents.ListSucceededWithoutEntitlement(ctx, repository.NoTX, w.batchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("reconciler: list owed grants failed")
		return
	}
	metrics.SetOrphanedPayments(len(owed))
	for _, p := range owed {
		if _, err := w.uc.Reconcile(ctx, p.ID); err != nil {
			w.log.Error().Err(err).
				Str("payment_id", p.ID).
				Str("order_tracking_id", p.OrderTrackingID).
				Msg("reconciler: entitlement re-grant failed")
			continue
		}
		w.log.Info().
			Str("payment_id", p.ID).
			Str("order_tracking_id", p.OrderTrackingID).
			Msg("reconciler: entitlement re-granted")
	}
}

// reportStalePending logs pending intents older than the staleness cutoff.
// They stay retriable under their original idempotency key; nothing is
// charged or transitioned here.
func (w *SettlementReconciler) reportStalePending(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	stale, err := w.intents.ListPendingOlderThan(ctx, repository.NoTX, cutoff, w.batchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("reconciler: list stale pending failed")
		return
	}
	for _, p := range stale {
		w.log.Warn().
			Str("payment_id", p.ID).
			Str("order_tracking_id", p.OrderTrackingID).
			Time("created_at", p.CreatedAt).
			Msg("reconciler: stale pending intent")
	}
}

// reportDoubleCharged flags succeeded payments that duplicate an earlier one
// for the same payer and subject. Refunds need a provider-side reversal, so
// these are surfaced for operators rather than acted on.
func (w *SettlementReconciler) reportDoubleCharged(ctx context.Context) {
	dup, err := w.intents.ListDoubleCharged(ctx, repository.NoTX, w.batchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("reconciler: list double-charged failed")
		return
	}
	metrics.SetDoubleChargedPayments(len(dup))
	for _, p := range dup {
		w.log.Warn().
			Str("payment_id", p.ID).
			Str("order_tracking_id", p.OrderTrackingID).
			Str("payer_id", p.PayerID).
			Str("subject", p.Subject.String()).
			Msg("reconciler: duplicate succeeded payment, refund candidate")
	}
}
