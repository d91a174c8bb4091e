// File: internal/infra/sched/order_reconciler.go
package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"elearn-entitlements/internal/domain/ports/adapter"
	"elearn-entitlements/internal/domain/ports/repository"
	"elearn-entitlements/internal/infra/logging"
	redislock "elearn-entitlements/internal/infra/redis"
	"elearn-entitlements/internal/usecase"
)

const reconcilerLockKey = "lock:order-reconciler"

// OrderReconciler periodically scans stale pending local orders and asks the
// provider whether they were actually paid. This covers the case where the
// client paid but the completion callback never reached us. A granted entry
// is never touched again: the scan only sees state = pending, and the grant
// itself is idempotent.
type OrderReconciler struct {
	verify     usecase.VerifyUseCase
	entries    repository.EntitlementRepository
	gateway    adapter.OrderGateway
	locker     redislock.Locker
	interval   time.Duration // how often to scan
	staleAfter time.Duration // how old a pending entry must be to retry
	log        *zerolog.Logger
}

func NewOrderReconciler(
	verify usecase.VerifyUseCase,
	entries repository.EntitlementRepository,
	gateway adapter.OrderGateway,
	locker redislock.Locker,
	interval, staleAfter time.Duration,
	logger *zerolog.Logger,
) *OrderReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	return &OrderReconciler{
		verify:     verify,
		entries:    entries,
		gateway:    gateway,
		locker:     locker,
		interval:   interval,
		staleAfter: staleAfter,
		log:        logger,
	}
}

func (w *OrderReconciler) Start(ctx context.Context) {
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

func (w *OrderReconciler) tick(ctx context.Context) {
	// One instance scans at a time. Missing a tick is fine; the next one
	// picks the same rows up.
	token, err := w.locker.TryLock(ctx, reconcilerLockKey, w.interval)
	if err != nil {
		return
	}
	defer func() { _ = w.locker.Unlock(ctx, reconcilerLockKey, token) }()

	cutoff := time.Now().Add(-w.staleAfter)
	pending, err := w.entries.ListPendingLocalOlderThan(ctx, nil, cutoff, 200)
	if err != nil {
		w.log.Error().Err(err).Msg("reconciler: list pending failed")
		return
	}
	for _, e := range pending {
		if e.LocalOrderID == "" {
			continue
		}
		orderID := e.LocalOrderID
		l := logging.WithEntryID(ctx, e.ID)

		inq, err := w.gateway.QueryOrder(ctx, orderID)
		if err != nil {
			w.log.Warn().Err(err).Str("order_id", orderID).Msg("reconciler: inquiry failed")
			continue
		}
		if !inq.Paid {
			continue
		}
		if _, err := w.verify.VerifyLocal(l, orderID, inq.PaymentID, inq.Signature); err != nil {
			w.log.Warn().Err(err).Str("order_id", orderID).Msg("reconciler: verify failed")
			continue
		}
		w.log.Info().Str("order_id", orderID).Msg("reconciler: recovered paid order")
	}
}
