// File: internal/usecase/grant_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"elearn-entitlements/internal/domain"
	"elearn-entitlements/internal/domain/model"
	"elearn-entitlements/internal/domain/ports/adapter"
	"elearn-entitlements/internal/domain/ports/repository"
	"elearn-entitlements/internal/infra/logging"
	"elearn-entitlements/internal/infra/metrics"
)

// Compile-time check
var _ GrantUseCase = (*grantUC)(nil)

// GrantUseCase is the single authority that flips a ledger entry to paid and
// mutates the aggregate effects. Exactly one grant happens per provider
// transaction id, no matter how many concurrent callers carry the same proof.
type GrantUseCase interface {
	Grant(ctx context.Context, entryID string, proof *model.VerifiedTransaction) (*model.GrantResult, error)
}

type grantUC struct {
	entries  repository.EntitlementRepository
	products repository.ProductRepository
	unlocks  repository.UnlockRepository
	tm       repository.TransactionManager
	dispatch adapter.SideEffectDispatcher
	log      *zerolog.Logger
}

func NewGrantUseCase(
	entries repository.EntitlementRepository,
	products repository.ProductRepository,
	unlocks repository.UnlockRepository,
	tm repository.TransactionManager,
	dispatch adapter.SideEffectDispatcher,
	logger *zerolog.Logger,
) *grantUC {
	return &grantUC{entries: entries, products: products, unlocks: unlocks, tm: tm, dispatch: dispatch, log: logger}
}

// Grant runs the read-check-write sequence as one transaction. The entry row
// is locked (FOR UPDATE via the tx-aware repo) and the flip itself is a
// conditional update, so a concurrent duplicate observes paid state and
// returns the benign already-granted result.
func (u *grantUC) Grant(ctx context.Context, entryID string, proof *model.VerifiedTransaction) (*model.GrantResult, error) {
	if entryID == "" || proof == nil {
		return nil, domain.ErrInvalidArgument
	}
	defer logging.TraceDuration(u.log, "grant")()

	var (
		res   *model.GrantResult
		entry *model.EntitlementRequest
	)
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		entry, err = u.entries.FindByID(ctx, tx, entryID)
		if err != nil {
			return err
		}

		// Idempotent short-circuit: paid or beyond means a prior grant won.
		if entry.State != model.PaymentStatePending {
			res = &model.GrantResult{EntryID: entry.ID, State: entry.State, AlreadyGranted: true}
			return nil
		}

		if err := u.proofMatchesEntry(ctx, tx, entry, proof); err != nil {
			return err
		}

		paidAt := proof.PurchasedAt
		if paidAt.IsZero() {
			paidAt = time.Now()
		}
		flipped, err := u.entries.MarkPaidIfPending(ctx, tx, entry.ID, proof, paidAt)
		if err != nil {
			return err
		}
		if !flipped {
			// Lost a race after the read; the winner already granted.
			res = &model.GrantResult{EntryID: entry.ID, State: model.PaymentStatePaid, AlreadyGranted: true}
			return nil
		}

		// Aggregate effects live in the same transaction as the flip: a flip
		// without the unlock, or the reverse, must be impossible.
		first, err := u.unlocks.Append(ctx, tx, &model.Unlock{
			SubjectUserID: entry.SubjectUserID,
			ProductID:     entry.Product.ProductID,
			EntryID:       entry.ID,
			UnlockedAt:    paidAt,
		})
		if err != nil {
			return err
		}
		if first {
			if err := u.products.IncrementEnrollment(ctx, tx, entry.Product.ProductID); err != nil {
				return err
			}
		}

		entry.State = model.PaymentStatePaid
		entry.PaidAt = &paidAt
		res = &model.GrantResult{EntryID: entry.ID, State: model.PaymentStatePaid, AlreadyGranted: false}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrTransactionConsumed) {
			if resolved := u.resolveConsumed(ctx, entry, proof); resolved != nil {
				return resolved, nil
			}
		}
		return nil, err
	}

	if !res.AlreadyGranted {
		metrics.IncGrant(string(entry.Provider))
		metrics.AddRevenue(entry.Currency, entry.Amount)
		// trace_id, user_id and product_id ride in on the context.
		logging.With(ctx, u.log).Info().
			Str("entry_id", entry.ID).
			Str("provider", string(entry.Provider)).
			Msg("entitlement granted")

		// Best-effort side effects, after commit: a dispatcher failure never
		// unwinds the grant.
		u.dispatch.Notify(ctx, entry.SubjectUserID, model.NotificationPurchaseGranted, map[string]interface{}{
			"entry_id":   entry.ID,
			"product_id": entry.Product.ProductID,
			"kind":       string(entry.Product.Kind),
		})
		u.dispatch.Emit(ctx, entry.SubjectUserID, "entitlement.granted", map[string]interface{}{
			"product_id": entry.Product.ProductID,
		})
	}
	return res, nil
}

// resolveConsumed turns a consumed-transaction error into the benign
// already-granted result when the winning entry belongs to the same subject.
// Two concurrent first-time receipt verifications can each create a pending
// row; the loser then trips the remote transaction uniqueness check after the
// winner commits. For the same subject that is a duplicate of a successful
// grant, not a theft attempt, so the caller gets the winner's result.
func (u *grantUC) resolveConsumed(ctx context.Context, entry *model.EntitlementRequest, proof *model.VerifiedTransaction) *model.GrantResult {
	if entry == nil || proof.Provider != model.ProviderRemoteReceipt || proof.RemoteTransactionID == "" {
		return nil
	}
	winner, err := u.entries.FindByRemoteTransactionID(ctx, nil, proof.RemoteTransactionID)
	if err != nil || winner.SubjectUserID != entry.SubjectUserID {
		return nil
	}
	return &model.GrantResult{EntryID: winner.ID, State: winner.State, AlreadyGranted: true}
}

// proofMatchesEntry verifies the proof is for this entry: a matching order id
// on the local path, a matching (or first-time, globally unconsumed) remote
// transaction id on the remote path.
func (u *grantUC) proofMatchesEntry(ctx context.Context, tx repository.Tx, entry *model.EntitlementRequest, proof *model.VerifiedTransaction) error {
	if proof.Provider != entry.Provider {
		return domain.ErrProofMismatch
	}
	switch proof.Provider {
	case model.ProviderLocalOrder:
		if proof.LocalOrderID == "" || proof.LocalOrderID != entry.LocalOrderID {
			return domain.ErrProofMismatch
		}
	case model.ProviderRemoteReceipt:
		if proof.RemoteTransactionID == "" {
			return domain.ErrInvalidArgument
		}
		if entry.RemoteTransactionID != "" {
			if entry.RemoteTransactionID != proof.RemoteTransactionID {
				return domain.ErrProofMismatch
			}
			return nil
		}
		// First-time association: the transaction id must not have granted
		// anything else, ever.
		other, err := u.entries.FindByRemoteTransactionID(ctx, tx, proof.RemoteTransactionID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if other != nil && other.ID != entry.ID {
			return domain.ErrTransactionConsumed
		}
	default:
		return domain.ErrInvalidArgument
	}
	return nil
}
