// File: internal/usecase/order_uc.go
package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"elearn-entitlements/internal/domain"
	"elearn-entitlements/internal/domain/model"
	"elearn-entitlements/internal/domain/ports/adapter"
	"elearn-entitlements/internal/domain/ports/repository"
	"elearn-entitlements/internal/infra/metrics"
)

// Compile-time check
var _ OrderUseCase = (*orderUC)(nil)

type OrderUseCase interface {
	// CreateOrder mints a provider-side order for a priced product and
	// persists a pending ledger entry. Reuses a prior pending entry for the
	// same (subject, product) instead of piling up rows per retry.
	CreateOrder(ctx context.Context, subjectUserID string, product model.ProductRef) (*model.Order, error)
}

type orderUC struct {
	entries  repository.EntitlementRepository
	products repository.ProductRepository
	unlocks  repository.UnlockRepository
	gateway  adapter.OrderGateway
	tm       repository.TransactionManager
	log      *zerolog.Logger
}

func NewOrderUseCase(
	entries repository.EntitlementRepository,
	products repository.ProductRepository,
	unlocks repository.UnlockRepository,
	gateway adapter.OrderGateway,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *orderUC {
	return &orderUC{entries: entries, products: products, unlocks: unlocks, gateway: gateway, tm: tm, log: logger}
}

// receiptRefValid enforces the provider's constraints on the order reference:
// 1..40 chars, upper-case alphanumerics only. ULIDs satisfy this.
func receiptRefValid(ref string) bool {
	if len(ref) == 0 || len(ref) > 40 {
		return false
	}
	for i := 0; i < len(ref); i++ {
		c := ref[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}

func (u *orderUC) CreateOrder(ctx context.Context, subjectUserID string, product model.ProductRef) (*model.Order, error) {
	if subjectUserID == "" || !product.Valid() {
		return nil, domain.ErrInvalidArgument
	}

	p, err := u.products.FindByID(ctx, nil, product.ProductID)
	if err != nil {
		return nil, err
	}
	if p.Kind != product.Kind {
		return nil, domain.ErrInvalidArgument
	}
	if p.Price <= 0 {
		return nil, domain.ErrInvalidArgument
	}

	// Ownership check comes first: a paid or fulfilled entry means the
	// subject already holds the entitlement.
	if prior, err := u.entries.FindBySubjectAndProduct(ctx, nil, subjectUserID, product.ProductID); err == nil {
		if prior.State != model.PaymentStatePending {
			return nil, domain.ErrAlreadyOwned
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	now := time.Now()
	entry := &model.EntitlementRequest{
		ID:            ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		SubjectUserID: subjectUserID,
		Product:       product,
		State:         model.PaymentStatePending,
		Provider:      model.ProviderLocalOrder,
		Amount:        p.Price,
		Currency:      p.Currency,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if !receiptRefValid(entry.ID) {
		return nil, domain.ErrInvalidArgument
	}

	// Provider call happens inside the transaction, before the ledger write
	// is committed: if the provider fails, nothing is left behind.
	var out *model.Order
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if prior, err := u.entries.FindBySubjectAndProduct(ctx, tx, subjectUserID, product.ProductID); err == nil {
			if prior.State != model.PaymentStatePending {
				return domain.ErrAlreadyOwned
			}
			// Reuse the pending row; a fresh provider order replaces the
			// stale one. Amount and currency stay exactly as issued: the
			// ledger row is the price authority once created, so a catalog
			// price change never diverges from what the provider charges.
			entry = prior
			entry.UpdatedAt = now
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		providerOrderID, err := u.gateway.CreateOrder(ctx, entry.Amount, entry.Currency, entry.ID)
		if err != nil {
			return err
		}
		entry.LocalOrderID = providerOrderID

		if err := u.entries.Save(ctx, tx, entry); err != nil {
			return err
		}
		out = &model.Order{
			EntryID:         entry.ID,
			ProviderOrderID: providerOrderID,
			Amount:          entry.Amount,
			Currency:        entry.Currency,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncOrder("created")
	u.log.Info().
		Str("entry_id", out.EntryID).
		Str("user_id", subjectUserID).
		Str("product_id", product.ProductID).
		Int64("amount", out.Amount).
		Msg("order created")
	return out, nil
}
