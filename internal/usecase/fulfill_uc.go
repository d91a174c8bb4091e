// File: internal/usecase/fulfill_uc.go
package usecase

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"elearn-entitlements/internal/domain"
	"elearn-entitlements/internal/domain/model"
	"elearn-entitlements/internal/domain/ports/adapter"
	"elearn-entitlements/internal/domain/ports/repository"
)

// Compile-time check
var _ FulfillmentUseCase = (*fulfillUC)(nil)

// FulfillmentUseCase performs the post-payment delivery transition
// (paid -> fulfilled) for products that have one, e.g. the internship-letter
// upload. Invoked by an authorized admin actor, never by the grantor.
type FulfillmentUseCase interface {
	Fulfill(ctx context.Context, entryID string) (*model.GrantResult, error)
}

type fulfillUC struct {
	entries  repository.EntitlementRepository
	tm       repository.TransactionManager
	dispatch adapter.SideEffectDispatcher
	log      *zerolog.Logger
}

func NewFulfillmentUseCase(entries repository.EntitlementRepository, tm repository.TransactionManager, dispatch adapter.SideEffectDispatcher, logger *zerolog.Logger) *fulfillUC {
	return &fulfillUC{entries: entries, tm: tm, dispatch: dispatch, log: logger}
}

func (u *fulfillUC) Fulfill(ctx context.Context, entryID string) (*model.GrantResult, error) {
	if entryID == "" {
		return nil, domain.ErrInvalidArgument
	}

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
		if !entry.Product.RequiresFulfillment() {
			return domain.ErrInvalidArgument
		}
		switch entry.State {
		case model.PaymentStatePending:
			return domain.ErrPaymentRequired
		case model.PaymentStateFulfilled:
			res = &model.GrantResult{EntryID: entry.ID, State: entry.State, AlreadyGranted: true}
			return nil
		}
		flipped, err := u.entries.MarkFulfilledIfPaid(ctx, tx, entry.ID)
		if err != nil {
			return err
		}
		if !flipped {
			return domain.ErrPaymentRequired
		}
		res = &model.GrantResult{EntryID: entry.ID, State: model.PaymentStateFulfilled}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !res.AlreadyGranted {
		u.log.Info().Str("entry_id", entry.ID).Str("user_id", entry.SubjectUserID).Msg("entitlement fulfilled")
		u.dispatch.Notify(ctx, entry.SubjectUserID, model.NotificationLetterFulfilled, map[string]interface{}{
			"entry_id":   entry.ID,
			"product_id": entry.Product.ProductID,
		})
	}
	return res, nil
}
