package repository

import (
	"context"
	"time"

	"elearn-entitlements/internal/domain/model"
)

// EntitlementRepository persists ledger entries. The conditional update and
// the remote-transaction lookup are the primitives the grantor builds its
// exactly-once semantics on.
type EntitlementRepository interface {
	Save(ctx context.Context, tx Tx, e *model.EntitlementRequest) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.EntitlementRequest, error)
	// FindBySubjectAndProduct returns the most recent entry for the pair, or
	// domain.ErrNotFound.
	FindBySubjectAndProduct(ctx context.Context, tx Tx, subjectUserID, productID string) (*model.EntitlementRequest, error)
	// FindByRemoteTransactionID returns the entry that consumed the given
	// remote transaction id, or domain.ErrNotFound.
	FindByRemoteTransactionID(ctx context.Context, tx Tx, remoteTxID string) (*model.EntitlementRequest, error)
	// FindByLocalOrderID resolves a local-provider completion callback to its
	// ledger entry, or domain.ErrNotFound.
	FindByLocalOrderID(ctx context.Context, tx Tx, orderID string) (*model.EntitlementRequest, error)
	// MarkPaidIfPending atomically flips pending -> paid, recording the proof
	// fields and paidAt in the same statement. Returns false when the entry
	// was not pending (the idempotent case).
	MarkPaidIfPending(ctx context.Context, tx Tx, id string, proof *model.VerifiedTransaction, paidAt time.Time) (bool, error)
	// MarkFulfilledIfPaid flips paid -> fulfilled. Returns false when the
	// entry was not paid.
	MarkFulfilledIfPaid(ctx context.Context, tx Tx, id string) (bool, error)
	// ListPendingLocalOlderThan feeds the reconciler.
	ListPendingLocalOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.EntitlementRequest, error)
}

// UnlockRepository owns the subject's unlocked-products list.
type UnlockRepository interface {
	// Append adds the unlock if absent. Returns false when the row already
	// existed (duplicate grant attempt).
	Append(ctx context.Context, tx Tx, u *model.Unlock) (bool, error)
	ListBySubject(ctx context.Context, tx Tx, subjectUserID string) ([]*model.Unlock, error)
	Exists(ctx context.Context, tx Tx, subjectUserID, productID string) (bool, error)
}
