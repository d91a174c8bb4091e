package adapter

import (
	"context"

	"elearn-entitlements/internal/domain/model"
)

// ReceiptVerifier is the hex port for the remote IAP authority. It accepts
// either a signed three-part token (verified locally against the authority's
// published keys) or an opaque legacy blob (verified server-to-server), and
// returns the canonical most-recent transaction.
//
// Errors are one of the domain kinds: ErrProductMismatch,
// ErrRemoteVerificationFailed, ErrRemoteUnavailable,
// ErrUnsupportedReceiptFormat, ErrInvalidArgument.
type ReceiptVerifier interface {
	Verify(ctx context.Context, receiptBlob, expectedProductID string) (*model.VerifiedTransaction, error)
}
