// File: internal/usecase/verify_uc.go
package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"elearn-entitlements/internal/domain"
	"elearn-entitlements/internal/domain/model"
	"elearn-entitlements/internal/domain/ports/adapter"
	"elearn-entitlements/internal/domain/ports/repository"
	"elearn-entitlements/internal/infra/logging"
	"elearn-entitlements/internal/infra/metrics"
	"elearn-entitlements/internal/infra/security"
)

// Compile-time check
var _ VerifyUseCase = (*verifyUC)(nil)

// VerifyUseCase orchestrates the two verification protocols and hands
// verified proofs to the grantor. A verification failure leaves the ledger
// entry pending; the client may retry.
type VerifyUseCase interface {
	// VerifyLocal checks an HMAC-signed completion callback from the
	// order-based provider and grants on success.
	VerifyLocal(ctx context.Context, orderID, paymentID, signature string) (*model.GrantResult, error)
	// VerifyRemote checks an IAP receipt against the remote authority and
	// grants on success, creating the ledger entry lazily when the purchase
	// originated on-device.
	VerifyRemote(ctx context.Context, subjectUserID string, product model.ProductRef, receiptBlob string) (*model.GrantResult, error)
}

type verifyUC struct {
	entries  repository.EntitlementRepository
	products repository.ProductRepository
	sig      *security.SignatureVerifier
	receipts adapter.ReceiptVerifier
	grantor  GrantUseCase
	dispatch adapter.SideEffectDispatcher
	log      *zerolog.Logger
}

func NewVerifyUseCase(
	entries repository.EntitlementRepository,
	products repository.ProductRepository,
	sig *security.SignatureVerifier,
	receipts adapter.ReceiptVerifier,
	grantor GrantUseCase,
	dispatch adapter.SideEffectDispatcher,
	logger *zerolog.Logger,
) *verifyUC {
	return &verifyUC{entries: entries, products: products, sig: sig, receipts: receipts, grantor: grantor, dispatch: dispatch, log: logger}
}

func (u *verifyUC) VerifyLocal(ctx context.Context, orderID, paymentID, signature string) (*model.GrantResult, error) {
	start := time.Now()
	ok, err := u.sig.Verify(orderID, paymentID, signature)
	if err != nil {
		metrics.ObserveVerify("local", "fail", "bad_input", time.Since(start))
		return nil, err
	}
	if !ok {
		metrics.ObserveVerify("local", "fail", "signature_invalid", time.Since(start))
		logging.With(ctx, u.log).Warn().
			Str("order_id", orderID).
			Str("signature", logging.Redact(signature)).
			Msg("payment callback signature rejected")
		return nil, domain.ErrSignatureInvalid
	}

	entry, err := u.entries.FindByLocalOrderID(ctx, nil, orderID)
	if err != nil {
		metrics.ObserveVerify("local", "fail", "unknown_order", time.Since(start))
		return nil, err
	}

	ctx = logging.WithUserID(ctx, entry.SubjectUserID)
	ctx = logging.WithProductID(ctx, entry.Product.ProductID)
	res, err := u.grantor.Grant(ctx, entry.ID, &model.VerifiedTransaction{
		Provider:       model.ProviderLocalOrder,
		LocalOrderID:   orderID,
		LocalPaymentID: paymentID,
		LocalSignature: signature,
	})
	if err != nil {
		metrics.ObserveVerify("local", "fail", "grant_error", time.Since(start))
		return nil, err
	}
	metrics.ObserveVerify("local", "ok", "", time.Since(start))
	return res, nil
}

func (u *verifyUC) VerifyRemote(ctx context.Context, subjectUserID string, product model.ProductRef, receiptBlob string) (*model.GrantResult, error) {
	start := time.Now()
	if subjectUserID == "" || !product.Valid() || receiptBlob == "" {
		return nil, domain.ErrInvalidArgument
	}

	proof, err := u.receipts.Verify(ctx, receiptBlob, product.ProductID)
	if err != nil {
		metrics.ObserveVerify("remote", "fail", verifyFailReason(err), time.Since(start))
		if errors.Is(err, domain.ErrProductMismatch) {
			// Potential security event: a cryptographically valid receipt
			// submitted against the wrong product.
			u.log.Warn().
				Str("user_id", subjectUserID).
				Str("product_id", product.ProductID).
				Str("receipt", logging.Redact(receiptBlob)).
				Msg("receipt product mismatch")
			u.dispatch.Notify(ctx, subjectUserID, model.NotificationPaymentSecurity, map[string]interface{}{
				"product_id": product.ProductID,
				"reason":     "product_mismatch",
			})
		}
		return nil, err
	}

	entry, err := u.entries.FindBySubjectAndProduct(ctx, nil, subjectUserID, product.ProductID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		entry, err = u.createRemoteEntry(ctx, subjectUserID, product)
	case err == nil && entry.State == model.PaymentStatePending && entry.Provider != model.ProviderRemoteReceipt:
		// The subject started a local order but completed the purchase
		// on-device instead; the receipt gets its own ledger entry.
		entry, err = u.createRemoteEntry(ctx, subjectUserID, product)
	}
	if err != nil {
		metrics.ObserveVerify("remote", "fail", "entry_error", time.Since(start))
		return nil, err
	}

	ctx = logging.WithUserID(ctx, subjectUserID)
	ctx = logging.WithProductID(ctx, product.ProductID)
	res, err := u.grantor.Grant(ctx, entry.ID, proof)
	if err != nil {
		metrics.ObserveVerify("remote", "fail", "grant_error", time.Since(start))
		return nil, err
	}
	metrics.ObserveVerify("remote", "ok", "", time.Since(start))
	return res, nil
}

// createRemoteEntry records a pending ledger entry for an on-device purchase
// that had no prior order. Price and currency are fixed from the catalog.
func (u *verifyUC) createRemoteEntry(ctx context.Context, subjectUserID string, product model.ProductRef) (*model.EntitlementRequest, error) {
	p, err := u.products.FindByID(ctx, nil, product.ProductID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	entry := &model.EntitlementRequest{
		ID:            ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		SubjectUserID: subjectUserID,
		Product:       product,
		State:         model.PaymentStatePending,
		Provider:      model.ProviderRemoteReceipt,
		Amount:        p.Price,
		Currency:      p.Currency,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := u.entries.Save(ctx, nil, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func verifyFailReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrProductMismatch):
		return "product_mismatch"
	case errors.Is(err, domain.ErrRemoteVerificationFailed):
		return "authority_rejected"
	case errors.Is(err, domain.ErrRemoteUnavailable):
		return "authority_unavailable"
	case errors.Is(err, domain.ErrUnsupportedReceiptFormat):
		return "unsupported_format"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "bad_input"
	default:
		return "unknown"
	}
}
