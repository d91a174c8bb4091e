//go:build !integration

// File: internal/usecase/verify_uc_test.go
package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"elearn-entitlements/internal/domain"
	"elearn-entitlements/internal/domain/model"
	"elearn-entitlements/internal/infra/security"
)

type verifyFixture struct {
	uc       *verifyUC
	repo     *memEntitlementRepo
	products *memProductRepo
	unlocks  *memUnlockRepo
	sig      *security.SignatureVerifier
	receipts *mockReceiptVerifier
	disp     *mockDispatcher
}

func newVerifyFixture(t *testing.T, entries ...*model.EntitlementRequest) *verifyFixture {
	t.Helper()
	repo := newMemEntitlementRepo()
	for _, e := range entries {
		if err := repo.Save(context.Background(), nil, e); err != nil {
			t.Fatalf("seed entry: %v", err)
		}
	}
	products := newMemProductRepo(&model.Product{
		ID: "course-1", Kind: model.ProductSubcourse, Title: "Algebra", Price: 9900, Currency: "USD",
	})
	unlocks := newMemUnlockRepo()
	disp := &mockDispatcher{}
	sig, err := security.NewSignatureVerifier("test-secret")
	if err != nil {
		t.Fatalf("signature verifier: %v", err)
	}
	receipts := &mockReceiptVerifier{}
	grantor := NewGrantUseCase(repo, products, unlocks, &mockTxManager{}, disp, testLogger())
	uc := NewVerifyUseCase(repo, products, sig, receipts, grantor, disp, testLogger())
	return &verifyFixture{uc: uc, repo: repo, products: products, unlocks: unlocks, sig: sig, receipts: receipts, disp: disp}
}

func TestVerifyLocalHappyPath(t *testing.T) {
	f := newVerifyFixture(t, pendingLocalEntry("E1", "u1", "course-1", "PO-1"))

	sig := f.sig.Sign("PO-1", "PAY-1")
	res, err := f.uc.VerifyLocal(context.Background(), "PO-1", "PAY-1", sig)
	if err != nil {
		t.Fatalf("verify local: %v", err)
	}
	if res.AlreadyGranted || res.State != model.PaymentStatePaid {
		t.Fatalf("result = %+v", res)
	}
	entry, _ := f.repo.FindByID(context.Background(), nil, "E1")
	if entry.LocalPaymentID != "PAY-1" {
		t.Fatalf("payment id not recorded: %+v", entry)
	}
	if n := f.products.enrollments("course-1"); n != 1 {
		t.Fatalf("enrollments = %d", n)
	}
}

func TestVerifyLocalBadSignature(t *testing.T) {
	f := newVerifyFixture(t, pendingLocalEntry("E1", "u1", "course-1", "PO-1"))

	_, err := f.uc.VerifyLocal(context.Background(), "PO-1", "PAY-1", f.sig.Sign("PO-1", "PAY-2"))
	if !errors.Is(err, domain.ErrSignatureInvalid) {
		t.Fatalf("err = %v, want ErrSignatureInvalid", err)
	}
	entry, _ := f.repo.FindByID(context.Background(), nil, "E1")
	if entry.State != model.PaymentStatePending {
		t.Fatalf("state = %s, want pending", entry.State)
	}
}

func TestVerifyLocalMalformedSignature(t *testing.T) {
	f := newVerifyFixture(t, pendingLocalEntry("E1", "u1", "course-1", "PO-1"))
	_, err := f.uc.VerifyLocal(context.Background(), "PO-1", "PAY-1", "not-hex!")
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestVerifyLocalUnknownOrder(t *testing.T) {
	f := newVerifyFixture(t)
	_, err := f.uc.VerifyLocal(context.Background(), "PO-9", "PAY-1", f.sig.Sign("PO-9", "PAY-1"))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestVerifyLocalRetryIsIdempotent(t *testing.T) {
	f := newVerifyFixture(t, pendingLocalEntry("E1", "u1", "course-1", "PO-1"))

	sig := f.sig.Sign("PO-1", "PAY-1")
	if _, err := f.uc.VerifyLocal(context.Background(), "PO-1", "PAY-1", sig); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	res, err := f.uc.VerifyLocal(context.Background(), "PO-1", "PAY-1", sig)
	if err != nil {
		t.Fatalf("replayed verify: %v", err)
	}
	if !res.AlreadyGranted {
		t.Fatal("replay not marked AlreadyGranted")
	}
	if n := f.products.enrollments("course-1"); n != 1 {
		t.Fatalf("enrollments = %d", n)
	}
}

func TestVerifyRemoteGrantsExistingEntry(t *testing.T) {
	f := newVerifyFixture(t, pendingRemoteEntry("E1", "u1", "course-1"))
	f.receipts.VerifyFunc = func(_ context.Context, blob, productID string) (*model.VerifiedTransaction, error) {
		return &model.VerifiedTransaction{
			Provider:            model.ProviderRemoteReceipt,
			RemoteTransactionID: "TX-1",
			ProductID:           productID,
			PurchasedAt:         time.Now(),
		}, nil
	}

	res, err := f.uc.VerifyRemote(context.Background(), "u1",
		model.ProductRef{ProductID: "course-1", Kind: model.ProductSubcourse}, "RECEIPT")
	if err != nil {
		t.Fatalf("verify remote: %v", err)
	}
	if res.EntryID != "E1" || res.State != model.PaymentStatePaid {
		t.Fatalf("result = %+v", res)
	}
}

func TestVerifyRemoteCreatesEntryLazily(t *testing.T) {
	f := newVerifyFixture(t)
	f.receipts.VerifyFunc = func(_ context.Context, _, productID string) (*model.VerifiedTransaction, error) {
		return &model.VerifiedTransaction{
			Provider:            model.ProviderRemoteReceipt,
			RemoteTransactionID: "TX-2",
			ProductID:           productID,
		}, nil
	}

	res, err := f.uc.VerifyRemote(context.Background(), "u1",
		model.ProductRef{ProductID: "course-1", Kind: model.ProductSubcourse}, "RECEIPT")
	if err != nil {
		t.Fatalf("verify remote: %v", err)
	}
	entry, err := f.repo.FindByID(context.Background(), nil, res.EntryID)
	if err != nil {
		t.Fatalf("lazy entry missing: %v", err)
	}
	if entry.Provider != model.ProviderRemoteReceipt || entry.Amount != 9900 {
		t.Fatalf("entry = %+v", entry)
	}
	if ok, _ := f.unlocks.Exists(context.Background(), nil, "u1", "course-1"); !ok {
		t.Fatal("unlock missing")
	}
}

func TestVerifyRemoteSupersedesPendingLocalOrder(t *testing.T) {
	// The subject opened a local order, then completed the purchase on-device.
	f := newVerifyFixture(t, pendingLocalEntry("E1", "u1", "course-1", "PO-1"))
	f.receipts.VerifyFunc = func(_ context.Context, _, productID string) (*model.VerifiedTransaction, error) {
		return &model.VerifiedTransaction{
			Provider:            model.ProviderRemoteReceipt,
			RemoteTransactionID: "TX-3",
			ProductID:           productID,
		}, nil
	}

	res, err := f.uc.VerifyRemote(context.Background(), "u1",
		model.ProductRef{ProductID: "course-1", Kind: model.ProductSubcourse}, "RECEIPT")
	if err != nil {
		t.Fatalf("verify remote: %v", err)
	}
	if res.EntryID == "E1" {
		t.Fatal("receipt granted against the local-order entry")
	}
	local, _ := f.repo.FindByID(context.Background(), nil, "E1")
	if local.State != model.PaymentStatePending {
		t.Fatalf("local entry state = %s, want pending", local.State)
	}
}

func TestVerifyRemoteReplayConsumedTransaction(t *testing.T) {
	f := newVerifyFixture(t)
	f.receipts.VerifyFunc = func(_ context.Context, _, productID string) (*model.VerifiedTransaction, error) {
		return &model.VerifiedTransaction{
			Provider:            model.ProviderRemoteReceipt,
			RemoteTransactionID: "TX-4",
			ProductID:           productID,
		}, nil
	}

	first, err := f.uc.VerifyRemote(context.Background(), "u1",
		model.ProductRef{ProductID: "course-1", Kind: model.ProductSubcourse}, "RECEIPT")
	if err != nil {
		t.Fatalf("first verify: %v", err)
	}
	// Same receipt replayed by the same subject resolves to the same entry and
	// reports already-granted.
	second, err := f.uc.VerifyRemote(context.Background(), "u1",
		model.ProductRef{ProductID: "course-1", Kind: model.ProductSubcourse}, "RECEIPT")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if second.EntryID != first.EntryID || !second.AlreadyGranted {
		t.Fatalf("replay result = %+v", second)
	}
	// A different subject presenting the same transaction id is refused.
	_, err = f.uc.VerifyRemote(context.Background(), "u2",
		model.ProductRef{ProductID: "course-1", Kind: model.ProductSubcourse}, "RECEIPT")
	if !errors.Is(err, domain.ErrTransactionConsumed) {
		t.Fatalf("err = %v, want ErrTransactionConsumed", err)
	}
}

func TestVerifyRemoteProductMismatchRecordsSecurityEvent(t *testing.T) {
	f := newVerifyFixture(t)
	f.receipts.VerifyFunc = func(context.Context, string, string) (*model.VerifiedTransaction, error) {
		return nil, domain.ErrProductMismatch
	}

	_, err := f.uc.VerifyRemote(context.Background(), "u1",
		model.ProductRef{ProductID: "course-1", Kind: model.ProductSubcourse}, "RECEIPT")
	if !errors.Is(err, domain.ErrProductMismatch) {
		t.Fatalf("err = %v, want ErrProductMismatch", err)
	}
	kinds := f.disp.kinds()
	if len(kinds) != 1 || kinds[0] != model.NotificationPaymentSecurity {
		t.Fatalf("dispatched kinds = %v, want one payment_security notification", kinds)
	}
}

func TestVerifyRemoteVerifierErrorsPassThrough(t *testing.T) {
	for _, want := range []error{
		domain.ErrProductMismatch,
		domain.ErrRemoteVerificationFailed,
		domain.ErrRemoteUnavailable,
		domain.ErrUnsupportedReceiptFormat,
	} {
		f := newVerifyFixture(t)
		f.receipts.VerifyFunc = func(context.Context, string, string) (*model.VerifiedTransaction, error) {
			return nil, want
		}
		_, err := f.uc.VerifyRemote(context.Background(), "u1",
			model.ProductRef{ProductID: "course-1", Kind: model.ProductSubcourse}, "RECEIPT")
		if !errors.Is(err, want) {
			t.Fatalf("err = %v, want %v", err, want)
		}
	}
}

func TestVerifyRemoteInvalidInput(t *testing.T) {
	f := newVerifyFixture(t)
	f.receipts.VerifyFunc = func(context.Context, string, string) (*model.VerifiedTransaction, error) {
		t.Fatal("verifier called with invalid input")
		return nil, nil
	}
	if _, err := f.uc.VerifyRemote(context.Background(), "", model.ProductRef{ProductID: "course-1", Kind: model.ProductSubcourse}, "R"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("err = %v", err)
	}
	if _, err := f.uc.VerifyRemote(context.Background(), "u1", model.ProductRef{ProductID: "course-1", Kind: model.ProductSubcourse}, ""); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("err = %v", err)
	}
}
