//go:build !integration

// File: internal/usecase/order_uc_test.go
package usecase

import (
	"context"
	"errors"
	"testing"

	"elearn-entitlements/internal/domain"
	"elearn-entitlements/internal/domain/model"
)

func newOrderFixture(t *testing.T, products ...*model.Product) (*orderUC, *memEntitlementRepo, *memProductRepo, *mockGateway) {
	t.Helper()
	if len(products) == 0 {
		products = []*model.Product{{
			ID: "course-1", Kind: model.ProductSubcourse, Title: "Algebra", Price: 9900, Currency: "USD",
		}}
	}
	repo := newMemEntitlementRepo()
	catalog := newMemProductRepo(products...)
	gw := &mockGateway{}
	uc := NewOrderUseCase(repo, catalog, newMemUnlockRepo(), gw, &mockTxManager{}, testLogger())
	return uc, repo, catalog, gw
}

func TestCreateOrderHappyPath(t *testing.T) {
	uc, repo, _, _ := newOrderFixture(t)

	order, err := uc.CreateOrder(context.Background(), "u1", model.ProductRef{ProductID: "course-1", Kind: model.ProductSubcourse})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Amount != 9900 || order.Currency != "USD" {
		t.Fatalf("order = %+v", order)
	}
	if order.ProviderOrderID == "" {
		t.Fatal("provider order id empty")
	}

	entry, err := repo.FindByID(context.Background(), nil, order.EntryID)
	if err != nil {
		t.Fatalf("entry not persisted: %v", err)
	}
	if entry.State != model.PaymentStatePending || entry.Provider != model.ProviderLocalOrder {
		t.Fatalf("entry = %+v", entry)
	}
	if entry.LocalOrderID != order.ProviderOrderID {
		t.Fatalf("local order id = %q, want %q", entry.LocalOrderID, order.ProviderOrderID)
	}
}

func TestCreateOrderRejectsUnknownProduct(t *testing.T) {
	uc, _, _, _ := newOrderFixture(t)
	_, err := uc.CreateOrder(context.Background(), "u1", model.ProductRef{ProductID: "ghost", Kind: model.ProductSubcourse})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateOrderRejectsKindMismatch(t *testing.T) {
	uc, _, _, _ := newOrderFixture(t)
	_, err := uc.CreateOrder(context.Background(), "u1", model.ProductRef{ProductID: "course-1", Kind: model.ProductRecordedLessons})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestCreateOrderRejectsUnpricedProduct(t *testing.T) {
	uc, _, _, _ := newOrderFixture(t, &model.Product{
		ID: "free-1", Kind: model.ProductSubcourse, Title: "Intro", Price: 0, Currency: "USD",
	})
	_, err := uc.CreateOrder(context.Background(), "u1", model.ProductRef{ProductID: "free-1", Kind: model.ProductSubcourse})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestCreateOrderAlreadyOwned(t *testing.T) {
	uc, repo, _, _ := newOrderFixture(t)

	paid := pendingLocalEntry("E0", "u1", "course-1", "PO-0")
	paid.State = model.PaymentStatePaid
	if err := repo.Save(context.Background(), nil, paid); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := uc.CreateOrder(context.Background(), "u1", model.ProductRef{ProductID: "course-1", Kind: model.ProductSubcourse})
	if !errors.Is(err, domain.ErrAlreadyOwned) {
		t.Fatalf("err = %v, want ErrAlreadyOwned", err)
	}
}

func TestCreateOrderReusesPendingEntry(t *testing.T) {
	uc, repo, catalog, _ := newOrderFixture(t)

	first, err := uc.CreateOrder(context.Background(), "u1", model.ProductRef{ProductID: "course-1", Kind: model.ProductSubcourse})
	if err != nil {
		t.Fatalf("first order: %v", err)
	}

	// A catalog price change between the retries must not leak into the
	// already-issued ledger row: the row keeps the price it was issued at.
	repriced, _ := catalog.FindByID(context.Background(), nil, "course-1")
	repriced.Price = 12900
	if err := catalog.Save(context.Background(), nil, repriced); err != nil {
		t.Fatalf("reprice: %v", err)
	}

	second, err := uc.CreateOrder(context.Background(), "u1", model.ProductRef{ProductID: "course-1", Kind: model.ProductSubcourse})
	if err != nil {
		t.Fatalf("second order: %v", err)
	}
	if first.EntryID != second.EntryID {
		t.Fatalf("retry minted a new ledger entry: %s vs %s", first.EntryID, second.EntryID)
	}
	if first.ProviderOrderID == second.ProviderOrderID {
		t.Fatal("retry did not mint a fresh provider order")
	}
	if second.Amount != 9900 || second.Currency != "USD" {
		t.Fatalf("reissued order = %d %s, want the issued 9900 USD", second.Amount, second.Currency)
	}
	// The reused row must point at the fresh provider order and keep its
	// original amount.
	entry, _ := repo.FindByID(context.Background(), nil, second.EntryID)
	if entry.LocalOrderID != second.ProviderOrderID {
		t.Fatalf("entry order id = %q, want %q", entry.LocalOrderID, second.ProviderOrderID)
	}
	if entry.Amount != 9900 || entry.Currency != "USD" {
		t.Fatalf("persisted amount = %d %s, want 9900 USD", entry.Amount, entry.Currency)
	}
}

func TestCreateOrderGatewayFailureLeavesNoEntry(t *testing.T) {
	uc, repo, _, gw := newOrderFixture(t)
	gw.CreateFunc = func(context.Context, int64, string, string) (string, error) {
		return "", domain.ErrRemoteUnavailable
	}

	_, err := uc.CreateOrder(context.Background(), "u1", model.ProductRef{ProductID: "course-1", Kind: model.ProductSubcourse})
	if !errors.Is(err, domain.ErrRemoteUnavailable) {
		t.Fatalf("err = %v, want ErrRemoteUnavailable", err)
	}
	if _, err := repo.FindBySubjectAndProduct(context.Background(), nil, "u1", "course-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ledger entry left behind after provider failure: %v", err)
	}
}

func TestCreateOrderInvalidInput(t *testing.T) {
	uc, _, _, _ := newOrderFixture(t)
	cases := []struct {
		name    string
		userID  string
		product model.ProductRef
	}{
		{"empty user", "", model.ProductRef{ProductID: "course-1", Kind: model.ProductSubcourse}},
		{"empty product id", "u1", model.ProductRef{Kind: model.ProductSubcourse}},
		{"bad kind", "u1", model.ProductRef{ProductID: "course-1", Kind: "mystery"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := uc.CreateOrder(context.Background(), tc.userID, tc.product); !errors.Is(err, domain.ErrInvalidArgument) {
				t.Fatalf("err = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestReceiptRefValid(t *testing.T) {
	valid := []string{"01HZXW5T9GQ4R8V2K7M3N6P0AB", "A", "123XYZ"}
	invalid := []string{"", "lower", "WITH-DASH", "TOO" + string(make([]byte, 41)), "SPA CE"}
	for _, s := range valid {
		if !receiptRefValid(s) {
			t.Errorf("receiptRefValid(%q) = false, want true", s)
		}
	}
	for _, s := range invalid {
		if receiptRefValid(s) {
			t.Errorf("receiptRefValid(%q) = true, want false", s)
		}
	}
}
