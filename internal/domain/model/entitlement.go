package model

import "time"

type PaymentState string

const (
	PaymentStatePending   PaymentState = "pending"   // entry created; awaiting a verified proof
	PaymentStatePaid      PaymentState = "paid"      // proof verified; aggregate effects applied
	PaymentStateFulfilled PaymentState = "fulfilled" // post-payment delivery completed (letter upload etc.)
)

// rank orders states for the monotonicity check. Higher never goes back to lower.
func (s PaymentState) rank() int {
	switch s {
	case PaymentStatePending:
		return 0
	case PaymentStatePaid:
		return 1
	case PaymentStateFulfilled:
		return 2
	}
	return -1
}

// CanTransitionTo reports whether moving to next is a forward step.
func (s PaymentState) CanTransitionTo(next PaymentState) bool {
	return next.rank() == s.rank()+1
}

type ProviderKind string

const (
	ProviderLocalOrder    ProviderKind = "local_order"    // backend-created order, HMAC-signed completion
	ProviderRemoteReceipt ProviderKind = "remote_receipt" // opaque mobile IAP receipt, verified remotely
)

type ProductKind string

const (
	ProductSubcourse        ProductKind = "subcourse"
	ProductInternshipLetter ProductKind = "internship_letter"
	ProductRecordedLessons  ProductKind = "recorded_lessons"
)

// ProductRef identifies the purchasable right a ledger entry is for.
type ProductRef struct {
	ProductID string
	Kind      ProductKind
}

func (r ProductRef) Valid() bool {
	switch r.Kind {
	case ProductSubcourse, ProductInternshipLetter, ProductRecordedLessons:
		return r.ProductID != ""
	}
	return false
}

// RequiresFulfillment reports whether the product has a post-payment delivery
// step (paid -> fulfilled). Only the internship-letter workflow has one.
func (r ProductRef) RequiresFulfillment() bool {
	return r.Kind == ProductInternshipLetter
}

// EntitlementRequest is the durable ledger entry tracking one (subject, product)
// payment lifecycle. Amount and Currency are fixed at order issuance and never
// mutated by verification.
type EntitlementRequest struct {
	ID            string // ULID
	SubjectUserID string
	Product       ProductRef

	State    PaymentState
	Provider ProviderKind

	// Local-order proof fields (Provider == ProviderLocalOrder)
	LocalOrderID   string
	LocalPaymentID string
	LocalSignature string

	// Remote-receipt proof fields (Provider == ProviderRemoteReceipt).
	// RemoteTransactionID is the idempotency key: once consumed it can never
	// grant a second entitlement.
	RemoteTransactionID         string
	RemoteOriginalTransactionID string

	Amount   int64 // minor units
	Currency string

	PaidAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// VerifiedTransaction is the canonical result a verifier hands to the grantor.
type VerifiedTransaction struct {
	Provider ProviderKind

	// Local path
	LocalOrderID   string
	LocalPaymentID string
	LocalSignature string

	// Remote path
	RemoteTransactionID         string
	RemoteOriginalTransactionID string
	ProductID                   string
	Environment                 string // sandbox | production

	PurchasedAt time.Time
}

// GrantResult reports the outcome of a grant attempt. AlreadyGranted is the
// benign idempotent case: the entry was paid before this call.
type GrantResult struct {
	EntryID        string
	State          PaymentState
	AlreadyGranted bool
}

// Order is what the issuer returns to the client for a local-order purchase.
type Order struct {
	EntryID         string
	ProviderOrderID string
	Amount          int64
	Currency        string
}
