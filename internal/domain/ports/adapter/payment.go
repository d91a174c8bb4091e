package adapter

import "context"

// OrderGateway is the hex port for the order-based payment provider: the
// backend mints a provider-side order, the client pays against it, and the
// completion callback is later checked with a shared-secret signature.
type OrderGateway interface {
	Name() string

	// CreateOrder mints a provider order for the given amount and returns the
	// provider order id. receiptRef ties the provider order back to our ledger
	// entry; providers constrain its length and charset, so callers validate
	// it first.
	CreateOrder(ctx context.Context, amount int64, currency, receiptRef string) (providerOrderID string, err error)

	// QueryOrder asks the provider for the current status of an order. Used by
	// the reconciler when the client-side completion callback never arrived.
	QueryOrder(ctx context.Context, providerOrderID string) (*OrderInquiry, error)
}

// OrderInquiry is the provider's answer to a status query. PaymentID and
// Signature are only set when Paid; they feed the normal verification path.
type OrderInquiry struct {
	Paid      bool
	PaymentID string
	Signature string
}
