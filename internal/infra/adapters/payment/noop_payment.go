// File: internal/infra/adapters/payment/noop_payment.go
package payment

import (
	"context"
	"fmt"
	"sync/atomic"

	"elearn-entitlements/internal/domain/ports/adapter"
)

var _ adapter.OrderGateway = (*NoopGateway)(nil)

// NoopGateway is a stand-in for dev mode and tests: it mints predictable
// order ids without any network call.
type NoopGateway struct {
	seq atomic.Int64
}

func NewNoopGateway() *NoopGateway { return &NoopGateway{} }

func (g *NoopGateway) Name() string { return "noop" }

func (g *NoopGateway) CreateOrder(_ context.Context, amount int64, _ string, receiptRef string) (string, error) {
	return fmt.Sprintf("noop-%s-%d", receiptRef, g.seq.Add(1)), nil
}

// QueryOrder always reports unpaid; noop orders are settled via the normal
// callback path in dev.
func (g *NoopGateway) QueryOrder(_ context.Context, _ string) (*adapter.OrderInquiry, error) {
	return &adapter.OrderInquiry{Paid: false}, nil
}
