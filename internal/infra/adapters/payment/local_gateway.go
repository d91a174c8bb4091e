// File: internal/infra/adapters/payment/local_gateway.go
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"elearn-entitlements/internal/domain"
	"elearn-entitlements/internal/domain/ports/adapter"
)

var _ adapter.OrderGateway = (*LocalOrderGateway)(nil)

// LocalOrderGateway implements adapter.OrderGateway against the order-based
// provider's REST API. The shared secret used for callback signatures is
// provisioned out-of-band and lives with the SignatureVerifier, not here.
type LocalOrderGateway struct {
	merchantID string
	baseURL    string
	sandboxURL string
	sandbox    bool
	client     *http.Client
}

func NewLocalOrderGateway(merchantID, baseURL, sandboxURL string, sandbox bool) (*LocalOrderGateway, error) {
	if merchantID == "" {
		return nil, errors.New("merchant id empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	return &LocalOrderGateway{
		merchantID: merchantID,
		baseURL:    baseURL,
		sandboxURL: sandboxURL,
		sandbox:    sandbox,
		client:     &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (g *LocalOrderGateway) Name() string { return "local-order" }

func (g *LocalOrderGateway) endpoint(path string) string {
	base := g.baseURL
	if g.sandbox && g.sandboxURL != "" {
		base = g.sandboxURL
	}
	return base + path
}

// CreateOrder calls the provider's order endpoint and returns the provider
// order id.
func (g *LocalOrderGateway) CreateOrder(ctx context.Context, amount int64, currency, receiptRef string) (string, error) {
	if amount <= 0 || receiptRef == "" {
		return "", domain.ErrInvalidArgument
	}
	payload := map[string]interface{}{
		"merchant_id": g.merchantID,
		"amount":      amount,
		"currency":    currency,
		"receipt":     receiptRef,
	}
	b, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint("/orders"), bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: order http %d", domain.ErrRemoteUnavailable, resp.StatusCode)
	}
	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: order decode: %v", domain.ErrRemoteUnavailable, err)
	}
	if out.ID == "" {
		return "", errors.New("provider returned empty order id")
	}
	return out.ID, nil
}

// QueryOrder fetches the order's status from the provider.
func (g *LocalOrderGateway) QueryOrder(ctx context.Context, providerOrderID string) (*adapter.OrderInquiry, error) {
	if providerOrderID == "" {
		return nil, domain.ErrInvalidArgument
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint("/orders/"+url.PathEscape(providerOrderID)), nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: inquiry http %d", domain.ErrRemoteUnavailable, resp.StatusCode)
	}
	var out struct {
		Status    string `json:"status"`
		PaymentID string `json:"payment_id"`
		Signature string `json:"signature"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: inquiry decode: %v", domain.ErrRemoteUnavailable, err)
	}
	return &adapter.OrderInquiry{
		Paid:      out.Status == "paid",
		PaymentID: out.PaymentID,
		Signature: out.Signature,
	}, nil
}
