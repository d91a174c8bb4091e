// File: internal/infra/adapters/iap/verifier.go
package iap

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"elearn-entitlements/internal/domain"
	"elearn-entitlements/internal/domain/model"
	"elearn-entitlements/internal/domain/ports/adapter"
)

var _ adapter.ReceiptVerifier = (*Verifier)(nil)

// Environment-mismatch status codes from the authority's verify endpoint:
// a receipt sent to the wrong environment triggers exactly one retry against
// the other endpoint, never a loop.
const (
	statusSandboxReceiptOnProduction = 21007
	statusProductionReceiptOnSandbox = 21008
)

// Config holds the remote authority endpoints and credentials.
type Config struct {
	SandboxURL    string // server-to-server verify, sandbox
	ProductionURL string // server-to-server verify, production
	KeySetURL     string // published verification keys
	SharedSecret  string // app shared secret for the verify endpoint
	Environment   string // "sandbox" (default) or "production": which endpoint to try first
}

// Verifier validates IAP receipts: signed three-part tokens locally against
// the authority's published keys, opaque legacy blobs via the authority's
// server-to-server endpoint.
type Verifier struct {
	cfg    Config
	keys   *keySetClient
	client *http.Client
	log    *zerolog.Logger
}

func NewVerifier(cfg Config, signer *AssertionSigner, cache KeyCache, logger *zerolog.Logger) (*Verifier, error) {
	if cfg.SandboxURL == "" || cfg.ProductionURL == "" || cfg.KeySetURL == "" {
		return nil, domain.ErrInvalidArgument
	}
	client := &http.Client{Timeout: 15 * time.Second}
	return &Verifier{
		cfg:    cfg,
		keys:   newKeySetClient(cfg.KeySetURL, signer, cache, client),
		client: client,
		log:    logger,
	}, nil
}

func (v *Verifier) Verify(ctx context.Context, receiptBlob, expectedProductID string) (*model.VerifiedTransaction, error) {
	if receiptBlob == "" || expectedProductID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if looksLikeSignedToken(receiptBlob) {
		return v.verifySigned(ctx, receiptBlob, expectedProductID)
	}
	if _, err := base64.StdEncoding.DecodeString(receiptBlob); err != nil {
		// Neither a signed token nor a base64 legacy blob. Local parsing of
		// anything else is unsupported by design.
		return nil, domain.ErrUnsupportedReceiptFormat
	}
	return v.verifyLegacy(ctx, receiptBlob, expectedProductID)
}

func looksLikeSignedToken(blob string) bool {
	parts := strings.Split(blob, ".")
	if len(parts) != 3 {
		return false
	}
	head, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}
	var hdr struct {
		Alg string `json:"alg"`
	}
	return json.Unmarshal(head, &hdr) == nil && hdr.Alg != ""
}

// transactionClaims is the payload of a signed transaction token.
type transactionClaims struct {
	TransactionID         string `json:"transactionId"`
	OriginalTransactionID string `json:"originalTransactionId"`
	ProductID             string `json:"productId"`
	PurchaseDateMs        int64  `json:"purchaseDate"`
	Environment           string `json:"environment"`
	jwt.RegisteredClaims
}

func (v *Verifier) verifySigned(ctx context.Context, token, expectedProductID string) (*model.VerifiedTransaction, error) {
	claims := &transactionClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("token header missing kid")
		}
		return v.keys.lookup(ctx, kid)
	}, jwt.WithValidMethods([]string{"ES256"}))
	if err != nil {
		// An unreachable key set is transient, not a rejection.
		if errors.Is(err, domain.ErrRemoteUnavailable) || ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrRemoteVerificationFailed, err)
	}
	if claims.TransactionID == "" || claims.ProductID == "" {
		return nil, fmt.Errorf("%w: incomplete transaction payload", domain.ErrRemoteVerificationFailed)
	}
	if claims.ProductID != expectedProductID {
		return nil, domain.ErrProductMismatch
	}
	return &model.VerifiedTransaction{
		Provider:                    model.ProviderRemoteReceipt,
		RemoteTransactionID:         claims.TransactionID,
		RemoteOriginalTransactionID: claims.OriginalTransactionID,
		ProductID:                   claims.ProductID,
		Environment:                 strings.ToLower(claims.Environment),
		PurchasedAt:                 time.UnixMilli(claims.PurchaseDateMs),
	}, nil
}

// legacyTransaction is one entry of latest_receipt_info / receipt.in_app.
type legacyTransaction struct {
	TransactionID         string `json:"transaction_id"`
	OriginalTransactionID string `json:"original_transaction_id"`
	ProductID             string `json:"product_id"`
	PurchaseDateMs        string `json:"purchase_date_ms"`
}

type legacyResponse struct {
	Status            int                 `json:"status"`
	Environment       string              `json:"environment"`
	LatestReceiptInfo []legacyTransaction `json:"latest_receipt_info"`
	Receipt           struct {
		InApp []legacyTransaction `json:"in_app"`
	} `json:"receipt"`
}

func (v *Verifier) verifyLegacy(ctx context.Context, receiptData, expectedProductID string) (*model.VerifiedTransaction, error) {
	primary, secondary := v.cfg.SandboxURL, v.cfg.ProductionURL
	if strings.EqualFold(v.cfg.Environment, "production") {
		primary, secondary = v.cfg.ProductionURL, v.cfg.SandboxURL
	}

	resp, err := v.postVerify(ctx, primary, receiptData)
	if err != nil {
		return nil, err
	}
	if resp.Status == statusSandboxReceiptOnProduction || resp.Status == statusProductionReceiptOnSandbox {
		v.log.Debug().Int("status", resp.Status).Msg("environment mismatch, retrying other endpoint")
		resp, err = v.postVerify(ctx, secondary, receiptData)
		if err != nil {
			return nil, err
		}
	}
	if resp.Status != 0 {
		return nil, fmt.Errorf("%w: authority status %d", domain.ErrRemoteVerificationFailed, resp.Status)
	}

	txns := resp.LatestReceiptInfo
	if len(txns) == 0 {
		txns = resp.Receipt.InApp
	}
	if len(txns) == 0 {
		return nil, fmt.Errorf("%w: no transactions in receipt", domain.ErrRemoteVerificationFailed)
	}
	// Most recent transaction wins.
	sort.Slice(txns, func(i, j int) bool {
		return parseMs(txns[i].PurchaseDateMs) > parseMs(txns[j].PurchaseDateMs)
	})
	latest := txns[0]
	if latest.ProductID != expectedProductID {
		return nil, domain.ErrProductMismatch
	}
	return &model.VerifiedTransaction{
		Provider:                    model.ProviderRemoteReceipt,
		RemoteTransactionID:         latest.TransactionID,
		RemoteOriginalTransactionID: latest.OriginalTransactionID,
		ProductID:                   latest.ProductID,
		Environment:                 strings.ToLower(resp.Environment),
		PurchasedAt:                 time.UnixMilli(parseMs(latest.PurchaseDateMs)),
	}, nil
}

func (v *Verifier) postVerify(ctx context.Context, endpoint, receiptData string) (*legacyResponse, error) {
	payload := map[string]interface{}{
		"receipt-data":             receiptData,
		"password":                 v.cfg.SharedSecret,
		"exclude-old-transactions": true,
	}
	b, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		// Transport failure or timeout: retryable, distinct from an explicit
		// rejection by the authority.
		return nil, fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: verify http %d", domain.ErrRemoteUnavailable, resp.StatusCode)
	}
	var out legacyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: verify decode: %v", domain.ErrRemoteUnavailable, err)
	}
	return &out, nil
}

func parseMs(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
