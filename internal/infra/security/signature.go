package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"elearn-entitlements/internal/domain"
)

// SignatureVerifier checks the completion callback of the order-based payment
// provider. The provider signs "orderID|paymentID" with the shared secret
// provisioned out-of-band; we recompute and compare in constant time.
//
// Stateless, no side effects. A mismatch is a verification failure, not an
// error; only malformed input errors.
type SignatureVerifier struct {
	secret []byte
}

func NewSignatureVerifier(sharedSecret string) (*SignatureVerifier, error) {
	if sharedSecret == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &SignatureVerifier{secret: []byte(sharedSecret)}, nil
}

// Sign computes the hex HMAC-SHA256 signature for an (orderID, paymentID)
// pair. Used by tests and the seed tool; production signatures come from the
// provider.
func (v *SignatureVerifier) Sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches HMAC(secret, orderID|paymentID).
func (v *SignatureVerifier) Verify(orderID, paymentID, signature string) (bool, error) {
	if orderID == "" || paymentID == "" || signature == "" {
		return false, domain.ErrInvalidArgument
	}
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return false, domain.ErrInvalidArgument
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return hmac.Equal(sig, mac.Sum(nil)), nil
}
