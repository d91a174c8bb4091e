// File: internal/infra/adapters/iap/keyset.go
package iap

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"elearn-entitlements/internal/domain"
	"elearn-entitlements/internal/infra/metrics"
)

// KeyCache caches the authority's published verification keys, keyed by key
// id. Entries carry a 24h TTL; a stale-but-present entry is preferred over
// blocking on a refresh.
type KeyCache interface {
	Get(ctx context.Context, kid string) (jwkJSON string, ok bool)
	Set(ctx context.Context, kid, jwkJSON string, ttl time.Duration)
}

// KeyTTL is how long a fetched verification key stays cached.
const KeyTTL = 24 * time.Hour

// jwk is the subset of a JSON Web Key we need for ES256 verification.
type jwk struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	Kid string `json:"kid"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

func (k jwk) publicKey() (*ecdsa.PublicKey, error) {
	if k.Kty != "EC" || k.Crv != "P-256" {
		return nil, fmt.Errorf("unsupported key type %s/%s", k.Kty, k.Crv)
	}
	xb, err := base64.RawURLEncoding.DecodeString(k.X)
	if err != nil {
		return nil, fmt.Errorf("jwk x: %w", err)
	}
	yb, err := base64.RawURLEncoding.DecodeString(k.Y)
	if err != nil {
		return nil, fmt.Errorf("jwk y: %w", err)
	}
	return &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(xb),
		Y:     new(big.Int).SetBytes(yb),
	}, nil
}

// AssertionSigner mints the short-lived signed assertion the key-set endpoint
// requires. Key material is injected at construction; nothing is read from
// disk here.
type AssertionSigner struct {
	issuerID string
	keyID    string
	bundleID string
	audience string
	key      *ecdsa.PrivateKey
	ttl      time.Duration
}

func NewAssertionSigner(issuerID, keyID, bundleID, audience, privateKeyPEM string) (*AssertionSigner, error) {
	if issuerID == "" || keyID == "" || privateKeyPEM == "" {
		return nil, domain.ErrInvalidArgument
	}
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil {
		return nil, errors.New("assertion key: no PEM block")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("assertion key: %w", err)
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.New("assertion key: not an EC key")
	}
	if audience == "" {
		audience = "appstoreconnect-v1"
	}
	return &AssertionSigner{
		issuerID: issuerID,
		keyID:    keyID,
		bundleID: bundleID,
		audience: audience,
		key:      key,
		ttl:      5 * time.Minute,
	}, nil
}

// Sign produces an ES256 JWT with issuer/key-id/audience claims, valid for a
// few minutes.
func (s *AssertionSigner) Sign(now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"iss": s.issuerID,
		"iat": jwt.NewNumericDate(now),
		"exp": jwt.NewNumericDate(now.Add(s.ttl)),
		"aud": s.audience,
		"bid": s.bundleID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = s.keyID
	return token.SignedString(s.key)
}

// keySetClient fetches the authority's key set, authenticated with a signed
// assertion, and fills the cache.
type keySetClient struct {
	endpoint string
	signer   *AssertionSigner
	cache    KeyCache
	client   *http.Client
}

func newKeySetClient(endpoint string, signer *AssertionSigner, cache KeyCache, client *http.Client) *keySetClient {
	return &keySetClient{endpoint: endpoint, signer: signer, cache: cache, client: client}
}

// lookup returns the verification key for kid, consulting the cache first.
func (c *keySetClient) lookup(ctx context.Context, kid string) (*ecdsa.PublicKey, error) {
	if raw, ok := c.cache.Get(ctx, kid); ok {
		var k jwk
		if err := json.Unmarshal([]byte(raw), &k); err == nil {
			if pub, err := k.publicKey(); err == nil {
				metrics.IncKeyCache("hit")
				return pub, nil
			}
		}
	}
	metrics.IncKeyCache("miss")

	keys, err := c.fetch(ctx)
	if err != nil {
		metrics.IncKeyCache("error")
		return nil, err
	}
	metrics.IncKeyCache("refresh")

	var found *ecdsa.PublicKey
	for _, k := range keys {
		if b, err := json.Marshal(k); err == nil {
			c.cache.Set(ctx, k.Kid, string(b), KeyTTL)
		}
		if k.Kid == kid {
			pub, err := k.publicKey()
			if err != nil {
				return nil, err
			}
			found = pub
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: no key for kid %s", domain.ErrRemoteVerificationFailed, kid)
	}
	return found, nil
}

func (c *keySetClient) fetch(ctx context.Context) ([]jwk, error) {
	assertion, err := c.signer.Sign(time.Now())
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+assertion)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: key set http %d", domain.ErrRemoteUnavailable, resp.StatusCode)
	}
	var out struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: key set decode: %v", domain.ErrRemoteUnavailable, err)
	}
	return out.Keys, nil
}
