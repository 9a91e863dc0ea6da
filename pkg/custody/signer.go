package custody

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenTTL is the lifetime of a request token.
const TokenTTL = 120 * time.Second

// TokenSigner produces bearer tokens bound to one request.
type TokenSigner interface {
	Sign(path string, body []byte) (string, error)
}

// Signer signs custody API requests with the account's RSA private key.
type Signer struct {
	apiKey     string
	privateKey *rsa.PrivateKey
	now        func() time.Time
}

// RequestClaims are the claims carried by every request token.
type RequestClaims struct {
	URI      string `json:"uri"`
	Nonce    string `json:"nonce"`
	BodyHash string `json:"bodyHash,omitempty"`
	jwt.RegisteredClaims
}

// NewSigner creates a Signer from a PEM-encoded RSA private key.
func NewSigner(apiKey string, privateKeyPEM []byte) (*Signer, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse custody private key: %w", err)
	}
	return &Signer{apiKey: apiKey, privateKey: key, now: time.Now}, nil
}

// NewSignerFromFile reads the PEM key at path.
func NewSignerFromFile(apiKey, path string) (*Signer, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read custody private key: %w", err)
	}
	return NewSigner(apiKey, pem)
}

// Sign returns a token for path and body. Every call uses a fresh nonce and
// timestamp, so tokens must not be cached or reused.
func (s *Signer) Sign(path string, body []byte) (string, error) {
	now := s.now()
	claims := RequestClaims{
		URI:   path,
		Nonce: uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.apiKey,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
	}
	if len(body) > 0 {
		sum := sha256.Sum256(body)
		claims.BodyHash = hex.EncodeToString(sum[:])
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign custody request: %w", err)
	}
	return signed, nil
}
