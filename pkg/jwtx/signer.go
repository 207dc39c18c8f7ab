package jwtx

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// Signer is our interface for anything that can sign JWTs.
type Signer interface {
	Alg() string
	Sign(Claims) (string, error)
}

// HS256Signer signs tokens with a shared secret. Only the stub server signs
// tokens; clients treat them as opaque apart from unverified inspection.
type HS256Signer struct {
	secret []byte
}

// minSecretLen is the HMAC-SHA256 block-size floor we insist on.
const minSecretLen = 32

// NewSignerHS256 creates a signer from a shared secret.
func NewSignerHS256(secret []byte) (*HS256Signer, error) {
	if len(secret) < minSecretLen {
		return nil, errors.New("jwtx: HS256 secret must be at least 32 bytes")
	}
	return &HS256Signer{secret: secret}, nil
}

func (s *HS256Signer) Alg() string { return jwt.SigningMethodHS256.Alg() }

// Sign turns claims into a signed JWT string.
func (s *HS256Signer) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.secret)
}

// Verifier returns a verifier sharing this signer's secret.
func (s *HS256Signer) Verifier(issuer string) *HS256Verifier {
	return NewVerifierHS256(s.secret, issuer)
}
