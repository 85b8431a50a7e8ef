// Package token round-trips an original URL through the certificate
// error page without letting page content forge the error state. Each
// signer holds a random per-session secret; only tokens minted by the
// same signer verify.
package token

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Scheme prefixes every signed error URL, so the engine can cheaply
// recognize its own tokens among ordinary addresses.
const Scheme = "x-retroview-cert-error:"

type urlClaims struct {
	jwt.RegisteredClaims
	URL string `json:"url"`
}

// Signer mints and verifies signed certificate-error URLs.
type Signer struct {
	secret []byte
}

// NewSigner creates a signer with a fresh random secret.
func NewSigner() (*Signer, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate token secret: %w", err)
	}
	return &Signer{secret: secret}, nil
}

// Sign wraps url into a tamper-evident error-page URL.
func (s *Signer) Sign(url string) (string, error) {
	claims := urlClaims{URL: url}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign error URL: %w", err)
	}
	return Scheme + signed, nil
}

// Verify returns the original URL if candidate is a token minted by
// this signer, and false otherwise.
func (s *Signer) Verify(candidate string) (string, bool) {
	raw, ok := strings.CutPrefix(candidate, Scheme)
	if !ok {
		return "", false
	}
	var claims urlClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !tok.Valid || claims.URL == "" {
		return "", false
	}
	return claims.URL, true
}
