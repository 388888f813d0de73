// Package signing implements a minimal HMAC helper used to seal locally
// persisted records so a hand-edited or stale file is never trusted.
package signing

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// KeySize is the length of generated secrets in bytes.
const KeySize = 32

// Signer generates and validates HMAC based signatures.
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret}
}

// GenerateKey returns a fresh random secret.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return key, nil
}

// Sign returns the hex signature for payload sealed until expiresUnix.
func (s *Signer) Sign(payload []byte, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%d:", expiresUnix)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Validate compares the provided signature with the expected one.
func (s *Signer) Validate(payload []byte, expiresUnix int64, signature string) bool {
	expected := s.Sign(payload, expiresUnix)
	// constant-time comparison
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Verify is Validate plus an expiry check against now.
func (s *Signer) Verify(payload []byte, expiresUnix int64, signature string, now time.Time) bool {
	if now.Unix() >= expiresUnix {
		return false
	}
	return s.Validate(payload, expiresUnix, signature)
}
