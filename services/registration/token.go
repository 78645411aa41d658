package registration

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// TokenIssuer mints opaque verification tokens. Tokens are drawn from
// crypto/rand and hex-encoded, so they are URL-safe and collisions are
// negligible at any practical volume.
type TokenIssuer struct {
	length int
	ttl    time.Duration
}

func NewTokenIssuer(length int, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{length: length, ttl: ttl}
}

func (i *TokenIssuer) Issue() (token string, expiresAt time.Time, err error) {
	bytes := make([]byte, i.length)
	if _, err := rand.Read(bytes); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate secure token: %w", err)
	}

	return hex.EncodeToString(bytes), time.Now().Add(i.ttl), nil
}

func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}
