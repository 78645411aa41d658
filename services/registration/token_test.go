package registration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIssuer_Issue(t *testing.T) {
	issuer := NewTokenIssuer(32, 24*time.Hour)

	token, expiresAt, err := issuer.Issue()
	require.NoError(t, err)

	assert.Len(t, token, 64, "32 random bytes hex-encode to 64 characters")
	assert.Regexp(t, "^[0-9a-f]+$", token)

	assert.WithinDuration(t, time.Now().Add(24*time.Hour), expiresAt, 5*time.Second)
}

func TestTokenIssuer_Issue_Unique(t *testing.T) {
	issuer := NewTokenIssuer(32, time.Hour)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, _, err := issuer.Issue()
		require.NoError(t, err)
		assert.False(t, seen[token], "token %q issued twice", token)
		seen[token] = true
	}
}

func TestTokenIssuer_TTL(t *testing.T) {
	issuer := NewTokenIssuer(16, 48*time.Hour)
	assert.Equal(t, 48*time.Hour, issuer.TTL())
}
