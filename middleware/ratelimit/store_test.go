package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryStore_Increment(t *testing.T) {
	store := NewMemoryStore()
	resetTime := time.Now().Add(time.Minute)

	assert.Equal(t, 1, store.Increment("client", resetTime))
	assert.Equal(t, 2, store.Increment("client", resetTime))
	assert.Equal(t, 3, store.Increment("client", resetTime))

	// Independent keys count independently.
	assert.Equal(t, 1, store.Increment("other", resetTime))
}

func TestMemoryStore_Get(t *testing.T) {
	store := NewMemoryStore()
	resetTime := time.Now().Add(time.Minute)

	_, _, exists := store.Get("client")
	assert.False(t, exists)

	store.Increment("client", resetTime)

	count, gotReset, exists := store.Get("client")
	assert.True(t, exists)
	assert.Equal(t, 1, count)
	assert.WithinDuration(t, resetTime, gotReset, time.Second)
}

func TestMemoryStore_WindowExpiry(t *testing.T) {
	store := NewMemoryStore()

	store.Increment("client", time.Now().Add(10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	_, _, exists := store.Get("client")
	assert.False(t, exists, "an elapsed window reads as absent")

	// The next increment starts a fresh window at 1.
	assert.Equal(t, 1, store.Increment("client", time.Now().Add(time.Minute)))
}

func TestMemoryStore_Reset(t *testing.T) {
	store := NewMemoryStore()
	resetTime := time.Now().Add(time.Minute)

	store.Increment("client", resetTime)
	store.Reset("client")

	_, _, exists := store.Get("client")
	assert.False(t, exists)
}
