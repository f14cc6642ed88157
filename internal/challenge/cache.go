// Package challenge stores one-time, time-bounded tokens: wallet link nonces,
// OAuth state values and auth-code exchange entries. A token is consumed at
// most once and is rejected after its TTL even if it was never purged.
package challenge

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no live token exists for a key: it was never
// issued, was already consumed, or is older than the TTL.
var ErrNotFound = errors.New("challenge not found or expired")

// Cache is a TTL-bounded key-value store with single-consumer semantics.
type Cache interface {
	// Issue generates a fresh random token for key, replacing any
	// outstanding one.
	Issue(ctx context.Context, key string) (string, error)
	// Put stores a caller-chosen value for key, replacing any outstanding one.
	Put(ctx context.Context, key, value string) error
	// Consume atomically removes and returns the value for key.
	Consume(ctx context.Context, key string) (string, error)
	// PeekExpire reports when the outstanding value for key expires
	// without consuming it.
	PeekExpire(ctx context.Context, key string) (time.Time, error)
}

// NormalizeKey case-folds and trims a key so "0xAB" and "0xab" share a slot.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// NewToken returns an opaque random token.
func NewToken() string {
	return uuid.NewString()
}
