package cache

import (
	"context"
	"time"
)

// Cache is the key/value surface used for job status records, the health
// check key and the webhook event claim.
type Cache interface {
	// Get retrieves a value by key
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value with optional TTL
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	// SetNX sets a value only if the key doesn't exist (atomic)
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)

	// GetJSON retrieves and unmarshals JSON data
	GetJSON(ctx context.Context, key string, dest interface{}) error

	// SetJSON marshals and stores JSON data
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	Close() error
}

// Key prefixes for consistent cache key naming
const (
	EventPrefix = "coaching:event:"
	JobPrefix   = "coaching:job:"
	HealthKey   = "coaching:health"
)

// Common TTL values
const (
	DefaultTTL     = 1 * time.Hour
	EventMarkerTTL = 24 * time.Hour
	EventClaimTTL  = 5 * time.Minute
	JobTTL         = 7 * 24 * time.Hour
)

// ErrCacheKeyNotFound is returned when a cache key doesn't exist
type ErrCacheKeyNotFound struct {
	Key string
}

func (e ErrCacheKeyNotFound) Error() string {
	return "cache key not found: " + e.Key
}
