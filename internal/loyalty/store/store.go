package store

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("store: not found")

// Durable record keys.
const (
	KeyTokens   = "auth-tokens"
	KeySession  = "auth-storage"
	KeyDeviceID = "device-id"
	KeySalt     = "seal-salt"
)

// KV is the durable key-value store behind the token and session stores.
// Drivers (sqlite, memory) implement it.
type KV interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set inserts or replaces the value for key.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Store is a KV with a lifecycle.
type Store interface {
	KV

	ApplyMigrations() error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}
