package storage

import (
	"context"
	"errors"
)

// Storage is the device-local key/value port the persistence layer writes
// through. Consumers define this interface, not the backends, so the cart can
// be tested without a real storage backend.
type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

var (
	ErrNotFound      = errors.New("storage key not found")
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)
