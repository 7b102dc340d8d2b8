// Package kv defines the key-value backend the draft tier is stored in, and
// the adapters that satisfy it. Backends are not required to support prefix
// enumeration; callers keep their own indexes.
package kv

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Get when the key is absent
	ErrNotFound = errors.New("kv: key not found")
	// ErrUnavailable wraps any failure to reach or operate the backend
	ErrUnavailable = errors.New("kv: backend unavailable")
)

// Store is the minimal get/set/delete contract consumed by the repositories
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Swapper is implemented by backends that can atomically replace a value only
// if it still holds the expected bytes. A nil old value means the key must be
// absent.
type Swapper interface {
	CompareAndSwap(ctx context.Context, key string, old, new []byte) (bool, error)
}

// unavailable wraps a backend error so errors.Is(err, ErrUnavailable) holds
func unavailable(op, key string, err error) error {
	return fmt.Errorf("%w: %s %q: %v", ErrUnavailable, op, key, err)
}

// IsUnavailable reports whether err came from an unreachable backend
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
