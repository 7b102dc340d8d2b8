package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
)

// PebbleStore is an embedded Store for single-node deployments
type PebbleStore struct {
	db   *pebble.DB
	path string

	// Serializes CompareAndSwap against other writers in this process.
	// Pebble has no conditional write, so cross-process CAS is not provided.
	mu sync.Mutex
}

var (
	_ Store   = (*PebbleStore)(nil)
	_ Swapper = (*PebbleStore)(nil)
)

// PebbleOptions configures the embedded store
type PebbleOptions struct {
	CacheSizeMB int64
	DisableWAL  bool // tests only
}

// NewPebbleStore opens (or creates) a pebble database at path
func NewPebbleStore(path string, opts PebbleOptions) (*PebbleStore, error) {
	if opts.CacheSizeMB <= 0 {
		opts.CacheSizeMB = 16
	}
	cache := pebble.NewCache(opts.CacheSizeMB << 20)
	defer cache.Unref()

	db, err := pebble.Open(path, &pebble.Options{
		Cache:      cache,
		DisableWAL: opts.DisableWAL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble store at %s: %w", path, err)
	}
	return &PebbleStore{db: db, path: path}, nil
}

func (s *PebbleStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get", key, err)
	}
	out := append([]byte(nil), val...)
	closer.Close()
	return out, nil
}

func (s *PebbleStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Set([]byte(key), value, pebble.Sync); err != nil {
		return unavailable("set", key, err)
	}
	return nil
}

func (s *PebbleStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Delete([]byte(key), pebble.Sync); err != nil {
		return unavailable("delete", key, err)
	}
	return nil
}

func (s *PebbleStore) CompareAndSwap(ctx context.Context, key string, old, new []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, closer, err := s.db.Get([]byte(key))
	switch {
	case errors.Is(err, pebble.ErrNotFound):
		if old != nil {
			return false, nil
		}
	case err != nil:
		return false, unavailable("compare-and-swap", key, err)
	default:
		same := old != nil && bytes.Equal(cur, old)
		closer.Close()
		if !same {
			return false, nil
		}
	}

	if err := s.db.Set([]byte(key), new, pebble.Sync); err != nil {
		return false, unavailable("compare-and-swap", key, err)
	}
	return true, nil
}

// Close flushes and closes the underlying database
func (s *PebbleStore) Close() error {
	return s.db.Close()
}
