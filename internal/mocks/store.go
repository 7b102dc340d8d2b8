package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/draft-staging-api/internal/kv"
)

// Op names a store operation for fault injection
type Op string

const (
	OpGet    Op = "get"
	OpSet    Op = "set"
	OpDelete Op = "delete"
)

type fault struct {
	op  Op
	key string
}

// MockStore is an in-memory kv.Store and kv.Swapper with fault injection
type MockStore struct {
	*kv.MemoryStore

	mu     sync.Mutex
	down   bool
	faults map[fault]error
	Calls  map[Op]int
}

// Verify interface compliance
var (
	_ kv.Store   = (*MockStore)(nil)
	_ kv.Swapper = (*MockStore)(nil)
)

func NewMockStore() *MockStore {
	return &MockStore{
		MemoryStore: kv.NewMemoryStore(),
		faults:      make(map[fault]error),
		Calls:       make(map[Op]int),
	}
}

// SetDown makes every operation fail as an unreachable backend would
func (m *MockStore) SetDown(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down = down
}

// FailOn makes op on key fail with an unavailable error until Reset
func (m *MockStore) FailOn(op Op, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[fault{op, key}] = fmt.Errorf("%w: injected %s failure on %q", kv.ErrUnavailable, op, key)
}

// Reset clears injected faults and brings the store back up
func (m *MockStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down = false
	m.faults = make(map[fault]error)
}

// Plain hides the compare-and-swap capability
func (m *MockStore) Plain() kv.Store {
	return plainStore{m}
}

type plainStore struct{ s *MockStore }

func (p plainStore) Get(ctx context.Context, key string) ([]byte, error) {
	return p.s.Get(ctx, key)
}

func (p plainStore) Set(ctx context.Context, key string, value []byte) error {
	return p.s.Set(ctx, key, value)
}

func (p plainStore) Delete(ctx context.Context, key string) error {
	return p.s.Delete(ctx, key)
}

func (m *MockStore) check(op Op, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls[op]++
	if m.down {
		return fmt.Errorf("%w: connection refused", kv.ErrUnavailable)
	}
	return m.faults[fault{op, key}]
}

func (m *MockStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := m.check(OpGet, key); err != nil {
		return nil, err
	}
	return m.MemoryStore.Get(ctx, key)
}

func (m *MockStore) Set(ctx context.Context, key string, value []byte) error {
	if err := m.check(OpSet, key); err != nil {
		return err
	}
	return m.MemoryStore.Set(ctx, key, value)
}

func (m *MockStore) Delete(ctx context.Context, key string) error {
	if err := m.check(OpDelete, key); err != nil {
		return err
	}
	return m.MemoryStore.Delete(ctx, key)
}

func (m *MockStore) CompareAndSwap(ctx context.Context, key string, old, new []byte) (bool, error) {
	if err := m.check(OpSet, key); err != nil {
		return false, err
	}
	return m.MemoryStore.CompareAndSwap(ctx, key, old, new)
}
