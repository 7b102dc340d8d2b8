package mocks

import (
	"context"
	"sync"

	"github.com/draft-staging-api/internal/deploy"
	"github.com/draft-staging-api/internal/service"
)

// MockDeployTrigger records deploy hook calls
type MockDeployTrigger struct {
	URL         string
	TriggerFunc func(ctx context.Context) (*deploy.Response, error)

	mu    sync.Mutex
	calls int
}

// Verify interface compliance
var _ service.DeployTrigger = (*MockDeployTrigger)(nil)

func NewMockDeployTrigger(url string) *MockDeployTrigger {
	return &MockDeployTrigger{URL: url}
}

func (m *MockDeployTrigger) Configured() bool {
	return m.URL != ""
}

func (m *MockDeployTrigger) Trigger(ctx context.Context) (*deploy.Response, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.TriggerFunc != nil {
		return m.TriggerFunc(ctx)
	}
	if !m.Configured() {
		return nil, deploy.ErrNotConfigured
	}
	return &deploy.Response{URL: "https://deploy.example/builds/1", Job: map[string]any{"id": "job-1"}}, nil
}

func (m *MockDeployTrigger) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
