package mocks

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/draft-staging-api/internal/content"
	"github.com/draft-staging-api/internal/service"
)

// MockStaticStore is an in-memory file tier
type MockStaticStore struct {
	mu        sync.Mutex
	Files     map[string][]byte
	WriteErr  map[string]error
	RemoveErr map[string]error
	ListErr   error
	Writes    int
}

// Verify interface compliance
var _ service.StaticStore = (*MockStaticStore)(nil)

func NewMockStaticStore() *MockStaticStore {
	return &MockStaticStore{
		Files:     make(map[string][]byte),
		WriteErr:  make(map[string]error),
		RemoveErr: make(map[string]error),
	}
}

// Seed stores a document without going through Write
func (m *MockStaticStore) Seed(slug, doc string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Files[slug] = []byte(doc)
}

func (m *MockStaticStore) Has(slug string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Files[slug]
	return ok
}

func validSlug(slug string) error {
	if slug == "" || strings.ContainsAny(slug, `/\`) {
		return fmt.Errorf("%w: %q", content.ErrInvalidSlug, slug)
	}
	return nil
}

func (m *MockStaticStore) Write(slug string, data []byte) error {
	if err := validSlug(slug); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.WriteErr[slug]; err != nil {
		return err
	}
	m.Files[slug] = append([]byte{}, data...)
	m.Writes++
	return nil
}

func (m *MockStaticStore) Remove(slug string) (bool, error) {
	if err := validSlug(slug); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.RemoveErr[slug]; err != nil {
		return false, err
	}
	if _, ok := m.Files[slug]; !ok {
		return false, nil
	}
	delete(m.Files, slug)
	return true, nil
}

func (m *MockStaticStore) Exists(slug string) (bool, error) {
	if err := validSlug(slug); err != nil {
		return false, err
	}
	return m.Has(slug), nil
}

func (m *MockStaticStore) Read(slug string) (*content.Article, error) {
	if err := validSlug(slug); err != nil {
		return nil, err
	}
	m.mu.Lock()
	data, ok := m.Files[slug]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", content.ErrNotFound, slug)
	}
	a, err := content.Parse(data)
	if err != nil {
		return nil, err
	}
	a.Slug = slug
	a.ModTime = time.Unix(0, 0).UTC()
	return a, nil
}

func (m *MockStaticStore) List() ([]*content.Article, error) {
	m.mu.Lock()
	if m.ListErr != nil {
		m.mu.Unlock()
		return nil, m.ListErr
	}
	slugs := make([]string, 0, len(m.Files))
	for slug := range m.Files {
		slugs = append(slugs, slug)
	}
	m.mu.Unlock()

	sort.Strings(slugs)
	articles := make([]*content.Article, 0, len(slugs))
	for _, slug := range slugs {
		a, err := m.Read(slug)
		if err != nil {
			continue
		}
		articles = append(articles, a)
	}
	return articles, nil
}
