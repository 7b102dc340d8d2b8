package content

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// Extension is the file suffix of every static article
const Extension = ".md"

var (
	// ErrInvalidSlug is returned for slugs that cannot name a file in the tree
	ErrInvalidSlug = errors.New("content: invalid slug")
	// ErrNotFound is returned when no static file exists for a slug
	ErrNotFound = errors.New("content: article not found")
)

const defaultParseCacheSize = 256

type cachedArticle struct {
	modTime time.Time
	size    int64
	article *Article
}

// FileStore is the directory of materialized articles, one file per slug
type FileStore struct {
	dir   string
	cache *lru.Cache[string, cachedArticle]
	log   zerolog.Logger
}

// NewFileStore creates a store rooted at dir. Parsed files are kept in an LRU
// cache keyed by path and invalidated when the file's mod time or size changes.
func NewFileStore(dir string, cacheSize int, log zerolog.Logger) (*FileStore, error) {
	if cacheSize <= 0 {
		cacheSize = defaultParseCacheSize
	}
	cache, err := lru.New[string, cachedArticle](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create parse cache: %w", err)
	}
	return &FileStore{
		dir:   dir,
		cache: cache,
		log:   log.With().Str("component", "content").Str("dir", dir).Logger(),
	}, nil
}

// Dir returns the root directory
func (s *FileStore) Dir() string {
	return s.dir
}

// Path returns the file path for slug
func (s *FileStore) Path(slug string) (string, error) {
	if slug == "" || slug == "." || slug == ".." || strings.ContainsAny(slug, `/\`) || strings.ContainsRune(slug, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSlug, slug)
	}
	return filepath.Join(s.dir, slug+Extension), nil
}

// Write replaces the file for slug atomically: readers see either the old
// document or the new one, never a partial write.
func (s *FileStore) Write(slug string, data []byte) error {
	path, err := s.Path(slug)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create content dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+slug+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op after a successful rename
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", slug, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", slug, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", slug, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", slug, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", slug, err)
	}

	s.cache.Remove(path)
	return nil
}

// Remove deletes the file for slug. It reports false when there was nothing
// to delete.
func (s *FileStore) Remove(slug string) (bool, error) {
	path, err := s.Path(slug)
	if err != nil {
		return false, err
	}
	s.cache.Remove(path)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Exists reports whether a file exists for slug
func (s *FileStore) Exists(slug string) (bool, error) {
	path, err := s.Path(slug)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// Read parses the file for slug. ErrNotFound when it does not exist.
func (s *FileStore) Read(slug string) (*Article, error) {
	path, err := s.Path(slug)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, slug)
	}
	if err != nil {
		return nil, err
	}
	return s.load(slug, path, info)
}

// List parses every article in the tree, sorted by slug. Files that fail to
// parse are skipped with a warning.
func (s *FileStore) List() ([]*Article, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []*Article{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read content dir: %w", err)
	}

	articles := make([]*Article, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != Extension {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		slug := strings.TrimSuffix(name, Extension)
		a, err := s.load(slug, filepath.Join(s.dir, name), info)
		if err != nil {
			s.log.Warn().Err(err).Str("slug", slug).Msg("Skipping unreadable article")
			continue
		}
		articles = append(articles, a)
	}

	sort.Slice(articles, func(i, j int) bool { return articles[i].Slug < articles[j].Slug })
	return articles, nil
}

func (s *FileStore) load(slug, path string, info os.FileInfo) (*Article, error) {
	if cached, ok := s.cache.Get(path); ok && cached.modTime.Equal(info.ModTime()) && cached.size == info.Size() {
		return copyArticle(cached.article), nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, slug)
	}
	if err != nil {
		return nil, err
	}
	a, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", slug, err)
	}
	a.Slug = slug
	a.ModTime = info.ModTime()

	s.cache.Add(path, cachedArticle{modTime: info.ModTime(), size: info.Size(), article: a})
	return copyArticle(a), nil
}

func copyArticle(a *Article) *Article {
	c := *a
	c.Tags = append([]string{}, a.Tags...)
	if a.NewsletterSentAt != nil {
		t := *a.NewsletterSentAt
		c.NewsletterSentAt = &t
	}
	return &c
}
