// Package content is the static tier: rendering drafts into front-matter
// documents, parsing them back, and the file tree they live in.
package content

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/draft-staging-api/internal/models"
	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingFrontMatter indicates the document did not start with a YAML fence
	ErrMissingFrontMatter = errors.New("content: missing frontmatter")
	// ErrMalformedFrontMatter indicates the YAML block could not be parsed
	ErrMalformedFrontMatter = errors.New("content: malformed frontmatter")
)

// Article is a static document read back from the file tier
type Article struct {
	Slug             string
	Title            string
	Description      string
	PublishedAt      string
	Tags             []string
	SendAsNewsletter bool
	NewsletterSentAt *time.Time
	Content          string
	ModTime          time.Time
}

type frontMatter struct {
	Title            string   `yaml:"title"`
	Description      string   `yaml:"description"`
	PublishedAt      string   `yaml:"publishedAt"`
	Tags             []string `yaml:"tags"`
	SendAsNewsletter bool     `yaml:"sendAsNewsletter"`
	NewsletterSentAt *string  `yaml:"newsletterSentAt"`
}

// Render serializes a draft into the static file format. Strings are
// single-quoted with embedded quotes doubled, tags are a JSON array and an
// unsent newsletter is the literal null.
func Render(d *models.Draft) []byte {
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	var encodedTags bytes.Buffer
	enc := json.NewEncoder(&encodedTags)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(tags)

	sentAt := "null"
	if d.NewsletterSentAt != nil {
		sentAt = d.NewsletterSentAt.UTC().Format(time.RFC3339)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	fmt.Fprintf(&buf, "title: %s\n", quote(d.Title))
	fmt.Fprintf(&buf, "description: %s\n", quote(d.Description))
	fmt.Fprintf(&buf, "publishedAt: %s\n", quote(d.PublishedAt))
	fmt.Fprintf(&buf, "tags: %s\n", bytes.TrimRight(encodedTags.Bytes(), "\n"))
	fmt.Fprintf(&buf, "sendAsNewsletter: %s\n", strconv.FormatBool(d.SendAsNewsletter))
	fmt.Fprintf(&buf, "newsletterSentAt: %s\n", sentAt)
	buf.WriteString("---\n\n")
	buf.WriteString(d.Content)
	return buf.Bytes()
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Parse extracts the front matter and body of a static document
func Parse(data []byte) (*Article, error) {
	if len(data) == 0 {
		return nil, ErrMissingFrontMatter
	}
	normalized := bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return nil, ErrMissingFrontMatter
	}
	rest := normalized[4:]

	var meta, body []byte
	if parts := bytes.SplitN(rest, []byte("\n---\n"), 2); len(parts) == 2 {
		meta, body = parts[0], parts[1]
	} else if bytes.HasSuffix(rest, []byte("\n---")) {
		meta = rest[:len(rest)-4]
	} else {
		return nil, ErrMalformedFrontMatter
	}

	var fm frontMatter
	if err := yaml.Unmarshal(meta, &fm); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrontMatter, err)
	}

	a := &Article{
		Title:            fm.Title,
		Description:      fm.Description,
		PublishedAt:      fm.PublishedAt,
		Tags:             fm.Tags,
		SendAsNewsletter: fm.SendAsNewsletter,
		Content:          string(bytes.TrimPrefix(body, []byte("\n"))),
	}
	if a.Tags == nil {
		a.Tags = []string{}
	}
	if fm.NewsletterSentAt != nil && *fm.NewsletterSentAt != "" {
		sent, err := time.Parse(time.RFC3339, *fm.NewsletterSentAt)
		if err != nil {
			return nil, fmt.Errorf("%w: newsletterSentAt: %v", ErrMalformedFrontMatter, err)
		}
		a.NewsletterSentAt = &sent
	}
	return a, nil
}
