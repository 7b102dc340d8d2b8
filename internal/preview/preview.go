// Package preview renders draft markdown to HTML for the admin editor
package preview

import (
	"bytes"
	"errors"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

// ErrEmptyContent is returned when there is nothing to preview
var ErrEmptyContent = errors.New("content is required for preview")

// Renderer turns markdown into HTML
type Renderer interface {
	Render(markdown string) (string, error)
}

type goldmarkRenderer struct {
	md goldmark.Markdown
}

// NewGoldmark returns a GitHub-flavoured markdown renderer. Raw HTML in the
// source is omitted from the output.
func NewGoldmark() Renderer {
	return &goldmarkRenderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		),
	}
}

func (r *goldmarkRenderer) Render(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Request is an unsaved draft as typed in the editor. Every field but
// Content is optional.
type Request struct {
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	Content          string   `json:"content"`
	PublishedAt      string   `json:"publishedAt"`
	Tags             []string `json:"tags"`
	SendAsNewsletter bool     `json:"sendAsNewsletter"`
}

// Preview is the rendered draft
type Preview struct {
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	PublishedAt      string   `json:"publishedAt"`
	Tags             []string `json:"tags"`
	SendAsNewsletter bool     `json:"sendAsNewsletter"`
	Content          string   `json:"content"`
}

// Build renders req, filling defaults for the optional fields
func Build(r Renderer, req Request, now time.Time) (*Preview, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, ErrEmptyContent
	}
	html, err := r.Render(req.Content)
	if err != nil {
		return nil, err
	}

	p := &Preview{
		Title:            req.Title,
		Description:      req.Description,
		PublishedAt:      req.PublishedAt,
		Tags:             req.Tags,
		SendAsNewsletter: req.SendAsNewsletter,
		Content:          html,
	}
	if p.Title == "" {
		p.Title = "Untitled"
	}
	if p.PublishedAt == "" {
		p.PublishedAt = now.UTC().Format("2006-01-02")
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return p, nil
}
