package preview

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoldmark_Render(t *testing.T) {
	html, err := NewGoldmark().Render("# Title\n\nSome *emphasis* and ~~strike~~.\n\n| a | b |\n|---|---|\n| 1 | 2 |\n\n<script>alert(1)</script>\n")
	require.NoError(t, err)
	assert.Contains(t, html, `<h1 id="title">Title</h1>`)
	assert.Contains(t, html, "<em>emphasis</em>")
	assert.Contains(t, html, "<del>strike</del>")
	assert.Contains(t, html, "<table>")
	assert.NotContains(t, html, "<script>")
}

func TestBuild_Defaults(t *testing.T) {
	now := time.Date(2024, 7, 4, 23, 0, 0, 0, time.UTC)
	p, err := Build(NewGoldmark(), Request{Content: "hello"}, now)
	require.NoError(t, err)
	assert.Equal(t, "Untitled", p.Title)
	assert.Equal(t, "2024-07-04", p.PublishedAt)
	assert.Equal(t, []string{}, p.Tags)
	assert.Equal(t, "<p>hello</p>\n", p.Content)
}

func TestBuild_RequiresContent(t *testing.T) {
	_, err := Build(NewGoldmark(), Request{Title: "x", Content: "  "}, time.Now())
	assert.ErrorIs(t, err, ErrEmptyContent)
}
