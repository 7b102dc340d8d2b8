package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// Status is the visibility state of a draft before materialization
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
)

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusPublished:
		return true
	}
	return false
}

// Draft is a mutable article record held in the key-value tier
type Draft struct {
	ID               string     `json:"id"`
	Slug             string     `json:"slug"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Content          string     `json:"content"`
	PublishedAt      string     `json:"publishedAt"`
	Tags             []string   `json:"tags"`
	SendAsNewsletter bool       `json:"sendAsNewsletter"`
	NewsletterSentAt *time.Time `json:"newsletterSentAt"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	Status           Status     `json:"status"`
}

// DraftInput is the full payload accepted when creating a draft
type DraftInput struct {
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	Content          string   `json:"content"`
	PublishedAt      string   `json:"publishedAt"`
	Tags             []string `json:"tags"`
	SendAsNewsletter bool     `json:"sendAsNewsletter"`
}

// DraftPatch carries the fields of a partial update. Nil pointers are left
// untouched when the patch is applied.
type DraftPatch struct {
	Title            *string             `json:"title,omitempty"`
	Description      *string             `json:"description,omitempty"`
	Content          *string             `json:"content,omitempty"`
	PublishedAt      *string             `json:"publishedAt,omitempty"`
	Tags             *[]string           `json:"tags,omitempty"`
	SendAsNewsletter *bool               `json:"sendAsNewsletter,omitempty"`
	NewsletterSentAt Nullable[time.Time] `json:"newsletterSentAt"`
	Status           *Status             `json:"status,omitempty"`
}

// Apply merges the supplied fields of p over d
func (p *DraftPatch) Apply(d *Draft) {
	if p.Title != nil {
		d.Title = *p.Title
	}
	if p.Description != nil {
		d.Description = *p.Description
	}
	if p.Content != nil {
		d.Content = *p.Content
	}
	if p.PublishedAt != nil {
		d.PublishedAt = *p.PublishedAt
	}
	if p.Tags != nil {
		d.Tags = append([]string{}, (*p.Tags)...)
	}
	if p.SendAsNewsletter != nil {
		d.SendAsNewsletter = *p.SendAsNewsletter
	}
	if p.NewsletterSentAt.Set {
		if p.NewsletterSentAt.Valid {
			t := p.NewsletterSentAt.Value
			d.NewsletterSentAt = &t
		} else {
			d.NewsletterSentAt = nil
		}
	}
	if p.Status != nil {
		d.Status = *p.Status
	}
}

// Nullable distinguishes an absent field (Set=false) from an explicit null
// (Set=true, Valid=false) in a JSON patch.
type Nullable[T any] struct {
	Set   bool
	Valid bool
	Value T
}

// Null returns an explicitly-null value
func Null[T any]() Nullable[T] {
	return Nullable[T]{Set: true}
}

// Some returns an explicitly-set value
func Some[T any](v T) Nullable[T] {
	return Nullable[T]{Set: true, Valid: true, Value: v}
}

func (n *Nullable[T]) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Valid = false
		var zero T
		n.Value = zero
		return nil
	}
	if err := json.Unmarshal(data, &n.Value); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

func (n Nullable[T]) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// DeletionMarker records the intent to remove a static article at the next
// materialization pass
type DeletionMarker struct {
	Slug         string    `json:"slug"`
	DeletedAt    time.Time `json:"deletedAt"`
	OriginalPost bool      `json:"originalPost"`
}

// MaterializeResult is the aggregate outcome of one materialization run
type MaterializeResult struct {
	Processed int      `json:"processed"`
	Deleted   int      `json:"deleted"`
	Errors    []string `json:"errors"`
}

// Source identifies which tier an article was read from
type Source string

const (
	SourceDatabase Source = "database"
	SourceStatic   Source = "static"
)

// CatalogEntry is a draft or static article as presented by the merged catalog
type CatalogEntry struct {
	ID               string     `json:"id,omitempty"`
	Slug             string     `json:"slug"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Content          string     `json:"content,omitempty"`
	PublishedAt      string     `json:"publishedAt"`
	Tags             []string   `json:"tags"`
	SendAsNewsletter bool       `json:"sendAsNewsletter"`
	NewsletterSentAt *time.Time `json:"newsletterSentAt"`
	CreatedAt        *time.Time `json:"createdAt,omitempty"`
	UpdatedAt        *time.Time `json:"updatedAt,omitempty"`
	Status           Status     `json:"status"`
	Source           Source     `json:"source"`
	IsPublished      bool       `json:"isPublished"`
	IsEditable       bool       `json:"isEditable"`
	IsDeletable      bool       `json:"isDeletable"`
}

// AdminListing is the admin view over both tiers
type AdminListing struct {
	Posts          []CatalogEntry `json:"posts"`
	Total          int            `json:"total"`
	TempCount      int            `json:"tempCount"`
	PublishedCount int            `json:"publishedCount"`
}

// PublicListing is the public catalog of visible articles
type PublicListing struct {
	Articles    []CatalogEntry `json:"articles"`
	Total       int            `json:"total"`
	DBPosts     int            `json:"dbPosts"`
	StaticPosts int            `json:"staticPosts"`
}

// BuildResult is returned by a build trigger or nightly check
type BuildResult struct {
	Triggered     bool               `json:"triggered"`
	Message       string             `json:"message"`
	DeploymentURL string             `json:"deploymentUrl,omitempty"`
	Job           any                `json:"job,omitempty"`
	TempPosts     int                `json:"tempPosts"`
	Deletions     int                `json:"deletions"`
	Materialized  *MaterializeResult `json:"materialized,omitempty"`
}

// PendingCounts is the amount of work waiting for the next materialization
type PendingCounts struct {
	Drafts  int `json:"tempPosts"`
	Markers int `json:"deletions"`
}

// Any reports whether there is anything to materialize
func (p PendingCounts) Any() bool {
	return p.Drafts > 0 || p.Markers > 0
}
