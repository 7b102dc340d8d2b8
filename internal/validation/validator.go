package validation

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/draft-staging-api/internal/models"
)

var slugRegex = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Slugify derives the URL-safe identity of a draft from its title.
// Slugify(Slugify(x)) == Slugify(x) for every x.
func Slugify(title string) string {
	lower := strings.ToLower(title)

	var b strings.Builder
	b.Grow(len(lower))
	pendingSep := false
	for _, r := range lower {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			if pendingSep {
				b.WriteByte('-')
				pendingSep = false
			}
			b.WriteRune(r)
		case r == '-' || unicode.IsSpace(r):
			// Whitespace and hyphen runs collapse into a single separator,
			// which is only emitted between two kept characters.
			if b.Len() > 0 {
				pendingSep = true
			}
		}
	}
	return b.String()
}

// IsValidSlug reports whether s is already in normalized slug form
func IsValidSlug(s string) bool {
	return slugRegex.MatchString(s)
}

// publishedAtLayouts are the date forms accepted for publishedAt
var publishedAtLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"January 2, 2006",
	"Jan 2, 2006",
}

// ParsePublishedAt parses a publishedAt value in any accepted layout
func ParsePublishedAt(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range publishedAtLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ValidateDraftInput checks a typed create payload. All violations are
// returned together.
func ValidateDraftInput(in *models.DraftInput) []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(in.Title) == "" {
		errors = append(errors, ValidationError{Field: "title", Message: "title is required"})
	} else if hasLineBreak(in.Title) {
		errors = append(errors, singleLine("title", in.Title))
	} else if Slugify(in.Title) == "" {
		errors = append(errors, ValidationError{Field: "title", Message: "title must contain at least one letter or digit", Value: in.Title})
	}
	if strings.TrimSpace(in.Description) == "" {
		errors = append(errors, ValidationError{Field: "description", Message: "description is required"})
	} else if hasLineBreak(in.Description) {
		errors = append(errors, singleLine("description", in.Description))
	}
	if strings.TrimSpace(in.Content) == "" {
		errors = append(errors, ValidationError{Field: "content", Message: "content is required"})
	}
	errors = append(errors, validatePublishedAt(in.PublishedAt, true)...)

	return errors
}

// ValidatePatch checks the supplied fields of a typed patch
func ValidatePatch(p *models.DraftPatch) []ValidationError {
	var errors []ValidationError

	if p.Title != nil {
		if strings.TrimSpace(*p.Title) == "" {
			errors = append(errors, ValidationError{Field: "title", Message: "title must not be empty"})
		} else if hasLineBreak(*p.Title) {
			errors = append(errors, singleLine("title", *p.Title))
		} else if Slugify(*p.Title) == "" {
			errors = append(errors, ValidationError{Field: "title", Message: "title must contain at least one letter or digit", Value: *p.Title})
		}
	}
	if p.Description != nil {
		if strings.TrimSpace(*p.Description) == "" {
			errors = append(errors, ValidationError{Field: "description", Message: "description must not be empty"})
		} else if hasLineBreak(*p.Description) {
			errors = append(errors, singleLine("description", *p.Description))
		}
	}
	if p.Content != nil && strings.TrimSpace(*p.Content) == "" {
		errors = append(errors, ValidationError{Field: "content", Message: "content must not be empty"})
	}
	if p.PublishedAt != nil {
		errors = append(errors, validatePublishedAt(*p.PublishedAt, true)...)
	}
	if p.Status != nil && !p.Status.Valid() {
		errors = append(errors, ValidationError{
			Field:   "status",
			Message: "invalid status, must be one of: draft, pending, published",
			Value:   string(*p.Status),
		})
	}

	return errors
}

func validatePublishedAt(value string, required bool) []ValidationError {
	if strings.TrimSpace(value) == "" {
		if required {
			return []ValidationError{{Field: "publishedAt", Message: "published date is required"}}
		}
		return nil
	}
	if hasLineBreak(value) {
		return []ValidationError{singleLine("publishedAt", value)}
	}
	if _, ok := ParsePublishedAt(value); !ok {
		return []ValidationError{{Field: "publishedAt", Message: "published date must be a valid date", Value: value}}
	}
	return nil
}

// hasLineBreak reports whether s would span lines in a front-matter header
func hasLineBreak(s string) bool {
	return strings.ContainsAny(s, "\r\n")
}

func singleLine(field, value string) ValidationError {
	return ValidationError{Field: field, Message: field + " must not contain line breaks", Value: value}
}

// DecodeDraftInput decodes a JSON create payload, reporting wrongly-typed
// fields alongside missing or malformed values instead of stopping at the
// first problem.
func DecodeDraftInput(body []byte) (*models.DraftInput, []ValidationError) {
	fields, errs := decodeObject(body)
	if errs != nil {
		return nil, errs
	}

	var errors []ValidationError
	in := &models.DraftInput{}

	in.Title = stringField(fields, "title", &errors)
	in.Description = stringField(fields, "description", &errors)
	in.Content = stringField(fields, "content", &errors)
	in.PublishedAt = stringField(fields, "publishedAt", &errors)

	if raw, ok := fields["tags"]; !ok || isNull(raw) {
		errors = append(errors, ValidationError{Field: "tags", Message: "tags must be an array of strings"})
	} else if tags, ok := decodeTags(raw); !ok {
		errors = append(errors, ValidationError{Field: "tags", Message: "tags must be an array of strings", Value: string(raw)})
	} else {
		in.Tags = tags
	}

	if raw, ok := fields["sendAsNewsletter"]; !ok {
		errors = append(errors, ValidationError{Field: "sendAsNewsletter", Message: "send as newsletter must be a boolean"})
	} else if err := json.Unmarshal(raw, &in.SendAsNewsletter); err != nil || isNull(raw) {
		errors = append(errors, ValidationError{Field: "sendAsNewsletter", Message: "send as newsletter must be a boolean", Value: string(raw)})
	}

	// Type errors and value errors are reported together; value checks on
	// fields that already failed their type check are skipped.
	failed := make(map[string]bool, len(errors))
	for _, e := range errors {
		failed[e.Field] = true
	}
	for _, e := range ValidateDraftInput(in) {
		if !failed[e.Field] {
			errors = append(errors, e)
		}
	}

	if len(errors) > 0 {
		return nil, errors
	}
	if in.Tags == nil {
		in.Tags = []string{}
	}
	return in, nil
}

// DecodeDraftPatch decodes a JSON partial update
func DecodeDraftPatch(body []byte) (*models.DraftPatch, []ValidationError) {
	fields, errs := decodeObject(body)
	if errs != nil {
		return nil, errs
	}

	var errors []ValidationError
	for _, name := range []string{"title", "description", "content", "publishedAt", "status"} {
		if raw, ok := fields[name]; ok {
			var s string
			if err := json.Unmarshal(raw, &s); err != nil || isNull(raw) {
				errors = append(errors, ValidationError{Field: name, Message: name + " must be a string", Value: string(raw)})
			}
		}
	}
	if raw, ok := fields["tags"]; ok {
		if _, ok := decodeTags(raw); !ok || isNull(raw) {
			errors = append(errors, ValidationError{Field: "tags", Message: "tags must be an array of strings", Value: string(raw)})
		}
	}
	if raw, ok := fields["sendAsNewsletter"]; ok {
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil || isNull(raw) {
			errors = append(errors, ValidationError{Field: "sendAsNewsletter", Message: "send as newsletter must be a boolean", Value: string(raw)})
		}
	}
	if raw, ok := fields["newsletterSentAt"]; ok && !isNull(raw) {
		var t time.Time
		if err := json.Unmarshal(raw, &t); err != nil {
			errors = append(errors, ValidationError{Field: "newsletterSentAt", Message: "newsletterSentAt must be an ISO 8601 timestamp or null", Value: string(raw)})
		}
	}
	if len(errors) > 0 {
		return nil, errors
	}

	patch := &models.DraftPatch{}
	if err := json.Unmarshal(body, patch); err != nil {
		return nil, []ValidationError{{Field: "body", Message: "invalid JSON body"}}
	}
	if errs := ValidatePatch(patch); len(errs) > 0 {
		return nil, errs
	}
	return patch, nil
}

func decodeObject(body []byte) (map[string]json.RawMessage, []ValidationError) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return nil, []ValidationError{{Field: "body", Message: "request body must be a JSON object"}}
	}
	return fields, nil
}

func stringField(fields map[string]json.RawMessage, name string, errors *[]ValidationError) string {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		*errors = append(*errors, ValidationError{Field: name, Message: name + " must be a string", Value: string(raw)})
		return ""
	}
	return s
}

func decodeTags(raw json.RawMessage) ([]string, bool) {
	var tags []string
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil, false
	}
	if tags == nil {
		tags = []string{}
	}
	return tags, true
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
