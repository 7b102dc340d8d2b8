package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/draft-staging-api/internal/validation"
)

var (
	// ErrNotFound is returned when no live record exists for a slug
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a derived slug is already occupied
	ErrConflict = errors.New("a record with this title already exists")
	// ErrStorageUnavailable wraps backend failures on write paths
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrMaterializeInProgress is returned when a run is already active in this process
	ErrMaterializeInProgress = errors.New("materialization already in progress")
)

// ValidationError carries every violated field of a rejected input
type ValidationError struct {
	Errors []validation.ValidationError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, v := range e.Errors {
		msgs = append(msgs, v.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func invalid(errs []validation.ValidationError) error {
	return &ValidationError{Errors: errs}
}

// storageErr tags a backend failure so callers can match ErrStorageUnavailable
// while the underlying cause stays inspectable
func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}
