package document

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrValidation        = errors.New("validation failed")
)

// NotFoundError is returned for an unknown document or version.
type NotFoundError struct {
	DocumentID string
	// Version is zero when the document itself is missing.
	Version int
}

func (e *NotFoundError) Error() string {
	if e.Version > 0 {
		return fmt.Sprintf("document %s version %d not found", e.DocumentID, e.Version)
	}
	return fmt.Sprintf("document %s not found", e.DocumentID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidTransitionError names the current and requested statuses of a
// rejected status change.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", quote(string(e.From)), quote(string(e.To)))
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// ValidationError carries per-field messages for rejected input.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError from field -> message pairs.
func NewValidationError(fields map[string]string) *ValidationError {
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Kind returns a short label for the error class, used for metrics and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrValidation):
		return "validation"
	default:
		return "internal"
	}
}

func quote(s string) string { return strconv.Quote(s) }
