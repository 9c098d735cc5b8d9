package repository

import (
	"context"
	"errors"

	"github.com/shopdesk/docs-service/internal/document"
)

var (
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned when the stored head no longer matches the
	// version being appended, or the document id is already taken.
	ErrConflict = errors.New("version conflict")
)

// Filter narrows ListDocuments. Empty fields match everything.
type Filter struct {
	Status   document.Status
	Category string
}

func (f Filter) match(d *document.Document) bool {
	if f.Status != "" && d.Status != f.Status {
		return false
	}
	if f.Category != "" && d.Category != f.Category {
		return false
	}
	return true
}

// Repository persists document heads and their append-only version history.
// Implementations must store the head and the version of a single call
// together or not at all.
type Repository interface {
	// CreateDocument stores a new head together with its first version.
	CreateDocument(ctx context.Context, doc *document.Document, first *document.Version) error
	GetDocument(ctx context.Context, id string) (*document.Document, error)
	// ListDocuments returns heads ordered by UpdatedAt, newest first.
	ListDocuments(ctx context.Context, f Filter) ([]*document.Document, error)
	// AppendVersion stores v and replaces the head with doc. The stored head
	// must currently be at v.VersionNumber-1, otherwise ErrConflict.
	AppendVersion(ctx context.Context, doc *document.Document, v *document.Version) error
	GetVersion(ctx context.Context, documentID string, number int) (*document.Version, error)
	// ListVersions returns every version of a document, latest first.
	ListVersions(ctx context.Context, documentID string) ([]*document.Version, error)
	Ping(ctx context.Context) error
}
