package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopdesk/docs-service/internal/document"
	"github.com/shopdesk/docs-service/internal/document/lock"
	"github.com/shopdesk/docs-service/internal/document/repository"
	"github.com/shopdesk/docs-service/pkg/metrics"
)

// Next describes the version a mutation wants appended. CreatedAt in
// Metadata is filled in by the store.
type Next struct {
	Content  string
	Title    string
	Category string
	Status   document.Status
	Metadata document.Metadata
}

// MutateFunc inspects the current head and returns the next version. It runs
// with the document lock held; returning an error aborts without writing.
type MutateFunc func(doc *document.Document, head *document.Version) (Next, error)

// VersionStore is the append-only history of every document. All writes for
// one document go through its lock so version numbers stay gap-free.
type VersionStore struct {
	repo  repository.Repository
	locks lock.Locker
	now   func() time.Time
}

func NewVersionStore(repo repository.Repository, locks lock.Locker, now func() time.Time) *VersionStore {
	if locks == nil {
		locks = lock.NewLocal()
	}
	if now == nil {
		now = time.Now
	}
	return &VersionStore{repo: repo, locks: locks, now: now}
}

// Init stores a new document with its first version.
func (s *VersionStore) Init(ctx context.Context, doc *document.Document, first *document.Version) error {
	if err := s.repo.CreateDocument(ctx, doc, first); err != nil {
		return fmt.Errorf("create document %s: %w", doc.ID, err)
	}
	return nil
}

// Append adds a version with new content, keeping the document's status,
// title and category.
func (s *VersionStore) Append(ctx context.Context, documentID, content string, meta document.Metadata) (*document.Version, error) {
	_, v, err := s.appendContent(ctx, documentID, content, meta, nil, nil)
	return v, err
}

// appendContent is Append with optional title and category replacements.
// The status always carries over.
func (s *VersionStore) appendContent(ctx context.Context, documentID, content string, meta document.Metadata, title, category *string) (*document.Document, *document.Version, error) {
	return s.Mutate(ctx, documentID, func(doc *document.Document, _ *document.Version) (Next, error) {
		next := Next{Content: content, Title: doc.Title, Category: doc.Category, Status: doc.Status, Metadata: meta}
		if title != nil {
			next.Title = *title
		}
		if category != nil {
			next.Category = *category
		}
		return next, nil
	})
}

// Revert appends a new version carrying the content of version target. It
// never rewinds the version counter.
func (s *VersionStore) Revert(ctx context.Context, documentID string, target int, meta document.Metadata) (*document.Version, error) {
	_, v, err := s.revert(ctx, documentID, target, meta, "")
	return v, err
}

// revert copies version target forward. A non-empty status overrides the
// document's current status on the new version.
func (s *VersionStore) revert(ctx context.Context, documentID string, target int, meta document.Metadata, status document.Status) (*document.Document, *document.Version, error) {
	return s.Mutate(ctx, documentID, func(doc *document.Document, _ *document.Version) (Next, error) {
		src, err := s.repo.GetVersion(ctx, documentID, target)
		if err != nil {
			return Next{}, s.mapErr(err, documentID, target)
		}
		m := meta
		m.RevertedFrom = target
		note := fmt.Sprintf("reverted from v%d", target)
		if m.ChangeSummary == "" {
			m.ChangeSummary = note
		} else {
			m.ChangeSummary = note + ": " + m.ChangeSummary
		}
		next := Next{Content: src.Content, Title: src.Title, Category: src.Category, Status: doc.Status, Metadata: m}
		if status != "" {
			next.Status = status
		}
		return next, nil
	})
}

// Mutate is the single write path: lock, read head, compute, append.
func (s *VersionStore) Mutate(ctx context.Context, documentID string, fn MutateFunc) (*document.Document, *document.Version, error) {
	start := time.Now()
	unlock, err := s.locks.Lock(ctx, documentID)
	if err != nil {
		return nil, nil, fmt.Errorf("lock document %s: %w", documentID, err)
	}
	defer unlock()
	metrics.LockWait.Observe(time.Since(start).Seconds())

	doc, err := s.repo.GetDocument(ctx, documentID)
	if err != nil {
		return nil, nil, s.mapErr(err, documentID, 0)
	}
	head, err := s.repo.GetVersion(ctx, documentID, doc.CurrentVersionNumber)
	if err != nil {
		return nil, nil, fmt.Errorf("load head v%d of %s: %w", doc.CurrentVersionNumber, documentID, err)
	}

	next, err := fn(doc.Clone(), head.Clone())
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(next.Content) == "" {
		return nil, nil, document.NewValidationError(map[string]string{"content": "is required"})
	}

	now := s.now().UTC()
	h := doc.Clone()
	h.CurrentVersionNumber++
	h.Title = next.Title
	h.Category = next.Category
	h.Status = next.Status
	h.UpdatedAt = now

	meta := next.Metadata
	meta.CreatedAt = now
	v := &document.Version{
		DocumentID:    documentID,
		VersionNumber: h.CurrentVersionNumber,
		Title:         next.Title,
		Category:      next.Category,
		Content:       next.Content,
		Status:        next.Status,
		Metadata:      meta,
	}
	if err := s.repo.AppendVersion(ctx, h, v); err != nil {
		return nil, nil, s.mapErr(err, documentID, 0)
	}
	return h, v, nil
}

// Get returns one version.
func (s *VersionStore) Get(ctx context.Context, documentID string, number int) (*document.Version, error) {
	v, err := s.repo.GetVersion(ctx, documentID, number)
	if err != nil {
		return nil, s.mapErr(err, documentID, number)
	}
	return v, nil
}

// List returns every version, latest first.
func (s *VersionStore) List(ctx context.Context, documentID string) ([]*document.Version, error) {
	vs, err := s.repo.ListVersions(ctx, documentID)
	if err != nil {
		return nil, s.mapErr(err, documentID, 0)
	}
	return vs, nil
}

func (s *VersionStore) mapErr(err error, documentID string, version int) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return &document.NotFoundError{DocumentID: documentID, Version: version}
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("document %s: %w", documentID, err)
	}
	return err
}
