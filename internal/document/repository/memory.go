package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/shopdesk/docs-service/internal/document"
)

// MemoryRepo is an in-memory repository used when no MongoDB is configured
// and in unit tests. Values are copied on the way in and out so callers can
// never mutate stored versions.
type MemoryRepo struct {
	mu       sync.RWMutex
	docs     map[string]*document.Document
	versions map[string][]*document.Version // ascending by VersionNumber
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		docs:     make(map[string]*document.Document),
		versions: make(map[string][]*document.Version),
	}
}

var _ Repository = (*MemoryRepo)(nil)

func (m *MemoryRepo) CreateDocument(ctx context.Context, doc *document.Document, first *document.Version) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[doc.ID]; ok {
		return ErrConflict
	}
	m.docs[doc.ID] = doc.Clone()
	m.versions[doc.ID] = []*document.Version{first.Clone()}
	return nil
}

func (m *MemoryRepo) GetDocument(ctx context.Context, id string) (*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.docs[id]; ok {
		return d.Clone(), nil
	}
	return nil, ErrNotFound
}

func (m *MemoryRepo) ListDocuments(ctx context.Context, f Filter) ([]*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*document.Document, 0, len(m.docs))
	for _, d := range m.docs {
		if f.match(d) {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (m *MemoryRepo) AppendVersion(ctx context.Context, doc *document.Document, v *document.Version) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.docs[doc.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.CurrentVersionNumber != v.VersionNumber-1 || doc.CurrentVersionNumber != v.VersionNumber {
		return ErrConflict
	}
	m.versions[doc.ID] = append(m.versions[doc.ID], v.Clone())
	m.docs[doc.ID] = doc.Clone()
	return nil
}

func (m *MemoryRepo) GetVersion(ctx context.Context, documentID string, number int) (*document.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vs := m.versions[documentID]
	// numbers are gap-free starting at 1
	if number < 1 || number > len(vs) {
		return nil, ErrNotFound
	}
	return vs[number-1].Clone(), nil
}

func (m *MemoryRepo) ListVersions(ctx context.Context, documentID string) ([]*document.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vs, ok := m.versions[documentID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]*document.Version, 0, len(vs))
	for i := len(vs) - 1; i >= 0; i-- {
		out = append(out, vs[i].Clone())
	}
	return out, nil
}

func (m *MemoryRepo) Ping(ctx context.Context) error { return nil }
