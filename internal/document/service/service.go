package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopdesk/docs-service/internal/document"
	"github.com/shopdesk/docs-service/internal/document/lock"
	"github.com/shopdesk/docs-service/internal/document/repository"
	"github.com/shopdesk/docs-service/pkg/logger"
	"github.com/shopdesk/docs-service/pkg/metrics"
)

// ErrSnapshotsDisabled is returned by Export when no object storage is configured.
var ErrSnapshotsDisabled = errors.New("snapshot storage not configured")

// SnapshotStore keeps exported copies of versions outside the database.
type SnapshotStore interface {
	PutSnapshot(ctx context.Context, v *document.Version) (string, error)
	PresignSnapshot(ctx context.Context, documentID string, version int, expires time.Duration) (string, error)
}

// SnapshotReader is implemented by stores that can return a snapshot's
// content. Archive snapshots are read back and compared when it is.
type SnapshotReader interface {
	GetSnapshot(ctx context.Context, documentID string, version int) (string, error)
}

// Options tune the Service. The zero value is usable.
type Options struct {
	// RevertStatus is the status a document gets after RevertTo. Defaults to
	// draft so reverted content is reviewed again before publishing.
	RevertStatus document.Status
	// Snapshots, when set, enables Export and archive-time snapshots.
	Snapshots SnapshotStore
	// ExportURLTTL is the lifetime of presigned export URLs.
	ExportURLTTL time.Duration
	Now          func() time.Time
	NewID        func() string
}

// CreateInput is the payload for Create.
type CreateInput struct {
	Title         string `json:"title" validate:"required,max=200"`
	Category      string `json:"category" validate:"max=100"`
	Content       string `json:"content" validate:"required"`
	Author        string `json:"author" validate:"required"`
	ChangeSummary string `json:"changeSummary" validate:"max=500"`
}

// SaveInput is the payload for Save. Nil Title/Category keep the current value.
type SaveInput struct {
	Content       string  `json:"content" validate:"required"`
	Author        string  `json:"author" validate:"required"`
	ChangeSummary string  `json:"changeSummary" validate:"max=500"`
	Title         *string `json:"title" validate:"omitempty,min=1,max=200"`
	Category      *string `json:"category" validate:"omitempty,max=100"`
}

// ListFilter narrows List.
type ListFilter struct {
	Status   document.Status
	Category string
}

// Service is the only entry point callers use: it combines the version store
// with the publication state machine.
type Service struct {
	versions *VersionStore
	repo     repository.Repository
	opts     Options
	validate *validator.Validate
}

// New wires a Service over repo. A nil locker means an in-process lock.
func New(repo repository.Repository, locks lock.Locker, opts Options) *Service {
	if opts.RevertStatus == "" {
		opts.RevertStatus = document.StatusDraft
	}
	if opts.ExportURLTTL <= 0 {
		opts.ExportURLTTL = 15 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Service{
		versions: NewVersionStore(repo, locks, opts.Now),
		repo:     repo,
		opts:     opts,
		validate: newValidator(),
	}
}

// NewMemoryService returns a Service backed by the in-memory repository.
func NewMemoryService() *Service {
	return New(repository.NewMemoryRepo(), lock.NewLocal(), Options{})
}

// Versions exposes the underlying version store.
func (s *Service) Versions() *VersionStore { return s.versions }

// Create stores a new draft document at version 1.
func (s *Service) Create(ctx context.Context, in CreateInput) (doc *document.Document, err error) {
	defer s.observe("create", &err)
	in.Title = strings.TrimSpace(in.Title)
	in.Category = strings.TrimSpace(in.Category)
	in.Author = strings.TrimSpace(in.Author)
	if err := s.check(in, in.Content); err != nil {
		return nil, err
	}

	now := s.opts.Now().UTC()
	id := s.opts.NewID()
	doc = &document.Document{
		ID:                   id,
		Title:                in.Title,
		Category:             in.Category,
		Status:               document.StatusDraft,
		CurrentVersionNumber: 1,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	first := &document.Version{
		DocumentID:    id,
		VersionNumber: 1,
		Title:         in.Title,
		Category:      in.Category,
		Content:       in.Content,
		Status:        document.StatusDraft,
		Metadata: document.Metadata{
			Author:        in.Author,
			CreatedAt:     now,
			ChangeSummary: in.ChangeSummary,
		},
	}
	if err := s.versions.Init(ctx, doc, first); err != nil {
		return nil, err
	}
	metrics.VersionsCreated.WithLabelValues("create").Inc()
	logger.WithFields(map[string]interface{}{"documentId": id, "author": in.Author}).Info("document created")
	return doc, nil
}

// Save appends a version with new content. The status is unchanged.
func (s *Service) Save(ctx context.Context, id string, in SaveInput) (doc *document.Document, v *document.Version, err error) {
	defer s.observe("save", &err)
	in.Author = strings.TrimSpace(in.Author)
	if in.Title != nil {
		t := strings.TrimSpace(*in.Title)
		in.Title = &t
	}
	if in.Category != nil {
		c := strings.TrimSpace(*in.Category)
		in.Category = &c
	}
	if err := s.check(in, in.Content); err != nil {
		return nil, nil, err
	}

	meta := document.Metadata{Author: in.Author, ChangeSummary: in.ChangeSummary}
	doc, v, err = s.versions.appendContent(ctx, id, in.Content, meta, in.Title, in.Category)
	if err != nil {
		return nil, nil, err
	}
	metrics.VersionsCreated.WithLabelValues("save").Inc()
	logger.Debugf("document %s saved as v%d by %s", id, v.VersionNumber, in.Author)
	return doc, v, nil
}

// Transition moves the document to target and records the change as a new
// version carrying the previous content.
func (s *Service) Transition(ctx context.Context, id string, target document.Status, author string) (doc *document.Document, err error) {
	defer s.observe("transition", &err)
	author = strings.TrimSpace(author)
	if author == "" {
		return nil, document.NewValidationError(map[string]string{"author": "is required"})
	}

	var from document.Status
	doc, v, err := s.versions.Mutate(ctx, id, func(cur *document.Document, head *document.Version) (Next, error) {
		if err := document.ValidateTransition(cur.Status, target); err != nil {
			return Next{}, err
		}
		from = cur.Status
		trigger, _ := document.TriggerFor(cur.Status, target)
		return Next{
			Content:  head.Content,
			Title:    head.Title,
			Category: head.Category,
			Status:   target,
			Metadata: document.Metadata{
				Author:        author,
				ChangeSummary: fmt.Sprintf("%s: %s -> %s", trigger, cur.Status, target),
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	metrics.VersionsCreated.WithLabelValues("transition").Inc()
	metrics.Transitions.WithLabelValues(string(from), string(target)).Inc()
	logger.WithFields(map[string]interface{}{
		"documentId": id, "from": from, "to": target, "version": v.VersionNumber, "author": author,
	}).Info("document status changed")

	if target == document.StatusArchived {
		s.snapshot(ctx, v)
	}
	return doc, nil
}

// RevertTo copies an old version forward as the new head. The document ends
// up in Options.RevertStatus (draft by default) whatever its prior status.
func (s *Service) RevertTo(ctx context.Context, id string, version int, author string) (doc *document.Document, v *document.Version, err error) {
	defer s.observe("revert", &err)
	author = strings.TrimSpace(author)
	if author == "" {
		return nil, nil, document.NewValidationError(map[string]string{"author": "is required"})
	}
	if version < 1 {
		return nil, nil, &document.NotFoundError{DocumentID: id, Version: version}
	}
	doc, v, err = s.versions.revert(ctx, id, version, document.Metadata{Author: author}, s.opts.RevertStatus)
	if err != nil {
		return nil, nil, err
	}
	metrics.VersionsCreated.WithLabelValues("revert").Inc()
	logger.WithFields(map[string]interface{}{
		"documentId": id, "from": version, "version": v.VersionNumber, "author": author,
	}).Info("document reverted")
	return doc, v, nil
}

// History lists every version, latest first.
func (s *Service) History(ctx context.Context, id string) (vs []*document.Version, err error) {
	defer s.observe("history", &err)
	return s.versions.List(ctx, id)
}

// Get returns the document head.
func (s *Service) Get(ctx context.Context, id string) (doc *document.Document, err error) {
	defer s.observe("get", &err)
	doc, err = s.repo.GetDocument(ctx, id)
	if err != nil {
		return nil, s.versions.mapErr(err, id, 0)
	}
	return doc, nil
}

// Version returns a single version of a document.
func (s *Service) Version(ctx context.Context, id string, number int) (v *document.Version, err error) {
	defer s.observe("version", &err)
	return s.versions.Get(ctx, id, number)
}

// List returns document heads, most recently updated first.
func (s *Service) List(ctx context.Context, f ListFilter) (docs []*document.Document, err error) {
	defer s.observe("list", &err)
	if f.Status != "" && !f.Status.Valid() {
		return nil, document.NewValidationError(map[string]string{"status": "unknown status " + string(f.Status)})
	}
	return s.repo.ListDocuments(ctx, repository.Filter{Status: f.Status, Category: strings.TrimSpace(f.Category)})
}

// Export writes a snapshot of one version to object storage and returns a
// presigned download URL.
func (s *Service) Export(ctx context.Context, id string, number int) (url string, err error) {
	defer s.observe("export", &err)
	if s.opts.Snapshots == nil {
		return "", ErrSnapshotsDisabled
	}
	v, err := s.versions.Get(ctx, id, number)
	if err != nil {
		return "", err
	}
	if _, err := s.opts.Snapshots.PutSnapshot(ctx, v); err != nil {
		metrics.SnapshotUploads.WithLabelValues("error").Inc()
		return "", fmt.Errorf("export %s v%d: %w", id, number, err)
	}
	metrics.SnapshotUploads.WithLabelValues("ok").Inc()
	return s.opts.Snapshots.PresignSnapshot(ctx, id, number, s.opts.ExportURLTTL)
}

// Ping checks the persistence backend.
func (s *Service) Ping(ctx context.Context) error { return s.repo.Ping(ctx) }

// snapshot stores v in object storage. Failures are logged only: the version
// is already committed.
func (s *Service) snapshot(ctx context.Context, v *document.Version) {
	if s.opts.Snapshots == nil {
		return
	}
	key, err := s.opts.Snapshots.PutSnapshot(ctx, v)
	if err != nil {
		metrics.SnapshotUploads.WithLabelValues("error").Inc()
		logger.Warnf("archive snapshot of %s v%d failed: %v", v.DocumentID, v.VersionNumber, err)
		return
	}
	if r, ok := s.opts.Snapshots.(SnapshotReader); ok {
		got, err := r.GetSnapshot(ctx, v.DocumentID, v.VersionNumber)
		if err != nil {
			metrics.SnapshotUploads.WithLabelValues("error").Inc()
			logger.Warnf("read back snapshot %s failed: %v", key, err)
			return
		}
		if got != v.Content {
			metrics.SnapshotUploads.WithLabelValues("mismatch").Inc()
			logger.Warnf("snapshot %s does not match %s v%d", key, v.DocumentID, v.VersionNumber)
			return
		}
	}
	metrics.SnapshotUploads.WithLabelValues("ok").Inc()
	logger.Infof("archived %s v%d to %s", v.DocumentID, v.VersionNumber, key)
}

func (s *Service) observe(op string, err *error) {
	if *err == nil {
		return
	}
	kind := document.Kind(*err)
	metrics.OperationErrors.WithLabelValues(op, kind).Inc()
	if kind == "internal" {
		logger.Errorf("%s failed: %v", op, *err)
	}
}

// check runs struct validation and the blank-content rule.
func (s *Service) check(in interface{}, content string) error {
	fields := map[string]string{}
	if err := s.validate.Struct(in); err != nil {
		var ves validator.ValidationErrors
		if !errors.As(err, &ves) {
			return err
		}
		for _, fe := range ves {
			fields[fe.Field()] = message(fe)
		}
	}
	if _, ok := fields["content"]; !ok && strings.TrimSpace(content) == "" {
		fields["content"] = "is required"
	}
	if len(fields) > 0 {
		return document.NewValidationError(fields)
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	}
	return "is invalid"
}
