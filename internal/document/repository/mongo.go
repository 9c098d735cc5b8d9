package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopdesk/docs-service/internal/document"
	"github.com/shopdesk/docs-service/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	DocumentsCollection = "documents"
	VersionsCollection  = "document_versions"

	// writeTimeout bounds a write sequence detached from its caller.
	writeTimeout = 10 * time.Second
	// strayAfter is how old a version above the head must be before it is
	// treated as abandoned.
	strayAfter = 3 * writeTimeout
)

func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
}

// MongoRepo stores heads in one collection and versions in another. A unique
// (documentId, versionNumber) index guards the history against duplicates;
// the head update is conditional on the previous version number, so two
// writers racing past the lock cannot both succeed. Readers never see a
// version above the head.
type MongoRepo struct {
	docs     *mongo.Collection
	versions *mongo.Collection
}

func NewMongoRepo(db *mongo.Database) *MongoRepo {
	return &MongoRepo{
		docs:     db.Collection(DocumentsCollection),
		versions: db.Collection(VersionsCollection),
	}
}

var _ Repository = (*MongoRepo)(nil)

// EnsureIndexes creates the indexes the repository relies on. Safe to call
// repeatedly.
func (m *MongoRepo) EnsureIndexes(ctx context.Context) error {
	_, err := m.versions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "documentId", Value: 1}, {Key: "versionNumber", Value: -1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create versions index: %w", err)
	}
	_, err = m.docs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "updatedAt", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "category", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create documents indexes: %w", err)
	}
	return nil
}

func (m *MongoRepo) CreateDocument(ctx context.Context, doc *document.Document, first *document.Version) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	wctx, cancel := detached(ctx)
	defer cancel()

	// the version goes in first: a head is never visible without its v1
	if err := m.insertVersion(wctx, first, 0); err != nil {
		return err
	}
	if _, err := m.docs.InsertOne(wctx, doc); err != nil {
		m.dropVersion(wctx, first)
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (m *MongoRepo) GetDocument(ctx context.Context, id string) (*document.Document, error) {
	var d document.Document
	if err := m.docs.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (m *MongoRepo) ListDocuments(ctx context.Context, f Filter) ([]*document.Document, error) {
	q := bson.M{}
	if f.Status != "" {
		q["status"] = f.Status
	}
	if f.Category != "" {
		q["category"] = f.Category
	}
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}, {Key: "_id", Value: 1}})
	cur, err := m.docs.Find(ctx, q, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*document.Document{}
	for cur.Next(ctx) {
		var d document.Document
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, cur.Err()
}

func (m *MongoRepo) AppendVersion(ctx context.Context, doc *document.Document, v *document.Version) error {
	if doc.CurrentVersionNumber != v.VersionNumber {
		return ErrConflict
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	// once the version is written the head update and any rollback must run
	// even if the caller goes away
	wctx, cancel := detached(ctx)
	defer cancel()

	if err := m.insertVersion(wctx, v, v.VersionNumber-1); err != nil {
		return err
	}
	filter := bson.M{"_id": doc.ID, "currentVersionNumber": v.VersionNumber - 1}
	set := bson.M{"$set": bson.M{
		"title":                doc.Title,
		"category":             doc.Category,
		"status":               doc.Status,
		"currentVersionNumber": doc.CurrentVersionNumber,
		"updatedAt":            doc.UpdatedAt,
	}}
	res, err := m.docs.UpdateOne(wctx, filter, set)
	if err == nil && res.MatchedCount == 1 {
		return nil
	}
	// head did not move: drop the orphaned version
	m.dropVersion(wctx, v)
	if err != nil {
		return fmt.Errorf("update document head: %w", err)
	}
	if _, gerr := m.GetDocument(wctx, doc.ID); errors.Is(gerr, ErrNotFound) {
		return ErrNotFound
	}
	return ErrConflict
}

// insertVersion writes v, expecting the head to be at headAt (0 for a new
// document). A version already stored at that number while the head still
// sits below it is a leftover of a write whose rollback never ran; once it is
// older than strayAfter it is removed and the insert retried.
func (m *MongoRepo) insertVersion(ctx context.Context, v *document.Version, headAt int) error {
	_, err := m.versions.InsertOne(ctx, v)
	if err == nil {
		return nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("insert version: %w", err)
	}
	stray, serr := m.strayVersion(ctx, v, headAt)
	if serr != nil {
		return serr
	}
	if stray == nil {
		return ErrConflict
	}
	res, derr := m.versions.DeleteOne(ctx, versionKey(stray))
	if derr != nil {
		return fmt.Errorf("remove stray version: %w", derr)
	}
	if res.DeletedCount != 1 {
		return ErrConflict
	}
	if _, err := m.versions.InsertOne(ctx, v); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert version: %w", err)
	}
	return nil
}

// strayVersion returns the stored version that collides with v when it sits
// above the head and is old enough that no live writer can still own it.
func (m *MongoRepo) strayVersion(ctx context.Context, v *document.Version, headAt int) (*document.Version, error) {
	current := 0
	head, err := m.GetDocument(ctx, v.DocumentID)
	switch {
	case err == nil:
		current = head.CurrentVersionNumber
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}
	if current != headAt {
		return nil, nil
	}
	var existing document.Version
	err = m.versions.FindOne(ctx, bson.M{"documentId": v.DocumentID, "versionNumber": v.VersionNumber}).Decode(&existing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	if v.Metadata.CreatedAt.Sub(existing.Metadata.CreatedAt) < strayAfter {
		return nil, nil
	}
	return &existing, nil
}

// dropVersion removes a version this call wrote. The creation time is part of
// the key so a concurrent writer's version is never touched.
func (m *MongoRepo) dropVersion(ctx context.Context, v *document.Version) {
	if _, err := m.versions.DeleteOne(ctx, versionKey(v)); err != nil {
		logger.Warnf("rollback of %s v%d failed: %v", v.DocumentID, v.VersionNumber, err)
	}
}

func versionKey(v *document.Version) bson.M {
	return bson.M{
		"documentId":         v.DocumentID,
		"versionNumber":      v.VersionNumber,
		"metadata.createdAt": v.Metadata.CreatedAt,
	}
}

// GetVersion only sees versions at or below the head.
func (m *MongoRepo) GetVersion(ctx context.Context, documentID string, number int) (*document.Version, error) {
	head, err := m.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if number < 1 || number > head.CurrentVersionNumber {
		return nil, ErrNotFound
	}
	var v document.Version
	err = m.versions.FindOne(ctx, bson.M{"documentId": documentID, "versionNumber": number}).Decode(&v)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (m *MongoRepo) ListVersions(ctx context.Context, documentID string) ([]*document.Version, error) {
	head, err := m.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	q := bson.M{"documentId": documentID, "versionNumber": bson.M{"$lte": head.CurrentVersionNumber}}
	opts := options.Find().SetSort(bson.D{{Key: "versionNumber", Value: -1}})
	cur, err := m.versions.Find(ctx, q, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*document.Version{}
	for cur.Next(ctx) {
		var v document.Version
		if err := cur.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, cur.Err()
}

func (m *MongoRepo) Ping(ctx context.Context) error {
	return m.docs.Database().Client().Ping(ctx, nil)
}
