package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/shopdesk/docs-service/internal/document"
)

const snapshotContentType = "application/x-lz4"

// MinIOStorage is a thin wrapper around the minio client. It keeps
// compressed snapshots of document versions for export and archival.
type MinIOStorage struct {
	client *minio.Client
	bucket string
}

// NewMinIOStorage creates a new MinIO storage client and ensures the bucket exists.
func NewMinIOStorage(ctx context.Context, cfg *MinIOConfig) (*MinIOStorage, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("minio config missing")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new: %w", err)
	}
	s := &MinIOStorage{client: mc, bucket: cfg.Bucket}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		// ignore "already exists" style errors
		exist, xerr := mc.BucketExists(ctx, s.bucket)
		if xerr != nil || !exist {
			return nil, fmt.Errorf("minio bucket ensure: %w", err)
		}
	}
	return s, nil
}

// SnapshotKey is the object key of a version snapshot.
func SnapshotKey(documentID string, version int) string {
	return fmt.Sprintf("documents/%s/v%d.lz4", url.PathEscape(documentID), version)
}

// PutSnapshot stores the content of v compressed, with the header fields as
// object metadata, and returns the object key.
func (s *MinIOStorage) PutSnapshot(ctx context.Context, v *document.Version) (string, error) {
	data, err := Compress([]byte(v.Content))
	if err != nil {
		return "", fmt.Errorf("compress snapshot: %w", err)
	}
	key := SnapshotKey(v.DocumentID, v.VersionNumber)
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: snapshotContentType,
		UserMetadata: map[string]string{
			"title":   v.Title,
			"status":  string(v.Status),
			"author":  v.Metadata.Author,
			"version": strconv.Itoa(v.VersionNumber),
			"created": v.Metadata.CreatedAt.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("put snapshot %s: %w", key, err)
	}
	return key, nil
}

// GetSnapshot reads back and decompresses a stored snapshot.
func (s *MinIOStorage) GetSnapshot(ctx context.Context, documentID string, version int) (string, error) {
	rc, err := s.DownloadFile(ctx, SnapshotKey(documentID, version))
	if err != nil {
		return "", err
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	out, err := Decompress(raw)
	if err != nil {
		return "", fmt.Errorf("decompress snapshot: %w", err)
	}
	return string(out), nil
}

// PresignSnapshot returns a presigned GET URL for a stored snapshot.
func (s *MinIOStorage) PresignSnapshot(ctx context.Context, documentID string, version int, expires time.Duration) (string, error) {
	return s.GetPresignedURL(ctx, SnapshotKey(documentID, version), expires)
}

// DownloadFile returns a ReadCloser for the stored object.
func (s *MinIOStorage) DownloadFile(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	// perform a stat to ensure object exists
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, err
	}
	return obj, nil
}

// GetPresignedURL returns a presigned GET URL valid for the given duration.
func (s *MinIOStorage) GetPresignedURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	reqParams := make(url.Values)
	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, key, expires, reqParams)
	if err != nil {
		return "", err
	}
	return presigned.String(), nil
}

// Ping checks that the bucket is reachable.
func (s *MinIOStorage) Ping(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bucket %s missing", s.bucket)
	}
	return nil
}
