// Package objectstore implements store.BlobStore on S3-compatible object
// storage through the MinIO client.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/phrazzld/lector/internal/config"
	"github.com/phrazzld/lector/internal/platform/logger"
	"github.com/phrazzld/lector/internal/store"
)

// BlobStore stores blobs as objects in a single bucket, keyed by a generated
// UUID.
type BlobStore struct {
	client *minio.Client
	bucket string
	region string
	logger *slog.Logger
}

var _ store.BlobStore = (*BlobStore)(nil)

// New creates a BlobStore from configuration. It does not contact the server.
func New(cfg config.BlobConfig, logger *slog.Logger) (*BlobStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}
	return NewWithClient(client, cfg.Bucket, cfg.Region, logger), nil
}

// NewWithClient creates a BlobStore around an existing client.
func NewWithClient(client *minio.Client, bucket, region string, logger *slog.Logger) *BlobStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &BlobStore{
		client: client,
		bucket: bucket,
		region: region,
		logger: logger.With(slog.String("component", "blob_store"), slog.String("bucket", bucket)),
	}
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *BlobStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}

	err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
	if err != nil {
		// Lost a race with another worker creating it
		if code := minio.ToErrorResponse(err).Code; code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists" {
			return nil
		}
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	s.logger.Info("created bucket")
	return nil
}

// Put implements store.BlobStore.
func (s *BlobStore) Put(ctx context.Context, data []byte, contentType string, metadata map[string]string) (string, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	id := uuid.NewString()
	_, err := s.client.PutObject(ctx, s.bucket, id, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: metadata,
	})
	if err != nil {
		log.Error("failed to put object",
			slog.String("blob_id", id),
			slog.String("error", err.Error()))
		return "", fmt.Errorf("failed to store blob: %w", err)
	}

	log.Debug("stored blob",
		slog.String("blob_id", id),
		slog.Int("bytes", len(data)),
		slog.String("content_type", contentType))
	return id, nil
}

// Get implements store.BlobStore.
func (s *BlobStore) Get(ctx context.Context, id string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, id, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapError(id, err)
	}
	defer func() { _ = obj.Close() }()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapError(id, err)
	}
	return data, nil
}

// mapError translates missing objects into store.ErrBlobNotFound.
func mapError(id string, err error) error {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) && (resp.Code == "NoSuchKey" || resp.StatusCode == 404) {
		return fmt.Errorf("%w: %s", store.ErrBlobNotFound, id)
	}
	return fmt.Errorf("failed to read blob %s: %w", id, err)
}
