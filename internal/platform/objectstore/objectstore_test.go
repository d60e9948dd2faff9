package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/phrazzld/lector/internal/config"
	"github.com/phrazzld/lector/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		notFound bool
	}{
		{"no such key", minio.ErrorResponse{Code: "NoSuchKey"}, true},
		{"404", minio.ErrorResponse{StatusCode: 404}, true},
		{"wrapped", fmt.Errorf("read: %w", minio.ErrorResponse{Code: "NoSuchKey"}), true},
		{"access denied", minio.ErrorResponse{Code: "AccessDenied", StatusCode: 403}, false},
		{"network", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError("blob-1", tt.err)
			assert.Equal(t, tt.notFound, errors.Is(err, store.ErrBlobNotFound))
			assert.Contains(t, err.Error(), "blob-1")
		})
	}
}

// TestBlobStoreIntegration runs against a real S3-compatible server when
// LECTOR_TEST_S3_ENDPOINT is set.
func TestBlobStoreIntegration(t *testing.T) {
	endpoint := os.Getenv("LECTOR_TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("LECTOR_TEST_S3_ENDPOINT not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := New(config.BlobConfig{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("LECTOR_TEST_S3_ACCESS_KEY"),
		SecretKey: os.Getenv("LECTOR_TEST_S3_SECRET_KEY"),
		Bucket:    "lector-test",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.NoError(t, s.EnsureBucket(ctx))
	require.NoError(t, s.EnsureBucket(ctx))

	id, err := s.Put(ctx, []byte("ID3audio"), "audio/mpeg", map[string]string{store.BlobMetaTaskID: "t1"})
	require.NoError(t, err)

	data, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3audio"), data)

	info, err := s.client.StatObject(ctx, s.bucket, id, minio.StatObjectOptions{})
	require.NoError(t, err)
	assert.Equal(t, "audio/mpeg", info.ContentType)
	assert.Equal(t, "t1", info.UserMetadata["Task-Id"])

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrBlobNotFound)
}
