// Package s3 implements the storage backend over any S3-compatible
// object store via the MinIO client.
package s3

import (
	"context"
	"errors"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/printforge/preflight/internal/storage"
)

// Storage holds a MinIO client bound to a single bucket.
type Storage struct {
	client     *minio.Client
	bucketName string
}

// NewStorage connects to the endpoint and ensures the bucket exists.
func NewStorage(ctx context.Context, endpoint, accessKey, secretKey, bucketName string, useSSL bool) (*Storage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %w", err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &Storage{
		client:     client,
		bucketName: bucketName,
	}, nil
}

// Fetch downloads the object at key into dest.
func (s *Storage) Fetch(ctx context.Context, key, dest string) error {
	err := s.client.FGetObject(ctx, s.bucketName, key, dest, minio.GetObjectOptions{})
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return storage.ErrNotFound
		}
		return &storage.TransportError{Op: "get", Key: key, Err: err}
	}
	return nil
}

// Store uploads the file at src under key with the given content type.
func (s *Storage) Store(ctx context.Context, key, src, contentType string) error {
	_, err := s.client.FPutObject(ctx, s.bucketName, key, src, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return &storage.TransportError{Op: "put", Key: key, Err: err}
	}
	return nil
}
