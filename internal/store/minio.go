package store

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// BucketInfo describes one origin bucket.
type BucketInfo struct {
	Name    string     `json:"name"`
	Created *time.Time `json:"created,omitempty"`
}

// MinioStore wraps a MinIO client for origin object storage and bucket
// administration.
type MinioStore struct {
	client   *minio.Client
	endpoint string
}

func NewMinioStore(ctx context.Context, endpoint, accessKey, secretKey, defaultBucket string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	s := &MinioStore{client: client, endpoint: endpoint}

	// Ensure the default bucket exists and is publicly readable.
	exists, err := client.BucketExists(ctx, defaultBucket)
	if err != nil {
		return nil, fmt.Errorf("minio bucket check: %w", err)
	}
	if !exists {
		if err := s.CreateBucket(ctx, defaultBucket); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Upload stores bytes under the given object key.
func (s *MinioStore) Upload(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	reader := bytes.NewReader(data)
	_, err := s.client.PutObject(ctx, bucket, key, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

// Remove deletes an object.
func (s *MinioStore) Remove(ctx context.Context, bucket, key string) error {
	return s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
}

// ListBuckets returns all origin buckets.
func (s *MinioStore) ListBuckets(ctx context.Context) ([]BucketInfo, error) {
	buckets, err := s.client.ListBuckets(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]BucketInfo, 0, len(buckets))
	for _, b := range buckets {
		info := BucketInfo{Name: b.Name}
		if !b.CreationDate.IsZero() {
			created := b.CreationDate
			info.Created = &created
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// BucketExists reports whether the named bucket exists.
func (s *MinioStore) BucketExists(ctx context.Context, name string) (bool, error) {
	return s.client.BucketExists(ctx, name)
}

// CreateBucket creates a bucket and applies the public-read policy so the
// edge can serve its objects anonymously.
func (s *MinioStore) CreateBucket(ctx context.Context, name string) error {
	if err := s.client.MakeBucket(ctx, name, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("minio make bucket: %w", err)
	}
	return s.SetBucketPublic(ctx, name)
}

// SetBucketPublic applies an anonymous GetObject policy to the bucket.
func (s *MinioStore) SetBucketPublic(ctx context.Context, name string) error {
	policy := fmt.Sprintf(`{
		"Version": "2012-10-17",
		"Statement": [{
			"Effect": "Allow",
			"Principal": {"AWS": "*"},
			"Action": ["s3:GetObject"],
			"Resource": ["arn:aws:s3:::%s/*"]
		}]
	}`, name)
	if err := s.client.SetBucketPolicy(ctx, name, policy); err != nil {
		return fmt.Errorf("minio set bucket policy: %w", err)
	}
	return nil
}

// Endpoint returns the configured storage endpoint for display in
// system-info.
func (s *MinioStore) Endpoint() string {
	return s.endpoint
}
