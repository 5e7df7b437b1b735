package filestore

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig holds the connection settings of an S3 compatible bucket.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	URLTTL    time.Duration
}

// MinIO stores attachments as objects and serves them through presigned URLs.
type MinIO struct {
	client *minio.Client
	bucket string
	ttl    time.Duration
}

// NewMinIO connects to the endpoint and creates the bucket when it does not exist.
func NewMinIO(ctx context.Context, cfg MinIOConfig) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	ttl := cfg.URLTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &MinIO{client: client, bucket: cfg.Bucket, ttl: ttl}, nil
}

// Save uploads the attachment under a random object name.
func (m *MinIO) Save(ctx context.Context, up Upload) (string, error) {
	name := objectName(up.Extension)
	size := up.Size
	if size <= 0 {
		size = -1
	}
	_, err := m.client.PutObject(ctx, m.bucket, name, up.Body, size, minio.PutObjectOptions{
		ContentType: up.ContentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return name, nil
}

// URL presigns a GET for ref.
func (m *MinIO) URL(ctx context.Context, ref string) (string, error) {
	if !validRef(ref) {
		return "", fmt.Errorf("invalid attachment reference %q", ref)
	}
	u, err := m.client.PresignedGetObject(ctx, m.bucket, ref, m.ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return u.String(), nil
}

// Remove deletes ref. S3 deletes are idempotent, so the object is looked up first to
// report ErrNotExist for a missing key.
func (m *MinIO) Remove(ctx context.Context, ref string) error {
	if !validRef(ref) {
		return fmt.Errorf("invalid attachment reference %q", ref)
	}
	if _, err := m.client.StatObject(ctx, m.bucket, ref, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return fmt.Errorf("remove %s: %w", ref, ErrNotExist)
		}
		return fmt.Errorf("stat object: %w", err)
	}
	if err := m.client.RemoveObject(ctx, m.bucket, ref, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}
