// Package s3storage uploads queued files straight into an S3 compatible
// bucket, as an alternative to the hosting service's upload endpoint.
package s3storage

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/snapdrop/internal/config"
	"github.com/dharsanguruparan/snapdrop/internal/model"
)

// Storage wraps MinIO/S3 interactions for uploaded media.
type Storage struct {
	client *minio.Client
	bucket string
	region string
	urlTTL time.Duration
	now    func() time.Time
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.S3Endpoint, "https://"), "http://")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	ttl := cfg.SignedURLTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Storage{
		client: client,
		bucket: cfg.S3Bucket,
		region: cfg.S3Region,
		urlTTL: ttl,
		now:    time.Now,
	}, nil
}

// Bucket returns the target bucket name.
func (s *Storage) Bucket() string { return s.bucket }

// EnsureBucket makes sure the upload bucket exists before use.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("make bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Transfer stores file under a fresh object key and returns the key with a
// presigned download URL.
func (s *Storage) Transfer(ctx context.Context, file model.File) (model.Receipt, error) {
	body, err := file.Open()
	if err != nil {
		return model.Receipt{}, fmt.Errorf("open %s: %w", file.Name, err)
	}
	defer body.Close()

	key := ObjectKey(s.now(), file.Name)
	opts := minio.PutObjectOptions{
		ContentType:  file.ContentType,
		UserMetadata: map[string]string{"original-name": file.Name},
	}
	if _, err := s.client.PutObject(ctx, s.bucket, key, body, file.Size, opts); err != nil {
		return model.Receipt{}, fmt.Errorf("upload object: %w", err)
	}
	link, err := s.PresignURL(ctx, key)
	if err != nil {
		return model.Receipt{ID: key}, err
	}
	return model.Receipt{ID: key, URL: link}, nil
}

// PresignURL returns a signed GET URL for an uploaded object.
func (s *Storage) PresignURL(ctx context.Context, objectKey string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey, s.urlTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return u.String(), nil
}

// Remove deletes an uploaded object.
func (s *Storage) Remove(ctx context.Context, objectKey string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, objectKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

// ObjectKey builds "uploads/YYYY/MM/<uuid><ext>" keeping the lower-cased
// extension of name.
func ObjectKey(now time.Time, name string) string {
	ext := strings.ToLower(path.Ext(name))
	return fmt.Sprintf("uploads/%s/%s%s", now.UTC().Format("2006/01"), uuid.NewString(), ext)
}
