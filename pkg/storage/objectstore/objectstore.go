package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config contains the information required to talk to an object store. The
// endpoint can point at a local MinIO instance for offline development.
type Config struct {
	Provider  string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Location identifies an uploaded object.
type Location struct {
	Bucket string
	Key    string
}

// UploadError reports a failed upload together with its destination.
type UploadError struct {
	Bucket string
	Key    string
	Err    error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s/%s: %v", e.Bucket, e.Key, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Client represents the capabilities the derivation pipeline expects: a
// time-limited readable URL for sources, and streaming uploads of locally
// materialized assets. The bucket travels with each call because it comes
// from the triggering event, not from configuration.
type Client interface {
	PresignedGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
	Upload(ctx context.Context, localPath, bucket, key, contentType string) (Location, error)
	Close() error
}

// New creates an object store client based on the given configuration.
func New(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "minio", "s3":
		return newMinioClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported object store provider: %s", cfg.Provider)
	}
}

type minioClient struct {
	client *minio.Client
}

func newMinioClient(cfg Config) (Client, error) {
	cl, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	return &minioClient{client: cl}, nil
}

func (m *minioClient) PresignedGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, bucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s/%s: %w", bucket, key, err)
	}
	return u.String(), nil
}

func (m *minioClient) Upload(ctx context.Context, localPath, bucket, key, contentType string) (Location, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return Location{}, &UploadError{Bucket: bucket, Key: key, Err: err}
	}

	file, err := os.Open(localPath)
	if err != nil {
		return Location{}, &UploadError{Bucket: bucket, Key: key, Err: err}
	}
	defer file.Close()

	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := m.client.PutObject(ctx, bucket, key, file, info.Size(), opts); err != nil {
		return Location{}, &UploadError{Bucket: bucket, Key: key, Err: err}
	}

	return Location{Bucket: bucket, Key: key}, nil
}

func (m *minioClient) Close() error {
	return nil
}
