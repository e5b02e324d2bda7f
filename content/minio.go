package content

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pevans/newscrawl/logger"
)

// MinioConfig configures the S3-compatible backend.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// MinioStore keeps bodies in an S3-compatible bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
	log    logger.Logger
}

const noSuchKey = "NoSuchKey"

// NewMinioStore connects to the endpoint and creates the bucket if it does
// not exist.
func NewMinioStore(ctx context.Context, cfg MinioConfig, log logger.Logger) (*MinioStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket must be set")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		log.Info("Created content bucket", logger.String("bucket", cfg.Bucket))
	}

	log.Info("MinIO content store initialized",
		logger.String("endpoint", cfg.Endpoint),
		logger.String("bucket", cfg.Bucket))

	return &MinioStore{client: client, bucket: cfg.Bucket, log: log}, nil
}

// Put uploads body as a text object.
func (s *MinioStore) Put(ctx context.Context, articleURL, body string) (string, error) {
	key := KeyFor(articleURL)

	_, err := s.client.PutObject(ctx, s.bucket, key,
		strings.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{
			ContentType:  "text/plain; charset=utf-8",
			UserMetadata: map[string]string{"url": articleURL},
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to upload content: %w", err)
	}

	s.log.Debug("Uploaded content",
		logger.String("object_key", key),
		logger.Int("size", len(body)))

	return key, nil
}

// Get downloads the object stored under key.
func (s *MinioStore) Get(ctx context.Context, key string) (string, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return "", s.translate(err, "failed to get content")
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return "", s.translate(err, "failed to read content")
	}

	return string(data), nil
}

// SignedURL returns a presigned GET URL for key.
func (s *MinioStore) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		return "", s.translate(err, "failed to stat content")
	}

	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, clampExpiry(expiry), nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign content url: %w", err)
	}

	return u.String(), nil
}

// Delete removes the object stored under key.
func (s *MinioStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete content: %w", err)
	}
	return nil
}

// List returns every object under the articles/ prefix.
func (s *MinioStore) List(ctx context.Context) ([]Object, error) {
	// Cancelling stops the listing goroutine if we return early.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var objects []Object

	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    "articles/",
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, fmt.Errorf("failed to list content: %w", info.Err)
		}
		objects = append(objects, Object{Key: info.Key, ModifiedAt: info.LastModified})
	}

	return objects, nil
}

func (s *MinioStore) translate(err error, msg string) error {
	if minio.ToErrorResponse(err).Code == noSuchKey {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}
