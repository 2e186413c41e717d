package cache

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"soundsproxy/internal/config"
)

// episodeCacheControl is sent with uploaded artifacts so a bucket fronted by
// a CDN caches them for a week.
const episodeCacheControl = "public, max-age=604800"

// S3Store keeps artifacts in an S3-compatible bucket.
type S3Store struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// NewS3Store creates a blob store backed by the configured bucket.
func NewS3Store(cfg config.CacheConfig, logger *slog.Logger) (*S3Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating object store client: %w", err)
	}

	return &S3Store{
		client: client,
		bucket: cfg.Bucket,
		logger: logger,
	}, nil
}

func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	return true, nil
}

func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, fmt.Errorf("get %s: %w", key, err)
	}

	// GetObject is lazy; Stat forces the first request so missing keys
	// surface here instead of on the first Read.
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, 0, fmt.Errorf("get %s: %w", key, err)
	}

	return obj, info.Size, nil
}

// Put streams the artifact into the bucket. The size is unknown up front, so
// a multipart upload is used; on error the upload is aborted and no object
// becomes visible.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	info, err := s.client.PutObject(ctx, s.bucket, key, r, -1, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: episodeCacheControl,
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}

	s.logger.Info("artifact stored",
		slog.String("key", key),
		slog.Int64("bytes", info.Size),
	)
	return nil
}
