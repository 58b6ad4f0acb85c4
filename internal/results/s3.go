package results

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tonimelisma/drivescan/internal/walk"
)

// S3Config configures an S3-compatible result bucket.
type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Prefix    string
}

// objectAPI is the bucket surface S3Store needs.
type objectAPI interface {
	put(ctx context.Context, key string, r io.Reader, size int64) error
	get(ctx context.Context, key string) (io.ReadCloser, error)
	remove(ctx context.Context, key string) error
}

// S3Store keeps artifacts as objects in an S3-compatible bucket. A single
// PUT makes each artifact visible all at once.
type S3Store struct {
	objects objectAPI
	prefix  string
	logger  *slog.Logger
}

// NewS3Store connects to the bucket described by cfg. When the bucket does
// not exist it is created.
func NewS3Store(ctx context.Context, cfg S3Config, logger *slog.Logger) (*S3Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("results: creating s3 client: %w", err)
	}

	s := newS3Store(&minioBucket{client: client, bucket: cfg.Bucket}, cfg.Prefix, logger)

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("results: checking bucket %s: %w", cfg.Bucket, err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("results: creating bucket %s: %w", cfg.Bucket, err)
		}

		s.logger.Info("created result bucket", slog.String("bucket", cfg.Bucket))
	}

	return s, nil
}

func newS3Store(objects objectAPI, prefix string, logger *slog.Logger) *S3Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &S3Store{objects: objects, prefix: prefix, logger: logger}
}

// Key returns the object key for jobID.
func (s *S3Store) Key(jobID string) string {
	return s.prefix + objectName(jobID)
}

// Save renders the artifact in memory and uploads it in one request.
func (s *S3Store) Save(ctx context.Context, jobID string, entries []walk.Entry) (int, error) {
	var buf bytes.Buffer

	n, err := WriteCSV(&buf, entries)
	if err != nil {
		return 0, err
	}

	key := s.Key(jobID)
	if err := s.objects.put(ctx, key, &buf, int64(buf.Len())); err != nil {
		return 0, fmt.Errorf("results: uploading %s: %w", key, err)
	}

	s.logger.Debug("result uploaded",
		slog.String("job_id", jobID),
		slog.Int("rows", n),
		slog.String("key", key),
	)

	return n, nil
}

// Open streams the artifact for jobID.
func (s *S3Store) Open(ctx context.Context, jobID string) (io.ReadCloser, error) {
	rc, err := s.objects.get(ctx, s.Key(jobID))
	if err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("%w: job %s", ErrNotFound, jobID)
		}

		return nil, fmt.Errorf("results: downloading %s: %w", s.Key(jobID), err)
	}

	return rc, nil
}

// Remove deletes the artifact for jobID.
func (s *S3Store) Remove(ctx context.Context, jobID string) error {
	if err := s.objects.remove(ctx, s.Key(jobID)); err != nil && !isNoSuchKey(err) {
		return fmt.Errorf("results: removing %s: %w", s.Key(jobID), err)
	}

	return nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

// minioBucket binds objectAPI to one bucket of a minio client.
type minioBucket struct {
	client *minio.Client
	bucket string
}

func (b *minioBucket) put(ctx context.Context, key string, r io.Reader, size int64) error {
	_, err := b.client.PutObject(ctx, b.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: ContentType,
	})

	return err
}

// get stats the object first because GetObject defers errors to the first
// read.
func (b *minioBucket) get(ctx context.Context, key string) (io.ReadCloser, error) {
	if _, err := b.client.StatObject(ctx, b.bucket, key, minio.StatObjectOptions{}); err != nil {
		return nil, err
	}

	return b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
}

func (b *minioBucket) remove(ctx context.Context, key string) error {
	return b.client.RemoveObject(ctx, b.bucket, key, minio.RemoveObjectOptions{})
}
