package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"medblock/internal/platform/config"
	dErrors "medblock/pkg/domain-errors"
)

const minioScheme = "minio"

// MinIO stores objects in one S3-compatible bucket. Pointers look like
// minio://<bucket>/<key>. It is safe for concurrent use.
type MinIO struct {
	client *minio.Client
	bucket string
}

// NewMinIO connects and creates the bucket if it is missing.
func NewMinIO(ctx context.Context, cfg config.BlobConfig) (*MinIO, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio credentials are required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}

	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &MinIO{client: cli, bucket: cfg.Bucket}, nil
}

func (m *MinIO) Put(ctx context.Context, objectKey string, data []byte) (string, error) {
	_, err := m.client.PutObject(ctx, m.bucket, objectKey, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeDependencyUnavailable, "put blob")
	}
	return minioScheme + "://" + m.bucket + "/" + objectKey, nil
}

func (m *MinIO) Get(ctx context.Context, pointer string) ([]byte, error) {
	bucket, key, err := parsePointer(pointer, minioScheme)
	if err != nil {
		return nil, err
	}
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDependencyUnavailable, "get blob")
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, dErrors.Wrap(err, dErrors.CodeDependencyUnavailable, "read blob")
	}
	return data, nil
}

func (m *MinIO) Delete(ctx context.Context, pointer string) error {
	bucket, key, err := parsePointer(pointer, minioScheme)
	if err != nil {
		return err
	}
	if err := m.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return dErrors.Wrap(err, dErrors.CodeDependencyUnavailable, "delete blob")
	}
	return nil
}

// Health checks that the bucket is reachable.
func (m *MinIO) Health(ctx context.Context) error {
	_, err := m.client.BucketExists(ctx, m.bucket)
	return err
}
