package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/user/ci-analysis-collector/pkg/config"
)

// Store keeps a copy of every submitted payload in an S3 compatible bucket
type Store struct {
	client     *minio.Client
	bucketName string
}

// New connects to the object store and creates the bucket when missing
func New(ctx context.Context, cfg config.ArchiveConfig) (*Store, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to archive: %w", err)
	}

	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check archive bucket: %w", err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create archive bucket: %w", err)
		}
	}

	return &Store{client: cli, bucketName: cfg.Bucket}, nil
}

// Key is the object name for one run's payload
func Key(toolID string, ts time.Time, traceID string) string {
	return fmt.Sprintf("%s/%s-%s.json", toolID, ts.UTC().Format("20060102T150405Z"), traceID)
}

// Upload stores data under key and returns the object URL
func (s *Store) Upload(ctx context.Context, key string, data []byte) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	url := fmt.Sprintf("%s/%s/%s", s.client.EndpointURL().String(), s.bucketName, key)
	return url, nil
}
