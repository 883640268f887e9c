package s3

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rx3lixir/echonet/internal/config"
)

const initTimeout = 5 * time.Second

var ErrBucketMissing = errors.New("bucket does not exist")

// NewClient creates a MinIO client from the s3 section of the config
func NewClient(p config.S3Params) (*minio.Client, error) {
	if p.Endpoint == "" {
		return nil, errors.New("s3 endpoint is required")
	}

	client, err := minio.New(p.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(p.AccessKeyID, p.SecretAccessKey, ""),
		Secure: p.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client for %s: %w", p.Endpoint, err)
	}

	return client, nil
}

// EnsureBucket creates the transcript bucket on first start. A bucket
// created concurrently by another instance counts as success.
func EnsureBucket(parentCtx context.Context, client *minio.Client, bucketName string) error {
	ctx, cancel := context.WithTimeout(parentCtx, initTimeout)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket %q: %w", bucketName, err)
	}
	if exists {
		return nil
	}

	err = client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
	if err != nil {
		if code := minio.ToErrorResponse(err).Code; code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists" {
			return nil
		}
		return fmt.Errorf("failed to create bucket %q: %w", bucketName, err)
	}

	return nil
}

// Health checks that the object store answers and the bucket is still there
func Health(ctx context.Context, client *minio.Client, bucketName string) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return err
	}
	if !exists {
		return ErrBucketMissing
	}
	return nil
}
