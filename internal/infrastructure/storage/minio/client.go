// Package minio stores and fetches profile CSVs and ranking exports in
// S3-compatible object storage.
package minio

import (
	"context"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/turtacn/MorphoScreen/internal/config"
	"github.com/turtacn/MorphoScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MorphoScreen/pkg/errors"
)

// Client wraps a minio client bound to the configured bucket.
type Client struct {
	mc     *miniogo.Client
	bucket string
	logger logging.Logger
}

// NewClient connects to the object store and ensures the bucket exists.
func NewClient(ctx context.Context, cfg config.MinIOConfig, logger logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	mc, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "create object storage client")
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	exists, err := mc.BucketExists(checkCtx, cfg.Bucket)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "check bucket")
	}
	if !exists {
		if err := mc.MakeBucket(checkCtx, cfg.Bucket, miniogo.MakeBucketOptions{}); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeStorageError, "create bucket")
		}
	}

	logger.Info("connected to object storage",
		logging.String("endpoint", cfg.Endpoint),
		logging.String("bucket", cfg.Bucket),
	)
	return &Client{mc: mc, bucket: cfg.Bucket, logger: logger}, nil
}

// Bucket returns the bucket name the client is bound to.
func (c *Client) Bucket() string {
	return c.bucket
}
