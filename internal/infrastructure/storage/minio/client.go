// Package minio archives exported result files in an S3 compatible bucket.
package minio

import (
	"context"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"

	"github.com/turtacn/OpenAD-Plugins/internal/config"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

// MinIOAPI is the subset of *minio.Client used here.
type MinIOAPI interface {
	ListBuckets(ctx context.Context) ([]minio.BucketInfo, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	SetBucketLifecycle(ctx context.Context, bucketName string, config *lifecycle.Configuration) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error)
}

const (
	defaultRegion     = "us-east-1"
	defaultExportDays = 30
)

// ErrMinIOClientClosed is returned by calls made after Close.
var ErrMinIOClientClosed = errors.New(errors.ErrCodeServiceUnavailable, "minio client is closed")

// MinIOClient wraps the MinIO API for the export bucket.
type MinIOClient struct {
	client MinIOAPI
	config config.MinIOConfig
	logger logging.Logger
	mu     sync.RWMutex
	closed bool
}

// NewMinIOClient connects, verifies the credentials and makes sure the
// export bucket exists.
func NewMinIOClient(cfg config.MinIOConfig, log logging.Logger) (*MinIOClient, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New(errors.ErrCodeValidation, "minio endpoint and bucket are required")
	}
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create minio client")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return newMinIOClient(ctx, client, cfg, log)
}

func newMinIOClient(ctx context.Context, api MinIOAPI, cfg config.MinIOConfig, log logging.Logger) (*MinIOClient, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}
	if _, err := api.ListBuckets(ctx); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to connect to minio")
	}

	c := &MinIOClient{client: api, config: cfg, logger: log.Named("minio")}
	if err := c.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	c.logger.Info("minio client connected",
		logging.String("endpoint", cfg.Endpoint),
		logging.String("bucket", cfg.Bucket),
		logging.Bool("ssl", cfg.UseSSL))
	return c, nil
}

// EnsureBucket creates the export bucket when missing and sets its expiry
// rule. A rejected lifecycle rule is only logged.
func (c *MinIOClient) EnsureBucket(ctx context.Context) error {
	bucket := c.config.Bucket
	exists, err := c.client.BucketExists(ctx, bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to check bucket existence").WithDetail(bucket)
	}
	if exists {
		return nil
	}
	if err := c.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: c.config.Region}); err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to create bucket").WithDetail(bucket)
	}
	c.logger.Info("created bucket", logging.String("bucket", bucket))

	rules := lifecycle.NewConfiguration()
	rules.Rules = []lifecycle.Rule{{
		ID:         "exports-cleanup",
		Status:     "Enabled",
		Expiration: lifecycle.Expiration{Days: defaultExportDays},
	}}
	if err := c.client.SetBucketLifecycle(ctx, bucket, rules); err != nil {
		c.logger.Warn("failed to set lifecycle for export bucket", logging.Err(err))
	}
	return nil
}

// Bucket is the configured export bucket.
func (c *MinIOClient) Bucket() string { return c.config.Bucket }

func (c *MinIOClient) api() (MinIOAPI, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrMinIOClientClosed
	}
	return c.client, nil
}

func (c *MinIOClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// HealthStatus is the result of a HealthCheck.
type HealthStatus struct {
	Healthy bool
	Latency time.Duration
	Error   string
}

func (c *MinIOClient) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	api, err := c.api()
	if err != nil {
		return &HealthStatus{Error: err.Error()}, err
	}

	start := time.Now()
	exists, err := api.BucketExists(ctx, c.config.Bucket)
	status := &HealthStatus{Healthy: err == nil && exists, Latency: time.Since(start)}
	switch {
	case err != nil:
		status.Error = err.Error()
		return status, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "minio health check failed")
	case !exists:
		status.Error = "bucket " + c.config.Bucket + " missing"
	}
	return status, nil
}
