package storage

import (
	"context"
	"fmt"
	"io"
	"os"

	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	apperrors "github.com/jittakal/tabular2mcap/internal/errors"
	"github.com/jittakal/tabular2mcap/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Uploader = (*GCSUploader)(nil)

// GCSConfig contains Google Cloud Storage configuration.
type GCSConfig struct {
	Bucket               string
	ProjectID            string
	CredentialsFile      string
	CredentialsJSON      string
	Endpoint             string
	UseDefaultCredential bool
}

// Validate checks the required fields.
func (c GCSConfig) Validate() error {
	if c.Bucket == "" {
		return &apperrors.ValidationError{Field: "storage.gcs.bucket", Reason: "is required"}
	}
	return nil
}

// clientOptions returns the endpoint and credential options. Explicit JSON
// wins over a credentials file; with neither, default credentials are used.
func (c GCSConfig) clientOptions() []option.ClientOption {
	var opts []option.ClientOption
	if c.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.Endpoint))
	}
	switch {
	case c.UseDefaultCredential:
	case c.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(c.CredentialsJSON)))
	case c.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(c.CredentialsFile))
	}
	return opts
}

// GCSUploader implements storage.Uploader for Google Cloud Storage.
type GCSUploader struct {
	client  *gcs.Client
	bucket  string
	retry   Config
	logger  *zap.Logger
	metrics MetricsCollector
}

// NewGCSUploader creates a new Google Cloud Storage uploader.
func NewGCSUploader(ctx context.Context, cfg GCSConfig, retryCfg Config, logger *zap.Logger, metrics MetricsCollector) (*GCSUploader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := gcs.NewClient(ctx, cfg.clientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	logger.Info("GCS uploader created",
		zap.String("bucket", cfg.Bucket),
		zap.String("project_id", cfg.ProjectID))

	return &GCSUploader{client: client, bucket: cfg.Bucket, retry: retryCfg, logger: logger, metrics: metrics}, nil
}

// Upload copies localPath to gs://bucket/key.
func (u *GCSUploader) Upload(ctx context.Context, localPath, key string) (int64, error) {
	var written int64
	err := timedUpload(ctx, u.retry, "gcs", u.logger, u.metrics, func() error {
		file, err := os.Open(localPath)
		if err != nil {
			return &apperrors.StorageError{Operation: "open", Path: localPath, Err: err}
		}
		defer file.Close()

		w := u.client.Bucket(u.bucket).Object(key).NewWriter(ctx)
		w.ContentType = MCAPContentType

		if written, err = io.Copy(w, file); err != nil {
			w.Close()
			return &apperrors.StorageError{Operation: "upload", Path: "gs://" + u.bucket + "/" + key, Err: err}
		}
		if err := w.Close(); err != nil {
			return &apperrors.StorageError{Operation: "upload", Path: "gs://" + u.bucket + "/" + key, Err: err}
		}
		u.logger.Info("Uploaded to GCS",
			zap.String("bucket", u.bucket),
			zap.String("object", key),
			zap.Int64("bytes", written))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// Close closes the GCS client.
func (u *GCSUploader) Close() error {
	if u.client != nil {
		return u.client.Close()
	}
	return nil
}
