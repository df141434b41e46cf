package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	apperrors "github.com/jittakal/tabular2mcap/internal/errors"
	"github.com/jittakal/tabular2mcap/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Uploader = (*S3Uploader)(nil)

// MCAPContentType is the content type of uploaded objects.
const MCAPContentType = "application/octet-stream"

// S3Config contains AWS S3 configuration.
type S3Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
	SSEEnabled   bool
	SSEKMSKeyID  string
}

// Validate checks the required fields.
func (c S3Config) Validate() error {
	if c.Bucket == "" {
		return &apperrors.ValidationError{Field: "storage.s3.bucket", Reason: "is required"}
	}
	if c.Region == "" {
		return &apperrors.ValidationError{Field: "storage.s3.region", Reason: "is required"}
	}
	return nil
}

// S3Uploader implements storage.Uploader for AWS S3 storage.
// It provides multipart upload support and server-side encryption (SSE).
type S3Uploader struct {
	uploader    *manager.Uploader
	bucket      string
	sseEnabled  bool
	sseKMSKeyID string
	retry       Config
	logger      *zap.Logger
	metrics     MetricsCollector
}

// NewS3Uploader creates a new S3 uploader.
func NewS3Uploader(ctx context.Context, cfg S3Config, retryCfg Config, logger *zap.Logger, metrics MetricsCollector) (*S3Uploader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024
		u.Concurrency = 5
	})

	logger.Info("S3 uploader created",
		zap.String("bucket", cfg.Bucket),
		zap.String("region", cfg.Region),
		zap.Bool("sse_enabled", cfg.SSEEnabled))

	return &S3Uploader{
		uploader:    uploader,
		bucket:      cfg.Bucket,
		sseEnabled:  cfg.SSEEnabled,
		sseKMSKeyID: cfg.SSEKMSKeyID,
		retry:       retryCfg,
		logger:      logger,
		metrics:     metrics,
	}, nil
}

// putInput builds the upload request for key.
func (u *S3Uploader) putInput(key string, body *os.File) *s3.PutObjectInput {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(MCAPContentType),
	}
	if u.sseEnabled {
		if u.sseKMSKeyID != "" {
			input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
			input.SSEKMSKeyId = aws.String(u.sseKMSKeyID)
		} else {
			input.ServerSideEncryption = types.ServerSideEncryptionAes256
		}
	}
	return input
}

// Upload uploads localPath to s3://bucket/key.
func (u *S3Uploader) Upload(ctx context.Context, localPath, key string) (int64, error) {
	var size int64
	err := timedUpload(ctx, u.retry, "s3", u.logger, u.metrics, func() error {
		file, err := os.Open(localPath)
		if err != nil {
			return &apperrors.StorageError{Operation: "open", Path: localPath, Err: err}
		}
		defer file.Close()
		if size, err = fileSize(file); err != nil {
			return &apperrors.StorageError{Operation: "stat", Path: localPath, Err: err}
		}

		result, err := u.uploader.Upload(ctx, u.putInput(key, file))
		if err != nil {
			return &apperrors.StorageError{Operation: "upload", Path: "s3://" + u.bucket + "/" + key, Err: err}
		}
		u.logger.Info("Uploaded to S3",
			zap.String("bucket", u.bucket),
			zap.String("key", key),
			zap.String("location", result.Location),
			zap.Int64("bytes", size))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return size, nil
}

// Close closes the S3 uploader.
func (u *S3Uploader) Close() error {
	return nil
}
