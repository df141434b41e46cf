package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	apperrors "github.com/jittakal/tabular2mcap/internal/errors"
	"github.com/jittakal/tabular2mcap/pkg/storage"
)

// MetricsCollector defines metrics operations for storage.
type MetricsCollector interface {
	IncStorageErrors(backend string, operation string)
	IncUploads(backend string, status string)
	ObserveUploadDuration(backend string, seconds float64)
}

// Config holds the credentials of every remote backend. Bucket and container
// names come from the destination.
type Config struct {
	S3    S3Config
	GCS   GCSConfig
	Azure AzureConfig

	// Attempts is the number of upload attempts for remote backends.
	Attempts uint
	// RetryDelay is the initial delay between attempts.
	RetryDelay time.Duration
}

func (c Config) retryOptions(ctx context.Context, logger *zap.Logger, backend string) []retry.Option {
	attempts := c.Attempts
	if attempts == 0 {
		attempts = 3
	}
	delay := c.RetryDelay
	if delay == 0 {
		delay = time.Second
	}
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(apperrors.IsRetryable),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("Retrying upload",
				zap.String("backend", backend),
				zap.Uint("attempt", n+1),
				zap.Error(err))
		}),
	}
}

// NewUploader returns the uploader for dest.
func NewUploader(ctx context.Context, dest storage.Destination, cfg Config, logger *zap.Logger, metrics MetricsCollector) (storage.Uploader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch dest.Scheme {
	case storage.SchemeFile:
		return NewFileUploader(logger, metrics), nil
	case storage.SchemeS3:
		s3cfg := cfg.S3
		s3cfg.Bucket = dest.Bucket
		return NewS3Uploader(ctx, s3cfg, cfg, logger, metrics)
	case storage.SchemeGCS:
		gcscfg := cfg.GCS
		gcscfg.Bucket = dest.Bucket
		return NewGCSUploader(ctx, gcscfg, cfg, logger, metrics)
	case storage.SchemeAzure:
		azcfg := cfg.Azure
		azcfg.ContainerName = dest.Bucket
		if dest.Account != "" {
			azcfg.AccountName = dest.Account
		}
		return NewAzureUploader(azcfg, cfg, logger, metrics)
	}
	return nil, fmt.Errorf("unsupported destination scheme %q", dest.Scheme)
}

// OutputFileMode is the permission of a committed local output.
const OutputFileMode os.FileMode = 0o644

// Output is the local file a conversion writes before it is published to
// its destination.
type Output struct {
	*os.File

	dest     storage.Destination
	uploader storage.Uploader
	logger   *zap.Logger
	done     bool
}

// Create opens a temporary file for dest. Local destinations get their
// parent directories created and the temporary file next to them.
func Create(ctx context.Context, dest storage.Destination, cfg Config, logger *zap.Logger, metrics MetricsCollector) (*Output, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	uploader, err := NewUploader(ctx, dest, cfg, logger, metrics)
	if err != nil {
		return nil, err
	}

	dir := os.TempDir()
	if !dest.IsRemote() {
		dir = filepath.Dir(dest.Key)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			_ = uploader.Close()
			return nil, &apperrors.StorageError{Operation: "mkdir", Path: dir, Err: err}
		}
	}
	f, err := os.CreateTemp(dir, ".tabular2mcap-*.mcap")
	if err != nil {
		_ = uploader.Close()
		return nil, &apperrors.StorageError{Operation: "create", Path: dir, Err: err}
	}
	// CreateTemp uses 0600; the committed file is published with regular permissions.
	if err := f.Chmod(OutputFileMode); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		_ = uploader.Close()
		return nil, &apperrors.StorageError{Operation: "create", Path: f.Name(), Err: err}
	}
	return &Output{File: f, dest: dest, uploader: uploader, logger: logger}, nil
}

// Destination returns where Commit publishes the file.
func (o *Output) Destination() storage.Destination {
	return o.dest
}

// Commit closes the file and publishes it, returning its size.
func (o *Output) Commit(ctx context.Context) (int64, error) {
	if o.done {
		return 0, fmt.Errorf("output %s already finished", o.dest)
	}
	o.done = true
	defer o.cleanup()

	if err := o.File.Close(); err != nil {
		return 0, &apperrors.StorageError{Operation: "close", Path: o.Name(), Err: err}
	}
	size, err := o.uploader.Upload(ctx, o.Name(), o.dest.Key)
	if err != nil {
		return 0, err
	}
	o.logger.Info("Output written", zap.String("destination", o.dest.String()), zap.Int64("bytes", size))
	return size, nil
}

// Abort discards the file. It is a no-op after Commit.
func (o *Output) Abort() {
	if o.done {
		return
	}
	o.done = true
	_ = o.File.Close()
	o.cleanup()
}

func (o *Output) cleanup() {
	if err := os.Remove(o.Name()); err != nil && !os.IsNotExist(err) {
		o.logger.Warn("Failed to remove temporary output", zap.String("path", o.Name()), zap.Error(err))
	}
	if err := o.uploader.Close(); err != nil {
		o.logger.Warn("Failed to close uploader", zap.Error(err))
	}
}

// timedUpload runs fn with retries and records its outcome for backend.
func timedUpload(ctx context.Context, cfg Config, backend string, logger *zap.Logger, metrics MetricsCollector, fn func() error) error {
	start := time.Now()
	err := retry.Do(fn, cfg.retryOptions(ctx, logger, backend)...)
	if metrics != nil {
		metrics.ObserveUploadDuration(backend, time.Since(start).Seconds())
		if err != nil {
			metrics.IncStorageErrors(backend, "upload")
			metrics.IncUploads(backend, "failure")
		} else {
			metrics.IncUploads(backend, "success")
		}
	}
	return err
}

// fileSize returns the size of an open file.
func fileSize(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
