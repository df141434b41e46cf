package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/jittakal/tabular2mcap/internal/errors"
	"github.com/jittakal/tabular2mcap/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Uploader = (*FileUploader)(nil)

// FileUploader implements storage.Uploader for the local filesystem.
// The file is renamed into place, or copied when the rename crosses devices.
type FileUploader struct {
	logger  *zap.Logger
	metrics MetricsCollector
}

// NewFileUploader creates a new filesystem uploader.
func NewFileUploader(logger *zap.Logger, metrics MetricsCollector) *FileUploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileUploader{logger: logger, metrics: metrics}
}

// Upload moves localPath to the file path key.
func (u *FileUploader) Upload(ctx context.Context, localPath, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	start := time.Now()

	info, err := os.Stat(localPath)
	if err != nil {
		u.failed("stat")
		return 0, &apperrors.StorageError{Operation: "stat", Path: localPath, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(key), 0o755); err != nil {
		u.failed("mkdir")
		return 0, &apperrors.StorageError{Operation: "mkdir", Path: key, Err: err}
	}

	if err := os.Rename(localPath, key); err != nil {
		u.logger.Debug("Rename failed, copying", zap.String("from", localPath), zap.String("to", key), zap.Error(err))
		if err := copyFile(localPath, key); err != nil {
			u.failed("write")
			return 0, &apperrors.StorageError{Operation: "write", Path: key, Err: err}
		}
		_ = os.Remove(localPath)
	}

	if u.metrics != nil {
		u.metrics.IncUploads("file", "success")
		u.metrics.ObserveUploadDuration("file", time.Since(start).Seconds())
	}
	u.logger.Debug("Moved output into place", zap.String("path", key), zap.Int64("bytes", info.Size()))
	return info.Size(), nil
}

func (u *FileUploader) failed(operation string) {
	if u.metrics != nil {
		u.metrics.IncStorageErrors("file", operation)
		u.metrics.IncUploads("file", "failure")
	}
}

// Close closes the uploader.
func (u *FileUploader) Close() error {
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
