package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"go.uber.org/zap"

	apperrors "github.com/jittakal/tabular2mcap/internal/errors"
	"github.com/jittakal/tabular2mcap/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Uploader = (*AzureUploader)(nil)

// AzureConfig contains Azure Blob Storage configuration.
type AzureConfig struct {
	AccountName   string
	AccountKey    string
	ContainerName string
	Endpoint      string
}

// Validate checks the required fields.
func (c AzureConfig) Validate() error {
	switch {
	case c.AccountName == "":
		return &apperrors.ValidationError{Field: "storage.azure.account_name", Reason: "is required"}
	case c.AccountKey == "":
		return &apperrors.ValidationError{Field: "storage.azure.account_key", Reason: "is required"}
	case c.ContainerName == "":
		return &apperrors.ValidationError{Field: "storage.azure.container", Reason: "is required"}
	}
	return nil
}

// ConnectionString builds the shared key connection string of the account.
func (c AzureConfig) ConnectionString() string {
	if c.Endpoint != "" {
		return fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;BlobEndpoint=%s",
			c.AccountName, c.AccountKey, c.Endpoint)
	}
	return fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;EndpointSuffix=core.windows.net",
		c.AccountName, c.AccountKey)
}

// AzureUploader implements storage.Uploader for Azure Blob Storage.
type AzureUploader struct {
	client        *azblob.Client
	containerName string
	retry         Config
	logger        *zap.Logger
	metrics       MetricsCollector
}

// NewAzureUploader creates a new Azure Blob uploader.
func NewAzureUploader(cfg AzureConfig, retryCfg Config, logger *zap.Logger, metrics MetricsCollector) (*AzureUploader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	logger.Info("Azure uploader created",
		zap.String("container", cfg.ContainerName),
		zap.String("account", cfg.AccountName))

	return &AzureUploader{
		client:        client,
		containerName: cfg.ContainerName,
		retry:         retryCfg,
		logger:        logger,
		metrics:       metrics,
	}, nil
}

// Upload uploads localPath to the blob key.
func (u *AzureUploader) Upload(ctx context.Context, localPath, key string) (int64, error) {
	var size int64
	err := timedUpload(ctx, u.retry, "azure", u.logger, u.metrics, func() error {
		file, err := os.Open(localPath)
		if err != nil {
			return &apperrors.StorageError{Operation: "open", Path: localPath, Err: err}
		}
		defer file.Close()
		if size, err = fileSize(file); err != nil {
			return &apperrors.StorageError{Operation: "stat", Path: localPath, Err: err}
		}

		if _, err := u.client.UploadFile(ctx, u.containerName, key, file, nil); err != nil {
			return &apperrors.StorageError{Operation: "upload", Path: u.containerName + "/" + key, Err: err}
		}
		u.logger.Info("Uploaded to Azure Blob",
			zap.String("container", u.containerName),
			zap.String("blob", key),
			zap.Int64("bytes", size))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return size, nil
}

// Close closes the Azure uploader.
func (u *AzureUploader) Close() error {
	return nil
}
