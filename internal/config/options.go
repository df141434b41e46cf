package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jittakal/tabular2mcap/internal/config/dto"
	"github.com/jittakal/tabular2mcap/internal/observability"
	"github.com/jittakal/tabular2mcap/internal/schema"
	"github.com/jittakal/tabular2mcap/internal/storage"
	"github.com/jittakal/tabular2mcap/internal/writer"
)

// Default file names inside the input directory.
const (
	DefaultOutputName    = "output.mcap"
	DefaultConfigName    = "config.yaml"
	DefaultFunctionsName = "converter_functions.yaml"
)

// ResolvePaths fills the conversion paths that default to files inside the
// input directory. A local output ending in a separator or naming an existing
// directory gets DefaultOutputName appended.
func ResolvePaths(c *dto.ConversionConfig) {
	if c.Config == "" {
		c.Config = filepath.Join(c.Input, DefaultConfigName)
	}
	if c.Functions == "" {
		c.Functions = filepath.Join(c.Input, DefaultFunctionsName)
	}

	switch {
	case c.Output == "":
		c.Output = filepath.Join(c.Input, DefaultOutputName)
	case strings.Contains(c.Output, "://"):
	case strings.HasSuffix(c.Output, "/") || strings.HasSuffix(c.Output, string(filepath.Separator)):
		c.Output = filepath.Join(c.Output, DefaultOutputName)
	default:
		if info, err := os.Stat(c.Output); err == nil && info.IsDir() {
			c.Output = filepath.Join(c.Output, DefaultOutputName)
		}
	}
}

// WriterOptions returns the MCAP writer options.
func WriterOptions(c *dto.ApplicationConfig) writer.Options {
	opts := writer.DefaultOptions()
	opts.Compression = strings.ToLower(c.Writer.Compression)
	opts.ChunkSize = c.Writer.ChunkSize
	opts.Chunked = c.Writer.Chunked
	opts.IncludeCRC = c.Writer.IncludeCRC
	return opts
}

// SchemaOptions returns the schema lookup options.
func SchemaOptions(c *dto.ApplicationConfig) schema.Options {
	return schema.Options{
		Distro:         c.Schemas.Distro,
		CacheDir:       c.Schemas.CacheDir,
		MsgDirs:        c.Schemas.MsgDirs,
		JSONSchemaDirs: c.Schemas.JSONSchemaDirs,
	}
}

// FetchTimeout returns the per-download timeout of the schema fetcher.
func FetchTimeout(c *dto.ApplicationConfig) time.Duration {
	return time.Duration(c.Schemas.FetchTimeoutSeconds) * time.Second
}

// StorageConfig returns the credentials and retry policy of remote outputs.
func StorageConfig(c *dto.ApplicationConfig) storage.Config {
	s := c.Storage
	return storage.Config{
		S3: storage.S3Config{
			Region:       s.S3.Region,
			Endpoint:     s.S3.Endpoint,
			UsePathStyle: s.S3.UsePathStyle,
			SSEEnabled:   s.S3.SSEEnabled,
			SSEKMSKeyID:  s.S3.SSEKMSKeyID,
		},
		GCS: storage.GCSConfig{
			ProjectID:            s.GCS.ProjectID,
			CredentialsFile:      s.GCS.CredentialsFile,
			CredentialsJSON:      s.GCS.CredentialsJSON,
			Endpoint:             s.GCS.Endpoint,
			UseDefaultCredential: s.GCS.UseDefaultCredential,
		},
		Azure: storage.AzureConfig{
			AccountName: s.Azure.AccountName,
			AccountKey:  s.Azure.AccountKey,
			Endpoint:    s.Azure.Endpoint,
		},
		Attempts:   s.UploadAttempts,
		RetryDelay: time.Duration(s.RetryDelayMS) * time.Millisecond,
	}
}

// LoggingConfig returns the logger settings.
func LoggingConfig(c *dto.ApplicationConfig) observability.LoggingConfig {
	return observability.LoggingConfig{
		Level:  c.Observability.Logging.Level,
		Format: c.Observability.Logging.Format,
		Output: c.Observability.Logging.Output,
	}
}
