package dto

import (
	"fmt"
	"os"
)

// ApplicationConfig is the root configuration structure
type ApplicationConfig struct {
	Conversion    ConversionConfig    `mapstructure:"conversion"`
	Writer        WriterConfig        `mapstructure:"writer"`
	Schemas       SchemasConfig       `mapstructure:"schemas"`
	Validation    ValidationConfig    `mapstructure:"validation"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// ConversionConfig contains the inputs and outputs of a run
type ConversionConfig struct {
	Input        string `mapstructure:"input"`
	Output       string `mapstructure:"output"`
	Config       string `mapstructure:"config"`
	Functions    string `mapstructure:"functions"`
	TopicPrefix  string `mapstructure:"topic_prefix"`
	TestMode     bool   `mapstructure:"test_mode"`
	TestModeRows int    `mapstructure:"test_mode_rows"`
}

// WriterConfig contains MCAP writer settings
type WriterConfig struct {
	Compression string `mapstructure:"compression"`
	ChunkSize   int64  `mapstructure:"chunk_size"`
	Chunked     bool   `mapstructure:"chunked"`
	IncludeCRC  bool   `mapstructure:"include_crc"`
}

// SchemasConfig contains schema lookup and download settings
type SchemasConfig struct {
	Distro              string   `mapstructure:"distro"`
	CacheDir            string   `mapstructure:"cache_dir"`
	Fetch               bool     `mapstructure:"fetch"`
	MsgDirs             []string `mapstructure:"msg_dirs"`
	JSONSchemaDirs      []string `mapstructure:"jsonschema_dirs"`
	FetchAttempts       uint     `mapstructure:"fetch_attempts"`
	FetchTimeoutSeconds int      `mapstructure:"fetch_timeout_seconds"`
}

// ValidationConfig contains message validation settings
type ValidationConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// StorageConfig contains remote output settings
type StorageConfig struct {
	UploadAttempts uint        `mapstructure:"upload_attempts"`
	RetryDelayMS   int         `mapstructure:"retry_delay_ms"`
	S3             S3Config    `mapstructure:"s3"`
	Azure          AzureConfig `mapstructure:"azure"`
	GCS            GCSConfig   `mapstructure:"gcs"`
}

// S3Config contains AWS S3 configuration
type S3Config struct {
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
	SSEEnabled   bool   `mapstructure:"sse_enabled"`
	SSEKMSKeyID  string `mapstructure:"sse_kms_key_id"`
}

// AzureConfig contains Azure Blob Storage configuration
type AzureConfig struct {
	AccountName string `mapstructure:"account_name"`
	AccountKey  string `mapstructure:"account_key"`
	Endpoint    string `mapstructure:"endpoint"`
}

// GCSConfig contains Google Cloud Storage configuration
type GCSConfig struct {
	ProjectID            string `mapstructure:"project_id"`
	CredentialsFile      string `mapstructure:"credentials_file"`
	CredentialsJSON      string `mapstructure:"credentials_json"`
	Endpoint             string `mapstructure:"endpoint"`
	UseDefaultCredential bool   `mapstructure:"use_default_credential"`
}

// ObservabilityConfig contains observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig contains metrics settings
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Port     int    `mapstructure:"port"`
	Path     string `mapstructure:"path"`
	Textfile string `mapstructure:"textfile"`
}

// HealthConfig contains health check settings
type HealthConfig struct {
	Port int `mapstructure:"port"`
}

// Validate checks the input directory and the mapping config of a run.
func (c *ConversionConfig) Validate() error {
	if c.Input == "" {
		return fmt.Errorf("conversion.input is required")
	}
	info, err := os.Stat(c.Input)
	if err != nil {
		return fmt.Errorf("input directory %s: %w", c.Input, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("input %s is not a directory", c.Input)
	}
	if c.Config == "" {
		return fmt.Errorf("conversion.config is required")
	}
	if _, err := os.Stat(c.Config); err != nil {
		return fmt.Errorf("config file %s: %w", c.Config, err)
	}
	if c.Output == "" {
		return fmt.Errorf("conversion.output is required")
	}
	return nil
}
