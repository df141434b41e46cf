// Package config loads the tool settings from flags, environment and file.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jittakal/tabular2mcap/internal/config/dto"
	apperrors "github.com/jittakal/tabular2mcap/internal/errors"
	"github.com/jittakal/tabular2mcap/internal/schema"
	"github.com/jittakal/tabular2mcap/internal/writer"
)

// EnvPrefix is the prefix of environment overrides, e.g. APP_WRITER_COMPRESSION.
const EnvPrefix = "APP"

// Loader handles configuration loading and validation
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// BindFlag binds a command line flag to a settings key. A flag set on the
// command line overrides the environment and the settings file.
func (l *Loader) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("no flag for %s", key)
	}
	return l.v.BindPFlag(key, flag)
}

// Load loads configuration from file and environment variables. An empty
// path loads defaults and environment only.
func (l *Loader) Load(path string) (*dto.ApplicationConfig, error) {
	l.setDefaults()

	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read settings file: %w", err)
		}
	}

	// Only values containing ${...} are expanded
	for _, key := range l.v.AllKeys() {
		value, ok := l.v.Get(key).(string)
		if ok && strings.Contains(value, "${") {
			l.v.Set(key, os.ExpandEnv(value))
		}
	}

	var config dto.ApplicationConfig
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func (l *Loader) setDefaults() {
	// Conversion defaults
	l.v.SetDefault("conversion.topic_prefix", "")
	l.v.SetDefault("conversion.test_mode", false)
	l.v.SetDefault("conversion.test_mode_rows", 5)

	// Writer defaults
	defaults := writer.DefaultOptions()
	l.v.SetDefault("writer.compression", defaults.Compression)
	l.v.SetDefault("writer.chunk_size", defaults.ChunkSize)
	l.v.SetDefault("writer.chunked", defaults.Chunked)
	l.v.SetDefault("writer.include_crc", defaults.IncludeCRC)

	// Schema defaults
	l.v.SetDefault("schemas.distro", schema.DefaultDistro)
	l.v.SetDefault("schemas.cache_dir", schema.DefaultCacheDir())
	l.v.SetDefault("schemas.fetch", false)
	l.v.SetDefault("schemas.msg_dirs", []string{})
	l.v.SetDefault("schemas.jsonschema_dirs", []string{})
	l.v.SetDefault("schemas.fetch_attempts", 3)
	l.v.SetDefault("schemas.fetch_timeout_seconds", 120)

	l.v.SetDefault("validation.enabled", false)

	// Storage defaults
	l.v.SetDefault("storage.upload_attempts", 3)
	l.v.SetDefault("storage.retry_delay_ms", 1000)
	l.v.SetDefault("storage.s3.region", "us-east-1")
	l.v.SetDefault("storage.s3.use_path_style", false)
	l.v.SetDefault("storage.s3.sse_enabled", false)
	l.v.SetDefault("storage.gcs.use_default_credential", true)

	// Observability defaults
	l.v.SetDefault("observability.logging.level", "info")
	l.v.SetDefault("observability.logging.format", "console")
	l.v.SetDefault("observability.logging.output", "stderr")
	l.v.SetDefault("observability.metrics.enabled", false)
	l.v.SetDefault("observability.metrics.port", 9090)
	l.v.SetDefault("observability.metrics.path", "/metrics")
	l.v.SetDefault("observability.metrics.textfile", "")
	l.v.SetDefault("observability.health.port", 8080)
}

// Validate validates the configuration
func (l *Loader) Validate(config *dto.ApplicationConfig) error {
	// Writer validation
	switch strings.ToLower(config.Writer.Compression) {
	case writer.CompressionZSTD, writer.CompressionLZ4, writer.CompressionNone:
	default:
		return invalid("writer.compression", "must be one of zstd, lz4, none")
	}
	if config.Writer.Chunked && config.Writer.ChunkSize <= 0 {
		return invalid("writer.chunk_size", "must be positive when writer.chunked is set")
	}

	if config.Conversion.TestModeRows < 1 {
		return invalid("conversion.test_mode_rows", "must be at least 1")
	}

	// Schema validation
	if config.Schemas.Distro == "" {
		return invalid("schemas.distro", "is required")
	}
	if config.Schemas.FetchAttempts < 1 {
		return invalid("schemas.fetch_attempts", "must be at least 1")
	}
	if config.Schemas.FetchTimeoutSeconds < 1 {
		return invalid("schemas.fetch_timeout_seconds", "must be at least 1")
	}

	if config.Storage.UploadAttempts < 1 {
		return invalid("storage.upload_attempts", "must be at least 1")
	}

	// Logging validation
	switch strings.ToLower(config.Observability.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return invalid("observability.logging.level", "must be one of debug, info, warn, error")
	}
	switch strings.ToLower(config.Observability.Logging.Format) {
	case "json", "console", "text":
	default:
		return invalid("observability.logging.format", "must be one of json, console")
	}

	// Port validation
	if config.Observability.Metrics.Enabled {
		if config.Observability.Metrics.Port < 1 || config.Observability.Metrics.Port > 65535 {
			return invalid("observability.metrics.port", fmt.Sprintf("invalid port %d", config.Observability.Metrics.Port))
		}
		if config.Observability.Health.Port < 0 || config.Observability.Health.Port > 65535 {
			return invalid("observability.health.port", fmt.Sprintf("invalid port %d", config.Observability.Health.Port))
		}
	}

	return nil
}

func invalid(field, reason string) error {
	return &apperrors.ValidationError{Field: field, Reason: reason}
}
