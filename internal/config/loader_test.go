package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/jittakal/tabular2mcap/internal/config/dto"
	apperrors "github.com/jittakal/tabular2mcap/internal/errors"
	"github.com/jittakal/tabular2mcap/internal/schema"
)

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to create settings file: %v", err)
	}
	return path
}

func TestNewLoader(t *testing.T) {
	loader := NewLoader()
	if loader == nil {
		t.Fatal("expected non-nil loader")
	}
	if loader.v == nil {
		t.Fatal("expected non-nil viper instance")
	}
}

func TestLoader_Defaults(t *testing.T) {
	config, err := NewLoader().Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if config.Writer.Compression != "zstd" {
		t.Errorf("Writer.Compression = %s, want zstd", config.Writer.Compression)
	}
	if config.Writer.ChunkSize != 4*1024*1024 {
		t.Errorf("Writer.ChunkSize = %d", config.Writer.ChunkSize)
	}
	if !config.Writer.Chunked || !config.Writer.IncludeCRC {
		t.Errorf("Writer = %+v, want chunked with CRCs", config.Writer)
	}
	if config.Conversion.TestModeRows != 5 {
		t.Errorf("Conversion.TestModeRows = %d, want 5", config.Conversion.TestModeRows)
	}
	if config.Schemas.Distro != schema.DefaultDistro {
		t.Errorf("Schemas.Distro = %s", config.Schemas.Distro)
	}
	if config.Schemas.CacheDir != schema.DefaultCacheDir() {
		t.Errorf("Schemas.CacheDir = %s", config.Schemas.CacheDir)
	}
	if config.Schemas.FetchAttempts != 3 || config.Schemas.FetchTimeoutSeconds != 120 {
		t.Errorf("Schemas = %+v", config.Schemas)
	}
	if config.Validation.Enabled || config.Observability.Metrics.Enabled {
		t.Error("validation and metrics should be disabled by default")
	}
}

func TestLoader_LoadWithValidConfig(t *testing.T) {
	path := writeSettings(t, `
conversion:
  topic_prefix: /robot/
  test_mode: true
  test_mode_rows: 10

writer:
  compression: lz4
  chunk_size: 1024

schemas:
  distro: humble
  msg_dirs:
    - /opt/msgs
    - /home/me/msgs

validation:
  enabled: true

storage:
  upload_attempts: 5
  s3:
    region: eu-west-1
    sse_enabled: true

observability:
  logging:
    level: debug
    format: json
`)

	config, err := NewLoader().Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if config.Conversion.TopicPrefix != "/robot/" || !config.Conversion.TestMode || config.Conversion.TestModeRows != 10 {
		t.Errorf("Conversion = %+v", config.Conversion)
	}
	if config.Writer.Compression != "lz4" || config.Writer.ChunkSize != 1024 {
		t.Errorf("Writer = %+v", config.Writer)
	}
	if config.Schemas.Distro != "humble" || len(config.Schemas.MsgDirs) != 2 {
		t.Errorf("Schemas = %+v", config.Schemas)
	}
	if !config.Validation.Enabled {
		t.Error("Validation.Enabled = false, want true")
	}
	if config.Storage.UploadAttempts != 5 || config.Storage.S3.Region != "eu-west-1" || !config.Storage.S3.SSEEnabled {
		t.Errorf("Storage = %+v", config.Storage)
	}
	if config.Observability.Logging.Level != "debug" || config.Observability.Logging.Format != "json" {
		t.Errorf("Logging = %+v", config.Observability.Logging)
	}
}

func TestLoader_LoadWithMissingFile(t *testing.T) {
	if _, err := NewLoader().Load("/nonexistent/settings.yaml"); err == nil {
		t.Error("Load() should fail for a missing settings file")
	}
}

func TestLoader_EnvOverride(t *testing.T) {
	t.Setenv("APP_WRITER_COMPRESSION", "none")
	t.Setenv("APP_CONVERSION_TOPIC_PREFIX", "/env/")

	path := writeSettings(t, "writer:\n  compression: lz4\n")
	config, err := NewLoader().Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if config.Writer.Compression != "none" {
		t.Errorf("Writer.Compression = %s, want none from environment", config.Writer.Compression)
	}
	if config.Conversion.TopicPrefix != "/env/" {
		t.Errorf("Conversion.TopicPrefix = %s, want /env/", config.Conversion.TopicPrefix)
	}
}

func TestLoader_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_AZURE_KEY", "c2VjcmV0")

	path := writeSettings(t, "storage:\n  azure:\n    account_name: acct\n    account_key: ${TEST_AZURE_KEY}\n")
	config, err := NewLoader().Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if config.Storage.Azure.AccountKey != "c2VjcmV0" {
		t.Errorf("AccountKey = %q, want expanded value", config.Storage.Azure.AccountKey)
	}
}

func TestLoader_FlagOverride(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("compression", "zstd", "")
	flags.Bool("validate", false, "")
	if err := flags.Parse([]string{"--compression=none", "--validate"}); err != nil {
		t.Fatal(err)
	}

	t.Setenv("APP_WRITER_COMPRESSION", "lz4")

	loader := NewLoader()
	if err := loader.BindFlag("writer.compression", flags.Lookup("compression")); err != nil {
		t.Fatal(err)
	}
	if err := loader.BindFlag("validation.enabled", flags.Lookup("validate")); err != nil {
		t.Fatal(err)
	}
	if err := loader.BindFlag("x", flags.Lookup("missing")); err == nil {
		t.Error("BindFlag() should fail for a nil flag")
	}

	config, err := loader.Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if config.Writer.Compression != "none" {
		t.Errorf("Writer.Compression = %s, want flag value none", config.Writer.Compression)
	}
	if !config.Validation.Enabled {
		t.Error("Validation.Enabled should come from the flag")
	}
}

func TestLoader_Validate(t *testing.T) {
	valid := func() *dto.ApplicationConfig {
		return &dto.ApplicationConfig{
			Conversion: dto.ConversionConfig{TestModeRows: 5},
			Writer:     dto.WriterConfig{Compression: "zstd", ChunkSize: 1024, Chunked: true},
			Schemas:    dto.SchemasConfig{Distro: "jazzy", FetchAttempts: 3, FetchTimeoutSeconds: 60},
			Storage:    dto.StorageConfig{UploadAttempts: 3},
			Observability: dto.ObservabilityConfig{
				Logging: dto.LoggingConfig{Level: "info", Format: "json"},
				Metrics: dto.MetricsConfig{Port: 9090},
				Health:  dto.HealthConfig{Port: 8080},
			},
		}
	}

	tests := []struct {
		name   string
		modify func(*dto.ApplicationConfig)
		field  string
	}{
		{name: "valid", modify: func(*dto.ApplicationConfig) {}},
		{name: "unchunked without size", modify: func(c *dto.ApplicationConfig) { c.Writer.Chunked = false; c.Writer.ChunkSize = 0 }},
		{name: "bad compression", modify: func(c *dto.ApplicationConfig) { c.Writer.Compression = "gzip" }, field: "writer.compression"},
		{name: "chunked without size", modify: func(c *dto.ApplicationConfig) { c.Writer.ChunkSize = 0 }, field: "writer.chunk_size"},
		{name: "no test rows", modify: func(c *dto.ApplicationConfig) { c.Conversion.TestModeRows = 0 }, field: "conversion.test_mode_rows"},
		{name: "no distro", modify: func(c *dto.ApplicationConfig) { c.Schemas.Distro = "" }, field: "schemas.distro"},
		{name: "no fetch attempts", modify: func(c *dto.ApplicationConfig) { c.Schemas.FetchAttempts = 0 }, field: "schemas.fetch_attempts"},
		{name: "no fetch timeout", modify: func(c *dto.ApplicationConfig) { c.Schemas.FetchTimeoutSeconds = 0 }, field: "schemas.fetch_timeout_seconds"},
		{name: "no upload attempts", modify: func(c *dto.ApplicationConfig) { c.Storage.UploadAttempts = 0 }, field: "storage.upload_attempts"},
		{name: "bad level", modify: func(c *dto.ApplicationConfig) { c.Observability.Logging.Level = "trace" }, field: "observability.logging.level"},
		{name: "bad format", modify: func(c *dto.ApplicationConfig) { c.Observability.Logging.Format = "xml" }, field: "observability.logging.format"},
		{name: "bad port ignored when disabled", modify: func(c *dto.ApplicationConfig) { c.Observability.Metrics.Port = 0 }},
		{
			name: "bad metrics port",
			modify: func(c *dto.ApplicationConfig) {
				c.Observability.Metrics.Enabled = true
				c.Observability.Metrics.Port = 70000
			},
			field: "observability.metrics.port",
		},
	}

	loader := NewLoader()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid()
			tt.modify(config)

			err := loader.Validate(config)
			if tt.field == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}

			var ve *apperrors.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Errorf("Field = %s, want %s", ve.Field, tt.field)
			}
		})
	}
}

func TestLoader_ValidateMessage(t *testing.T) {
	path := writeSettings(t, "writer:\n  compression: brotli\n")
	_, err := NewLoader().Load(path)
	if err == nil {
		t.Fatal("Load() should fail")
	}
	want := "writer.compression: must be one of zstd, lz4, none"
	if got := err.Error(); !strings.Contains(got, want) {
		t.Errorf("error = %q, want it to contain %q", got, want)
	}
}

func TestResolvePaths(t *testing.T) {
	input := t.TempDir()
	existing := filepath.Join(t.TempDir(), "outdir")
	if err := os.Mkdir(existing, 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		output string
		want   string
	}{
		{name: "default", output: "", want: filepath.Join(input, DefaultOutputName)},
		{name: "file", output: "/tmp/run.mcap", want: "/tmp/run.mcap"},
		{name: "trailing slash", output: "/tmp/runs/", want: filepath.Join("/tmp/runs", DefaultOutputName)},
		{name: "existing dir", output: existing, want: filepath.Join(existing, DefaultOutputName)},
		{name: "remote", output: "s3://bucket/prefix/", want: "s3://bucket/prefix/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := dto.ConversionConfig{Input: input, Output: tt.output}
			ResolvePaths(&c)
			if c.Output != tt.want {
				t.Errorf("Output = %s, want %s", c.Output, tt.want)
			}
			if c.Config != filepath.Join(input, DefaultConfigName) {
				t.Errorf("Config = %s", c.Config)
			}
			if c.Functions != filepath.Join(input, DefaultFunctionsName) {
				t.Errorf("Functions = %s", c.Functions)
			}
		})
	}

	explicit := dto.ConversionConfig{Input: input, Config: "my.yaml", Functions: "fns.yaml", Output: "o.mcap"}
	ResolvePaths(&explicit)
	if explicit.Config != "my.yaml" || explicit.Functions != "fns.yaml" {
		t.Errorf("explicit paths changed: %+v", explicit)
	}
}

func TestOptions(t *testing.T) {
	config, err := NewLoader().Load(writeSettings(t, `
writer:
  compression: LZ4
  chunked: false
schemas:
  fetch_timeout_seconds: 30
  jsonschema_dirs: [/schemas]
storage:
  retry_delay_ms: 250
  gcs:
    project_id: proj
  azure:
    account_name: acct
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	w := WriterOptions(config)
	if w.Compression != "lz4" || w.Chunked || !w.IncludeCRC || w.Library == "" {
		t.Errorf("WriterOptions() = %+v", w)
	}

	s := SchemaOptions(config)
	if s.Distro != schema.DefaultDistro || len(s.JSONSchemaDirs) != 1 {
		t.Errorf("SchemaOptions() = %+v", s)
	}
	if FetchTimeout(config) != 30*time.Second {
		t.Errorf("FetchTimeout() = %v", FetchTimeout(config))
	}

	st := StorageConfig(config)
	if st.Attempts != 3 || st.RetryDelay != 250*time.Millisecond {
		t.Errorf("StorageConfig() retry = %d %v", st.Attempts, st.RetryDelay)
	}
	if st.GCS.ProjectID != "proj" || !st.GCS.UseDefaultCredential || st.Azure.AccountName != "acct" || st.S3.Region != "us-east-1" {
		t.Errorf("StorageConfig() = %+v", st)
	}

	l := LoggingConfig(config)
	if l.Level != "info" || l.Format != "console" || l.Output != "stderr" {
		t.Errorf("LoggingConfig() = %+v", l)
	}
}
