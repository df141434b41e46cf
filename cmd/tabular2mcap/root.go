package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jittakal/tabular2mcap/internal/config"
	"github.com/jittakal/tabular2mcap/internal/config/dto"
	"github.com/jittakal/tabular2mcap/internal/converter"
	"github.com/jittakal/tabular2mcap/internal/mapping"
	"github.com/jittakal/tabular2mcap/internal/observability"
	"github.com/jittakal/tabular2mcap/internal/schema"
	"github.com/jittakal/tabular2mcap/internal/server"
	"github.com/jittakal/tabular2mcap/internal/storage"
)

// flagKeys binds command line flags to settings keys.
var flagKeys = map[string]string{
	"input":         "conversion.input",
	"output":        "conversion.output",
	"config":        "conversion.config",
	"functions":     "conversion.functions",
	"topic-prefix":  "conversion.topic_prefix",
	"test-mode":     "conversion.test_mode",
	"compression":   "writer.compression",
	"fetch-schemas": "schemas.fetch",
	"validate":      "validation.enabled",
	"log-level":     "observability.logging.level",
	"log-format":    "observability.logging.format",
	"distro":        "schemas.distro",
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tabular2mcap",
		Short: "Convert tabular data and media files to MCAP",
		Long: `Converts CSV, TSV, Parquet, Avro and JSON tables, image frames, attachments
and metadata files found in an input directory into a single MCAP file.

Which files are converted, and how, is described by a mapping config
(default <input>/config.yaml) and a converter functions file
(default <input>/converter_functions.yaml).`,
		Example: `  # Convert a recording directory next to its inputs
  tabular2mcap -i ./run42

  # Write ROS 2 output with a topic prefix to S3
  tabular2mcap -i ./run42 -c ros2.yaml -t /vehicle/ -o s3://logs/run42.mcap`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         runConvert,
	}

	flags := cmd.Flags()
	flags.StringP("input", "i", "", "input directory (required)")
	flags.StringP("output", "o", "", "output file, directory or s3://, gs://, azblob:// URL (default <input>/output.mcap)")
	flags.StringP("config", "c", "", "mapping config file (default <input>/config.yaml)")
	flags.StringP("functions", "f", "", "converter functions file (default <input>/converter_functions.yaml)")
	flags.StringP("topic-prefix", "t", "", "prefix for every topic name")
	flags.Bool("test-mode", false, "convert only the first rows of every table")
	flags.String("compression", "zstd", "chunk compression: zstd, lz4 or none")
	flags.Bool("fetch-schemas", false, "download ROS 2 message definitions before converting")
	flags.Bool("validate", false, "validate JSON messages against their schema")

	persistent := cmd.PersistentFlags()
	persistent.String("settings", "", "settings file")
	persistent.String("log-level", "info", "log level: debug, info, warn, error")
	persistent.String("log-format", "console", "log format: console or json")

	cmd.AddCommand(newSchemasCmd(), newFunctionsCmd(), newVersionCmd())
	return cmd
}

// loadSettings loads the settings file given by --settings with the flags of
// cmd bound on top, and builds the logger.
func loadSettings(cmd *cobra.Command) (*dto.ApplicationConfig, *zap.Logger, error) {
	loader := config.NewLoader()
	for name, key := range flagKeys {
		if flag := cmd.Flags().Lookup(name); flag != nil {
			if err := loader.BindFlag(key, flag); err != nil {
				return nil, nil, err
			}
		}
	}

	settings, _ := cmd.Flags().GetString("settings")
	cfg, err := loader.Load(settings)
	if err != nil {
		return nil, nil, err
	}

	logger, err := observability.NewLogger(config.LoggingConfig(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, nil
}

func runConvert(cmd *cobra.Command, _ []string) error {
	start := time.Now()

	cfg, logger, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	config.ResolvePaths(&cfg.Conversion)
	if err := cfg.Conversion.Validate(); err != nil {
		return err
	}

	mappingCfg, err := mapping.LoadConfig(cfg.Conversion.Config)
	if err != nil {
		return err
	}
	funcs, err := loadFunctions(cfg.Conversion.Functions, logger)
	if err != nil {
		return err
	}
	if funcs != nil {
		if err := mapping.CheckFunctionSchemas(mappingCfg, funcs); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Schemas.Fetch {
		if err := newFetcher(cfg, logger).FetchAll(ctx, cfg.Schemas.Distro); err != nil {
			logger.Warn("Failed to fetch some message definitions", zap.Error(err))
		}
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	status := server.NewRunStatus(cfg.Conversion.Output)

	if cfg.Observability.Metrics.Enabled {
		httpServer := server.NewServer(cfg.Observability.Health.Port, cfg.Observability.Metrics.Port, status, registry, logger)
		if err := httpServer.Start(); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(shutdownCtx)
		}()
	}

	err = convert(ctx, cfg, mappingCfg, funcs, status, metrics, logger)
	if err != nil {
		status.Fail(err)
	}

	if path := cfg.Observability.Metrics.Textfile; path != "" {
		if werr := observability.WriteTextfile(registry, path); werr != nil {
			logger.Warn("Failed to write metrics textfile", zap.String("path", path), zap.Error(werr))
		}
	}

	logger.Info("Total execution time", zap.Duration("duration", time.Since(start)))
	return err
}

func convert(
	ctx context.Context,
	cfg *dto.ApplicationConfig,
	mappingCfg *mapping.Config,
	funcs *mapping.FunctionFile,
	status *server.RunStatus,
	metrics *observability.Metrics,
	logger *zap.Logger,
) error {
	conv, err := converter.New(mappingCfg, funcs, converter.Options{
		TopicPrefix:  cfg.Conversion.TopicPrefix,
		TestMode:     cfg.Conversion.TestMode,
		TestModeRows: cfg.Conversion.TestModeRows,
		Validate:     cfg.Validation.Enabled,
		Writer:       config.WriterOptions(cfg),
		Schemas:      config.SchemaOptions(cfg),
		Progress:     func(_, file string) { status.SetFile(file) },
		Metrics:      metrics,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	dest, err := storage.ParseDestination(cfg.Conversion.Output)
	if err != nil {
		return err
	}
	out, err := storage.Create(ctx, dest, config.StorageConfig(cfg), logger, metrics)
	if err != nil {
		return err
	}

	status.SetPhase(server.PhaseConverting)
	summary, err := conv.Convert(ctx, cfg.Conversion.Input, out)
	if err != nil {
		out.Abort()
		return err
	}

	status.SetPhase(server.PhaseUploading)
	if _, err := out.Commit(ctx); err != nil {
		return err
	}
	summary.OutputPath = dest.String()
	status.SetPhase(server.PhaseDone)

	logger.Info("Wrote MCAP file", zap.String("output", summary.OutputPath), zap.String("summary", summary.String()))
	return nil
}

// loadFunctions loads the converter functions file. A missing file is not an
// error; the run continues without functions.
func loadFunctions(path string, logger *zap.Logger) (*mapping.FunctionFile, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Warn("Converter functions file not found, continuing without functions", zap.String("path", path))
		return nil, nil
	}
	return mapping.LoadFunctions(path)
}

func newFetcher(cfg *dto.ApplicationConfig, logger *zap.Logger) *schema.Fetcher {
	return schema.NewFetcher(cfg.Schemas.CacheDir, logger,
		schema.WithAttempts(cfg.Schemas.FetchAttempts),
		schema.WithTimeout(config.FetchTimeout(cfg)),
	)
}
