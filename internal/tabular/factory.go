package tabular

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/jittakal/tabular2mcap/internal/errors"
	"github.com/jittakal/tabular2mcap/pkg/tabular"
)

// unsupportedExtensions are recognized tabular formats without a reader.
var unsupportedExtensions = map[string]string{
	".feather": "feather",
	".orc":     "orc",
	".xlsx":    "excel",
	".xls":     "excel",
	".xml":     "xml",
	".pkl":     "pickle",
	".pickle":  "pickle",
}

// Factory creates readers based on file extension.
type Factory struct {
	logger *zap.Logger
}

// NewFactory creates a new reader factory.
func NewFactory(logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{logger: logger}
}

// ReaderFor returns the reader for path.
func (f *Factory) ReaderFor(path string) (tabular.Reader, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".csv", ".txt":
		return NewCSVReader(), nil
	case ".tsv":
		return NewTSVReader(), nil
	case ".parquet":
		return NewParquetReader(), nil
	case ".avro":
		return NewAvroReader(), nil
	case ".json":
		return NewJSONReader(), nil
	case ".jsonl", ".ndjson":
		return NewJSONLinesReader(), nil
	}
	if format, ok := unsupportedExtensions[ext]; ok {
		return nil, fmt.Errorf("%w: %s files (%s) are not supported, use one of %s",
			apperrors.ErrUnsupportedFormat, format, path, strings.Join(SupportedExtensions(), " "))
	}
	f.logger.Warn("Unknown file extension, reading as CSV",
		zap.String("path", path),
		zap.String("extension", ext),
	)
	return NewCSVReader(), nil
}

// Read loads path with the matching reader and sanitizes its column names.
func (f *Factory) Read(ctx context.Context, path string) (*tabular.Table, error) {
	r, err := f.ReaderFor(path)
	if err != nil {
		return nil, err
	}
	table, err := r.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	SanitizeColumnNames(table)
	f.logger.Debug("Read tabular file",
		zap.String("path", path),
		zap.String("format", r.Format()),
		zap.Int("rows", table.Len()),
		zap.Strings("columns", table.ColumnNames()),
	)
	return table, nil
}

// Open reads path with a default factory.
func Open(ctx context.Context, path string, logger *zap.Logger) (*tabular.Table, error) {
	return NewFactory(logger).Read(ctx, path)
}

// SupportedExtensions returns the extensions with a dedicated reader.
func SupportedExtensions() []string {
	return []string{".csv", ".txt", ".tsv", ".parquet", ".avro", ".json", ".jsonl", ".ndjson"}
}

var (
	columnSeparators = regexp.MustCompile(`[ .\-]`)
	columnInvalid    = regexp.MustCompile(`[^A-Za-z0-9_]`)
)

// SanitizeColumnName replaces spaces, dots and hyphens with underscores and
// drops every other character outside [A-Za-z0-9_].
func SanitizeColumnName(name string) string {
	return columnInvalid.ReplaceAllString(columnSeparators.ReplaceAllString(name, "_"), "")
}

// SanitizeColumnNames renames every column of t with SanitizeColumnName.
func SanitizeColumnNames(t *tabular.Table) {
	t.RenameColumns(SanitizeColumnName)
}
