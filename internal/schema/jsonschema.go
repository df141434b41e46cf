// Package schema resolves the JSON schemas and ROS 2 message definitions
// registered in MCAP output, and maintains the download cache they come from.
package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/jittakal/tabular2mcap/internal/errors"
)

const (
	// DefaultDistro is the ROS 2 distribution used for cached definitions.
	DefaultDistro = "jazzy"

	cacheDirName = "tabular2mcap_schemas"

	// FoxglovePrefix qualifies the JSON schema names this package serves.
	FoxglovePrefix = "foxglove."
)

// Options locates schema sources in addition to the embedded definitions.
type Options struct {
	// Distro selects the cache subdirectory, e.g. "jazzy".
	Distro string
	// CacheDir is the root of the download cache. Empty disables the cache.
	CacheDir string
	// MsgDirs are searched for <pkg>/msg/<Name>.msg before the cache.
	MsgDirs []string
	// JSONSchemaDirs are searched for <Name>.json before the cache.
	JSONSchemaDirs []string
}

func (o Options) distro() string {
	if o.Distro == "" {
		return DefaultDistro
	}
	return o.Distro
}

// DefaultCacheDir returns the per-user cache directory for downloaded
// definitions.
func DefaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, cacheDirName)
}

var schemaNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// JSONSchemas resolves foxglove JSON schemas by bare name.
type JSONSchemas struct {
	dirs   []string
	logger *zap.Logger
}

// NewJSONSchemas creates a resolver over the configured directories, the
// cached foxglove SDK and the embedded schemas, in that order.
func NewJSONSchemas(opts Options, logger *zap.Logger) *JSONSchemas {
	if logger == nil {
		logger = zap.NewNop()
	}
	dirs := append([]string(nil), opts.JSONSchemaDirs...)
	if opts.CacheDir != "" {
		dirs = append(dirs, filepath.Join(opts.CacheDir, opts.distro(), "foxglove-sdk", "schemas", "jsonschema"))
	}
	return &JSONSchemas{dirs: dirs, logger: logger}
}

// Lookup returns the schema document for name ("LocationFix" or
// "foxglove.LocationFix").
func (s *JSONSchemas) Lookup(name string) ([]byte, error) {
	bare := strings.TrimPrefix(name, FoxglovePrefix)
	if !schemaNamePattern.MatchString(bare) {
		return nil, &apperrors.SchemaError{
			Name:     name,
			Encoding: "jsonschema",
			Err:      fmt.Errorf("%w: invalid schema name", apperrors.ErrUnknownSchema),
		}
	}

	for _, dir := range s.dirs {
		path := filepath.Join(dir, bare+".json")
		data, err := os.ReadFile(path)
		if err == nil {
			s.logger.Debug("Loaded JSON schema", zap.String("schema", bare), zap.String("file", path))
			return data, nil
		}
		if !os.IsNotExist(err) {
			return nil, &apperrors.SchemaError{Name: name, Encoding: "jsonschema", Err: err}
		}
	}

	if data, ok := embeddedJSONSchema(bare); ok {
		return data, nil
	}
	return nil, &apperrors.SchemaError{Name: name, Encoding: "jsonschema", Err: apperrors.ErrUnknownSchema}
}
