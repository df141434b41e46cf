package mapping

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"

	apperrors "github.com/jittakal/tabular2mcap/internal/errors"
)

// LoadConfig reads and validates a mapping configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates a mapping configuration document.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := decodeStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode mapping config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("mapping config validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadFunctions reads and validates a converter function definitions file.
func LoadFunctions(path string) (*FunctionFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read converter functions: %w", err)
	}
	return ParseFunctions(data)
}

// ParseFunctions decodes a converter function definitions document.
func ParseFunctions(data []byte) (*FunctionFile, error) {
	var file FunctionFile
	if err := decodeStrict(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode converter functions: %w", err)
	}
	file.applyDefaults()
	return &file, nil
}

// decodeStrict decodes a single YAML document rejecting unknown keys.
// An empty document leaves out untouched.
func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks required fields and enumerations. All problems are returned joined.
func (c *Config) Validate() error {
	var errs []error
	add := func(field, reason string) {
		errs = append(errs, &apperrors.ValidationError{Field: field, Reason: reason})
	}

	if !c.WriterFormat.Known() {
		add("writer_format", fmt.Sprintf("must be one of ros1, ros2, json, protobuf, got %q", c.WriterFormat))
	}

	checkMatching := func(prefix string, m FileMatching) {
		if m.FilePattern == "" {
			add(prefix+".file_pattern", "is required")
		}
		if m.ExcludeFilePattern != "" {
			if _, err := regexp.Compile(m.ExcludeFilePattern); err != nil {
				add(prefix+".exclude_file_pattern", err.Error())
			}
		}
	}

	for i, m := range c.TabularMappings {
		prefix := fmt.Sprintf("tabular_mappings[%d]", i)
		checkMatching(prefix, m.FileMatching)
		for j, fn := range m.ConverterFunctions {
			fp := fmt.Sprintf("%s.converter_functions[%d]", prefix, j)
			if fn.FunctionName == "" {
				add(fp+".function_name", "is required")
			}
			if fn.TopicSuffix == "" {
				add(fp+".topic_suffix", "is required")
			}
		}
	}

	for i, m := range c.OtherMappings {
		prefix := fmt.Sprintf("other_mappings[%d]", i)
		checkMatching(prefix, m.FileMatching)
		if m.TopicSuffix == "" {
			add(prefix+".topic_suffix", "is required")
		}
		if m.FrameID == "" {
			add(prefix+".frame_id", "is required")
		}
		if m.FPS < 0 {
			add(prefix+".fps", "must not be negative")
		}
		switch m.Type {
		case TypeCompressedImage:
			if !slices.Contains(ImageFormats, m.Format) {
				add(prefix+".format", fmt.Sprintf("must be one of %v, got %q", ImageFormats, m.Format))
			}
		case TypeCompressedVideo:
			if !slices.Contains(VideoFormats, m.Format) {
				add(prefix+".format", fmt.Sprintf("must be one of %v, got %q", VideoFormats, m.Format))
			}
		default:
			add(prefix+".type", fmt.Sprintf("must be %s or %s, got %q", TypeCompressedImage, TypeCompressedVideo, m.Type))
		}
	}

	for i, a := range c.Attachments {
		checkMatching(fmt.Sprintf("attachments[%d]", i), a.FileMatching)
	}

	for i, m := range c.Metadata {
		prefix := fmt.Sprintf("metadata[%d]", i)
		checkMatching(prefix, m.FileMatching)
		if m.Separator == "" {
			add(prefix+".separator", "is required")
		}
	}

	return errors.Join(errs...)
}

// CheckFunctionSchemas reports mappings whose schema_name disagrees with the
// schema_name declared by the converter function they use. Functions without a
// declared schema are not checked.
func CheckFunctionSchemas(cfg *Config, funcs *FunctionFile) error {
	var errs []error
	for i, m := range cfg.TabularMappings {
		for j, ref := range m.ConverterFunctions {
			def, ok := funcs.Functions[ref.FunctionName]
			if !ok || def.SchemaName == "" {
				continue
			}
			if def.SchemaName != ref.SchemaName {
				errs = append(errs, &apperrors.ValidationError{
					Field: fmt.Sprintf("tabular_mappings[%d].converter_functions[%d].schema_name", i, j),
					Reason: fmt.Sprintf("function %s produces %q but mapping declares %q",
						ref.FunctionName, def.SchemaName, ref.SchemaName),
				})
			}
		}
	}
	return errors.Join(errs...)
}
