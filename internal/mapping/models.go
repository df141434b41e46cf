// Package mapping defines the YAML mapping configuration and converter function files.
package mapping

import (
	"github.com/jittakal/tabular2mcap/pkg/message"
)

// Other mapping types.
const (
	TypeCompressedImage = "compressed_image"
	TypeCompressedVideo = "compressed_video"
)

// Supported frame formats per other mapping type.
var (
	ImageFormats = []string{"jpeg", "png", "webp", "avif"}
	VideoFormats = []string{"h264", "h265", "vp9", "av1"}
)

// FileMatching selects input files relative to the input directory.
type FileMatching struct {
	// FilePattern is a glob (with ** support) matched against relative paths.
	FilePattern string `yaml:"file_pattern"`
	// ExcludeFilePattern is a regular expression matched at the start of the file base name.
	ExcludeFilePattern string `yaml:"exclude_file_pattern,omitempty"`
}

// ConverterFunctionRef applies one converter function to a matched table.
// Each ref produces its own topic.
type ConverterFunctionRef struct {
	FunctionName   string   `yaml:"function_name"`
	SchemaName     string   `yaml:"schema_name,omitempty"`
	TopicSuffix    string   `yaml:"topic_suffix"`
	ExcludeColumns []string `yaml:"exclude_columns,omitempty"`
}

// TabularMapping maps matched tabular files through converter functions.
type TabularMapping struct {
	FileMatching       `yaml:",inline"`
	ConverterFunctions []ConverterFunctionRef `yaml:"converter_functions"`
}

// OtherMapping maps matched media frame files to CompressedImage or CompressedVideo topics.
type OtherMapping struct {
	FileMatching `yaml:",inline"`
	Type         string  `yaml:"type"`
	TopicSuffix  string  `yaml:"topic_suffix"`
	FrameID      string  `yaml:"frame_id"`
	Format       string  `yaml:"format,omitempty"`
	FPS          float64 `yaml:"fps,omitempty"`
}

// SchemaName returns the schema for this mapping under the given writer format.
func (m OtherMapping) SchemaName(format message.WriterFormat) string {
	name := "CompressedImage"
	if m.Type == TypeCompressedVideo {
		name = "CompressedVideo"
	}
	switch format {
	case message.FormatROS1:
		return "foxglove_msgs/" + name
	case message.FormatROS2:
		return "foxglove_msgs/msg/" + name
	default:
		return "foxglove." + name
	}
}

// Attachment embeds matched files as MCAP attachments.
type Attachment struct {
	FileMatching `yaml:",inline"`
	MimeType     string `yaml:"mime_type,omitempty"`
}

// Metadata turns matched key/value text files into MCAP metadata records.
type Metadata struct {
	FileMatching `yaml:",inline"`
	Separator    string `yaml:"separator"`
}

// Config is the mapping configuration file.
type Config struct {
	WriterFormat    message.WriterFormat `yaml:"writer_format"`
	TabularMappings []TabularMapping     `yaml:"tabular_mappings"`
	OtherMappings   []OtherMapping       `yaml:"other_mappings"`
	Attachments     []Attachment         `yaml:"attachments"`
	Metadata        []Metadata           `yaml:"metadata"`
}

// FunctionDefinition is one named converter function.
type FunctionDefinition struct {
	// SchemaName, when set, is checked against the schema of every mapping using the function.
	SchemaName string `yaml:"schema_name"`
	// Template renders a row into a JSON object.
	Template string `yaml:"template"`
	// LogTimeTemplate renders a row into the log time in nanoseconds.
	LogTimeTemplate string `yaml:"log_time_template"`
	// PublishTimeTemplate renders a row into the publish time in nanoseconds.
	PublishTimeTemplate string `yaml:"publish_time_template"`
}

// FunctionFile is the converter function definitions file.
type FunctionFile struct {
	Functions map[string]FunctionDefinition `yaml:"functions"`
}

func (c *Config) applyDefaults() {
	if c.WriterFormat == "" {
		c.WriterFormat = message.FormatJSON
	}
	for i := range c.OtherMappings {
		m := &c.OtherMappings[i]
		if m.Type == "" {
			m.Type = TypeCompressedImage
		}
		if m.Format == "" {
			if m.Type == TypeCompressedVideo {
				m.Format = "h264"
			} else {
				m.Format = "jpeg"
			}
		}
	}
}

func (f *FunctionFile) applyDefaults() {
	if f.Functions == nil {
		f.Functions = make(map[string]FunctionDefinition)
	}
	for name, def := range f.Functions {
		if def.Template == "" {
			def.Template = "{}"
			f.Functions[name] = def
		}
	}
}
