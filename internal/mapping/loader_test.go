package mapping

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/jittakal/tabular2mcap/internal/errors"
	"github.com/jittakal/tabular2mcap/pkg/message"
)

const sampleConfig = `
writer_format: json
tabular_mappings:
  - file_pattern: "**/*.csv"
    exclude_file_pattern: "ignore_"
    converter_functions:
      - function_name: location_fix
        schema_name: foxglove.LocationFix
        topic_suffix: LocationFix
      - function_name: row
        topic_suffix: Raw
        exclude_columns: [debug]
other_mappings:
  - type: compressed_image
    file_pattern: "camera/*.jpg"
    topic_suffix: CompressedImage
    frame_id: camera
    fps: 10
attachments:
  - file_pattern: "*.pdf"
    mime_type: application/pdf
metadata:
  - file_pattern: "*.txt"
    separator: "="
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, message.FormatJSON, cfg.WriterFormat)
	require.Len(t, cfg.TabularMappings, 1)
	tm := cfg.TabularMappings[0]
	assert.Equal(t, "**/*.csv", tm.FilePattern)
	assert.Equal(t, "ignore_", tm.ExcludeFilePattern)
	require.Len(t, tm.ConverterFunctions, 2)
	assert.Equal(t, "foxglove.LocationFix", tm.ConverterFunctions[0].SchemaName)
	assert.Equal(t, []string{"debug"}, tm.ConverterFunctions[1].ExcludeColumns)

	require.Len(t, cfg.OtherMappings, 1)
	om := cfg.OtherMappings[0]
	assert.Equal(t, "jpeg", om.Format, "image format defaults to jpeg")
	assert.Equal(t, 10.0, om.FPS)

	assert.Equal(t, "application/pdf", cfg.Attachments[0].MimeType)
	assert.Equal(t, "=", cfg.Metadata[0].Separator)
}

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(""))
	require.NoError(t, err)
	assert.Equal(t, message.FormatJSON, cfg.WriterFormat)
	assert.Empty(t, cfg.TabularMappings)
	assert.Empty(t, cfg.OtherMappings)
	assert.Empty(t, cfg.Attachments)
	assert.Empty(t, cfg.Metadata)
}

func TestParseConfig_VideoDefaultFormat(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
other_mappings:
  - type: compressed_video
    file_pattern: "video/*.h264"
    topic_suffix: CompressedVideo
    frame_id: cam
`))
	require.NoError(t, err)
	assert.Equal(t, "h264", cfg.OtherMappings[0].Format)
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		yaml      string
		wantField string
	}{
		{
			name:      "unknown writer format",
			yaml:      "writer_format: msgpack\n",
			wantField: "writer_format",
		},
		{
			name: "missing file pattern",
			yaml: `
tabular_mappings:
  - converter_functions: []
`,
			wantField: "tabular_mappings[0].file_pattern",
		},
		{
			name: "missing topic suffix",
			yaml: `
tabular_mappings:
  - file_pattern: "*.csv"
    converter_functions:
      - function_name: f
`,
			wantField: "tabular_mappings[0].converter_functions[0].topic_suffix",
		},
		{
			name: "bad exclude regex",
			yaml: `
attachments:
  - file_pattern: "*"
    exclude_file_pattern: "("
`,
			wantField: "attachments[0].exclude_file_pattern",
		},
		{
			name: "missing separator",
			yaml: `
metadata:
  - file_pattern: "*.txt"
`,
			wantField: "metadata[0].separator",
		},
		{
			name: "bad image format",
			yaml: `
other_mappings:
  - file_pattern: "*.bmp"
    topic_suffix: Img
    frame_id: cam
    format: bmp
`,
			wantField: "other_mappings[0].format",
		},
		{
			name: "unknown other type",
			yaml: `
other_mappings:
  - type: point_cloud
    file_pattern: "*.pcd"
    topic_suffix: Points
    frame_id: lidar
`,
			wantField: "other_mappings[0].type",
		},
		{
			name: "missing frame id",
			yaml: `
other_mappings:
  - file_pattern: "*.jpg"
    topic_suffix: Img
`,
			wantField: "other_mappings[0].frame_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			require.Error(t, err)

			var verr *apperrors.ValidationError
			require.True(t, errors.As(err, &verr), "expected a ValidationError, got %v", err)
			assert.Contains(t, err.Error(), tt.wantField)
		})
	}
}

func TestParseConfig_UnknownKey(t *testing.T) {
	_, err := ParseConfig([]byte(`
tabular_mappings:
  - file_pattern: "*.csv"
    converter_function: []
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "converter_function")
}

func TestOtherMapping_SchemaName(t *testing.T) {
	image := OtherMapping{Type: TypeCompressedImage}
	video := OtherMapping{Type: TypeCompressedVideo}

	assert.Equal(t, "foxglove.CompressedImage", image.SchemaName(message.FormatJSON))
	assert.Equal(t, "foxglove_msgs/msg/CompressedImage", image.SchemaName(message.FormatROS2))
	assert.Equal(t, "foxglove_msgs/CompressedImage", image.SchemaName(message.FormatROS1))
	assert.Equal(t, "foxglove.CompressedVideo", video.SchemaName(message.FormatJSON))
	assert.Equal(t, "foxglove_msgs/msg/CompressedVideo", video.SchemaName(message.FormatROS2))
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

const sampleFunctions = `
functions:
  location_fix:
    schema_name: foxglove.LocationFix
    template: |
      {
        "timestamp": {"sec": {{ sec .time }}, "nsec": {{ nsec .time }}},
        "latitude": {{ .lat }},
        "longitude": {{ .lon }}
      }
  row: {}
  timed:
    log_time_template: "{{ .t_ns }}"
`

func TestParseFunctions(t *testing.T) {
	file, err := ParseFunctions([]byte(sampleFunctions))
	require.NoError(t, err)
	require.Len(t, file.Functions, 3)

	assert.Equal(t, "foxglove.LocationFix", file.Functions["location_fix"].SchemaName)
	assert.Contains(t, file.Functions["location_fix"].Template, `"latitude": {{ .lat }}`)
	assert.Equal(t, "{}", file.Functions["row"].Template, "template defaults to an empty object")
	assert.Equal(t, "{{ .t_ns }}", file.Functions["timed"].LogTimeTemplate)
}

func TestParseFunctions_Empty(t *testing.T) {
	file, err := ParseFunctions(nil)
	require.NoError(t, err)
	assert.NotNil(t, file.Functions)
	assert.Empty(t, file.Functions)
}

func TestExportFunctions_RoundTrip(t *testing.T) {
	file, err := ParseFunctions([]byte(sampleFunctions))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "converter_functions.yaml")
	require.NoError(t, ExportFunctions(file, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)

	assert.Contains(t, text, "template: |", "multi-line templates use literal style")
	assert.Contains(t, text, "schema_name: null")
	assert.Less(t, strings.Index(text, "location_fix"), strings.Index(text, "row:"), "functions are sorted")

	again, err := ParseFunctions(data)
	require.NoError(t, err)
	assert.Equal(t, file, again)
}

func TestEncodeFunctions_SingleLine(t *testing.T) {
	var buf bytes.Buffer
	err := EncodeFunctions(&FunctionFile{Functions: map[string]FunctionDefinition{
		"f": {Template: "{}"},
	}}, &buf)
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "template: |")

	again, err := ParseFunctions(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "{}", again.Functions["f"].Template)
}

func TestCheckFunctionSchemas(t *testing.T) {
	funcs := &FunctionFile{Functions: map[string]FunctionDefinition{
		"fix":     {SchemaName: "foxglove.LocationFix", Template: "{}"},
		"untyped": {Template: "{}"},
	}}

	ok := &Config{TabularMappings: []TabularMapping{{
		FileMatching: FileMatching{FilePattern: "*.csv"},
		ConverterFunctions: []ConverterFunctionRef{
			{FunctionName: "fix", SchemaName: "foxglove.LocationFix", TopicSuffix: "Fix"},
			{FunctionName: "untyped", TopicSuffix: "Raw"},
		},
	}}}
	assert.NoError(t, CheckFunctionSchemas(ok, funcs))

	bad := &Config{TabularMappings: []TabularMapping{{
		FileMatching: FileMatching{FilePattern: "*.csv"},
		ConverterFunctions: []ConverterFunctionRef{
			{FunctionName: "fix", SchemaName: "foxglove.PoseInFrame", TopicSuffix: "Fix"},
		},
	}}}
	err := CheckFunctionSchemas(bad, funcs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tabular_mappings[0].converter_functions[0].schema_name")
}
