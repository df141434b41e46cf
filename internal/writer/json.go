package writer

import (
	"encoding/json"
	"fmt"
	"iter"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/jittakal/tabular2mcap/internal/errors"
	"github.com/jittakal/tabular2mcap/internal/observability"
	"github.com/jittakal/tabular2mcap/internal/schema"
	"github.com/jittakal/tabular2mcap/internal/template"
	"github.com/jittakal/tabular2mcap/pkg/message"
	"github.com/jittakal/tabular2mcap/pkg/tabular"
)

// JSON schema and message encodings.
const (
	SchemaEncodingJSONSchema = "jsonschema"
	MessageEncodingJSON      = "json"
)

// JSONConverter writes jsonschema schemas and json messages.
type JSONConverter struct {
	w         *Writer
	schemas   *schema.JSONSchemas
	validator MessageValidator
	metrics   *observability.Metrics
	logger    *zap.Logger
	channels  *channels
}

// NewJSONConverter creates a JSON converter on w.
func NewJSONConverter(w *Writer, deps Dependencies) *JSONConverter {
	deps.defaults()
	return &JSONConverter{
		w:         w,
		schemas:   deps.JSONSchemas,
		validator: deps.Validator,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		channels:  newChannels(w, MessageEncodingJSON),
	}
}

// Writer returns the underlying MCAP writer.
func (c *JSONConverter) Writer() *Writer {
	return c.w
}

func timestampProperty() map[string]any {
	return map[string]any{
		"type":  "object",
		"title": "time",
		"properties": map[string]any{
			"sec":  map[string]any{"type": "integer", "minimum": 0},
			"nsec": map[string]any{"type": "integer", "minimum": 0, "maximum": 999999999},
		},
		"description": "Timestamp of the message",
	}
}

// RegisterGenericSchema derives an object schema from the table columns. The
// timestamp property is always present and filled by the converter function.
func (c *JSONConverter) RegisterGenericSchema(table *tabular.Table, schemaName string, excludeColumns []string) (*Schema, []template.KeyPair, error) {
	skip := excluded(excludeColumns)
	props := map[string]any{"timestamp": timestampProperty()}
	var keys []template.KeyPair

	for j, col := range table.Columns {
		if skip[col.Name] || col.Name == "timestamp" {
			continue
		}
		prop := jsonProperty(col)
		if hasNulls(table, j) {
			prop["type"] = []any{prop["type"], "null"}
		}
		props[col.Name] = prop
		keys = append(keys, template.KeyPair{MessageKey: col.Name, RowKey: col.Name})
	}

	data, err := json.Marshal(map[string]any{"type": "object", "properties": props})
	if err != nil {
		return nil, nil, &errors.SchemaError{Name: schemaName, Encoding: SchemaEncodingJSONSchema, Err: err}
	}
	s, err := c.register(schemaName, data)
	if err != nil {
		return nil, nil, err
	}
	return s, keys, nil
}

// RegisterSchema registers a foxglove schema such as "foxglove.LocationFix".
func (c *JSONConverter) RegisterSchema(schemaName string) (*Schema, error) {
	if !strings.HasPrefix(schemaName, schema.FoxglovePrefix) {
		return nil, &errors.SchemaError{
			Name:     schemaName,
			Encoding: SchemaEncodingJSONSchema,
			Err:      fmt.Errorf("%w: Unknown schema: %s. Must be prefixed with 'foxglove.' or none", errors.ErrUnknownSchema, schemaName),
		}
	}
	data, err := c.schemas.Lookup(schemaName)
	if err != nil {
		return nil, err
	}
	return c.register(schemaName, data)
}

func (c *JSONConverter) register(name string, data []byte) (*Schema, error) {
	s, err := c.w.AddSchema(name, SchemaEncodingJSONSchema, data)
	if err != nil {
		return nil, err
	}
	if c.validator != nil {
		if err := c.validator.Register(name, data); err != nil {
			return nil, err
		}
	}
	c.metrics.IncSchemasRegistered(SchemaEncodingJSONSchema)
	c.logger.Debug("Registered schema", zap.String("schema", name), zap.Uint16("id", s.ID))
	return s, nil
}

// WriteMessages encodes each row as JSON on topic.
func (c *JSONConverter) WriteMessages(topic string, s *Schema, rows iter.Seq2[message.ConvertedRow, error]) (int, error) {
	channelID, err := c.channels.get(topic, s.ID)
	if err != nil {
		return 0, err
	}

	n := 0
	defer func() { c.metrics.AddMessagesWritten(topic, MessageEncodingJSON, n) }()

	for row, err := range rows {
		if err != nil {
			return n, err
		}
		data, err := json.Marshal(jsonSafe(row.Data))
		if err != nil {
			return n, &errors.ConversionError{Topic: topic, Row: int(row.Sequence), Err: err}
		}
		if c.validator != nil {
			if err := c.validator.ValidateJSON(s.Name, data); err != nil {
				return n, &errors.ConversionError{Topic: topic, Row: int(row.Sequence), Err: err}
			}
		}
		if err := c.w.AddMessage(channelID, row.Sequence, row.LogTime, row.PublishTime, data); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func jsonProperty(col tabular.Column) map[string]any {
	switch col.Kind {
	case tabular.KindList:
		items := map[string]any{}
		if t := jsonType(col.Elem); t != "" {
			items["type"] = t
		}
		return map[string]any{"type": "array", "items": items}
	case tabular.KindTime:
		return map[string]any{"type": "string", "format": "date-time"}
	case tabular.KindBytes:
		return map[string]any{"type": "string", "contentEncoding": "base64"}
	}
	return map[string]any{"type": jsonType(col.Kind)}
}

// jsonType returns the JSON schema type of k, or "" for list elements of
// unknown kind.
func jsonType(k tabular.Kind) string {
	switch k {
	case tabular.KindInt, tabular.KindUint:
		return "integer"
	case tabular.KindFloat:
		return "number"
	case tabular.KindBool:
		return "boolean"
	case tabular.KindList:
		return "array"
	case tabular.KindObject:
		return "object"
	case tabular.KindNull:
		return ""
	}
	return "string"
}

func hasNulls(t *tabular.Table, j int) bool {
	for _, row := range t.Rows {
		if j >= len(row) || row[j] == nil {
			return true
		}
		if f, ok := row[j].(float64); ok && math.IsNaN(f) {
			return true
		}
	}
	return false
}

// jsonSafe replaces NaN and infinite floats with nil.
func jsonSafe(v any) any {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return nil
		}
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = jsonSafe(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = jsonSafe(e)
		}
		return out
	}
	return v
}
