package writer

import (
	"fmt"
	"iter"
	"strings"

	"go.uber.org/zap"

	"github.com/jittakal/tabular2mcap/internal/errors"
	"github.com/jittakal/tabular2mcap/internal/observability"
	"github.com/jittakal/tabular2mcap/internal/ros2msg"
	"github.com/jittakal/tabular2mcap/internal/schema"
	"github.com/jittakal/tabular2mcap/internal/template"
	"github.com/jittakal/tabular2mcap/pkg/message"
	"github.com/jittakal/tabular2mcap/pkg/tabular"
)

// ROS2 profile, schema and message encodings.
const (
	ProfileROS2           = "ros2"
	SchemaEncodingROS2Msg = "ros2msg"
	MessageEncodingCDR    = "cdr"

	timestampField = "builtin_interfaces/Time timestamp"
)

// ROS2Converter writes ros2msg schemas and CDR messages.
type ROS2Converter struct {
	w        *Writer
	msgs     *schema.Ros2Msgs
	metrics  *observability.Metrics
	logger   *zap.Logger
	channels *channels
	encoders map[uint16]*ros2msg.Encoder
}

// NewROS2Converter creates a ROS 2 converter on w.
func NewROS2Converter(w *Writer, deps Dependencies) *ROS2Converter {
	deps.defaults()
	return &ROS2Converter{
		w:        w,
		msgs:     deps.Ros2Msgs,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		channels: newChannels(w, MessageEncodingCDR),
		encoders: make(map[uint16]*ros2msg.Encoder),
	}
}

// Writer returns the underlying MCAP writer.
func (c *ROS2Converter) Writer() *Writer {
	return c.w
}

// RegisterGenericSchema builds a message definition with a timestamp field
// followed by one field per column. Field names are sanitized column names;
// the returned key pairs map them back to the columns.
func (c *ROS2Converter) RegisterGenericSchema(table *tabular.Table, schemaName string, excludeColumns []string) (*Schema, []template.KeyPair, error) {
	skip := excluded(excludeColumns)
	lines := []string{timestampField}
	seen := map[string]bool{"timestamp": true}
	var keys []template.KeyPair

	for _, col := range table.Columns {
		if skip[col.Name] {
			continue
		}
		field := schema.SanitizeFieldName(col.Name)
		if seen[field] {
			c.logger.Warn("Skipping column with duplicate field name",
				zap.String("schema", schemaName),
				zap.String("column", col.Name),
				zap.String("field", field))
			continue
		}
		seen[field] = true
		lines = append(lines, ros2Type(col)+" "+field)
		keys = append(keys, template.KeyPair{MessageKey: field, RowKey: col.Name})
	}

	text, err := c.msgs.Definition(schemaName, strings.Join(lines, "\n")+"\n")
	if err != nil {
		return nil, nil, err
	}
	s, err := c.register(schemaName, text)
	if err != nil {
		return nil, nil, err
	}
	return s, keys, nil
}

// RegisterSchema registers a named message such as "sensor_msgs/msg/NavSatFix"
// with its dependencies appended.
func (c *ROS2Converter) RegisterSchema(schemaName string) (*Schema, error) {
	text, err := c.msgs.Definition(schemaName, "")
	if err != nil {
		return nil, err
	}
	return c.register(schemaName, text)
}

func (c *ROS2Converter) register(name, text string) (*Schema, error) {
	set, err := ros2msg.ParseSchema(name, text)
	if err != nil {
		return nil, &errors.SchemaError{Name: name, Encoding: SchemaEncodingROS2Msg, Err: err}
	}
	enc, err := ros2msg.NewEncoder(set)
	if err != nil {
		return nil, &errors.SchemaError{Name: name, Encoding: SchemaEncodingROS2Msg, Err: err}
	}
	s, err := c.w.AddSchema(name, SchemaEncodingROS2Msg, []byte(text))
	if err != nil {
		return nil, err
	}
	c.encoders[s.ID] = enc
	c.metrics.IncSchemasRegistered(SchemaEncodingROS2Msg)
	c.logger.Debug("Registered schema", zap.String("schema", name), zap.Uint16("id", s.ID))
	return s, nil
}

// WriteMessages CDR-encodes each row on topic.
func (c *ROS2Converter) WriteMessages(topic string, s *Schema, rows iter.Seq2[message.ConvertedRow, error]) (int, error) {
	enc, ok := c.encoders[s.ID]
	if !ok {
		return 0, &errors.SchemaError{
			Name:     s.Name,
			Encoding: SchemaEncodingROS2Msg,
			Err:      fmt.Errorf("%w: schema %d was not registered by this converter", errors.ErrUnknownSchema, s.ID),
		}
	}
	channelID, err := c.channels.get(topic, s.ID)
	if err != nil {
		return 0, err
	}

	n := 0
	defer func() { c.metrics.AddMessagesWritten(topic, MessageEncodingCDR, n) }()

	for row, err := range rows {
		if err != nil {
			return n, err
		}
		data, err := enc.Encode(row.Data)
		if err != nil {
			return n, &errors.ConversionError{Topic: topic, Row: int(row.Sequence), Err: err}
		}
		if err := c.w.AddMessage(channelID, row.Sequence, row.LogTime, row.PublishTime, data); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// ros2Type maps a column to its ROS 2 field type.
func ros2Type(col tabular.Column) string {
	switch col.Kind {
	case tabular.KindBool:
		return "bool"
	case tabular.KindInt:
		return fmt.Sprintf("int%d", intBits(col.Bits))
	case tabular.KindUint:
		return fmt.Sprintf("uint%d", intBits(col.Bits))
	case tabular.KindFloat:
		if col.Bits == 32 {
			return "float32"
		}
		return "float64"
	case tabular.KindList:
		switch col.Elem {
		case tabular.KindList, tabular.KindObject, tabular.KindBytes:
			return "string[]"
		}
		return ros2Type(tabular.Column{Kind: col.Elem}) + "[]"
	case tabular.KindBytes:
		return "uint8[]"
	}
	return "string"
}

func intBits(bits int) int {
	switch bits {
	case 8, 16, 32, 64:
		return bits
	}
	return 64
}
