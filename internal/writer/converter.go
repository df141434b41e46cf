package writer

import (
	"fmt"
	"io"
	"iter"

	"go.uber.org/zap"

	"github.com/jittakal/tabular2mcap/internal/errors"
	"github.com/jittakal/tabular2mcap/internal/observability"
	"github.com/jittakal/tabular2mcap/internal/schema"
	"github.com/jittakal/tabular2mcap/internal/template"
	"github.com/jittakal/tabular2mcap/pkg/message"
	"github.com/jittakal/tabular2mcap/pkg/tabular"
)

// Converter registers schemas and writes messages in one writer format.
type Converter interface {
	// Writer returns the underlying MCAP writer.
	Writer() *Writer

	// RegisterGenericSchema derives a schema from the table columns, leaving
	// out excludeColumns, and returns the message keys to copy from each row.
	RegisterGenericSchema(table *tabular.Table, schemaName string, excludeColumns []string) (*Schema, []template.KeyPair, error)

	// RegisterSchema registers a well-known schema by name.
	RegisterSchema(schemaName string) (*Schema, error)

	// WriteMessages writes every row to topic and returns the number written.
	WriteMessages(topic string, schema *Schema, rows iter.Seq2[message.ConvertedRow, error]) (int, error)
}

// MessageValidator checks encoded JSON messages against registered schemas.
type MessageValidator interface {
	Register(name string, data []byte) error
	ValidateJSON(name string, data []byte) error
}

// Dependencies are the collaborators shared by the converters. Nil fields
// get defaults; a nil Validator disables validation.
type Dependencies struct {
	JSONSchemas *schema.JSONSchemas
	Ros2Msgs    *schema.Ros2Msgs
	Validator   MessageValidator
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

func (d *Dependencies) defaults() {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.JSONSchemas == nil {
		d.JSONSchemas = schema.NewJSONSchemas(schema.Options{}, d.Logger)
	}
	if d.Ros2Msgs == nil {
		d.Ros2Msgs = schema.NewRos2Msgs(schema.Options{}, d.Logger)
	}
}

// NewConverter starts an MCAP file on out and returns the converter for
// format. Only json and ros2 are supported.
func NewConverter(format message.WriterFormat, out io.Writer, opts Options, deps Dependencies) (Converter, error) {
	deps.defaults()

	switch format {
	case message.FormatJSON:
		opts.Profile = ""
		w, err := New(out, opts, deps.Logger)
		if err != nil {
			return nil, err
		}
		return NewJSONConverter(w, deps), nil
	case message.FormatROS2:
		opts.Profile = ProfileROS2
		w, err := New(out, opts, deps.Logger)
		if err != nil {
			return nil, err
		}
		return NewROS2Converter(w, deps), nil
	}
	return nil, fmt.Errorf("%w: Writer format %s is not supported", errors.ErrUnsupportedWriterFormat, format)
}

type channelKey struct {
	topic    string
	schemaID uint16
}

// channels reuses one channel per topic and schema.
type channels struct {
	w        *Writer
	encoding string
	ids      map[channelKey]uint16
}

func newChannels(w *Writer, encoding string) *channels {
	return &channels{w: w, encoding: encoding, ids: make(map[channelKey]uint16)}
}

func (c *channels) get(topic string, schemaID uint16) (uint16, error) {
	key := channelKey{topic: topic, schemaID: schemaID}
	if id, ok := c.ids[key]; ok {
		return id, nil
	}
	id, err := c.w.AddChannel(topic, c.encoding, schemaID, nil)
	if err != nil {
		return 0, err
	}
	c.ids[key] = id
	return id, nil
}

// excluded returns the set of names in exclude.
func excluded(exclude []string) map[string]bool {
	set := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		set[name] = true
	}
	return set
}
