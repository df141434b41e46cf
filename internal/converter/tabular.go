package converter

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/jittakal/tabular2mcap/internal/errors"
	"github.com/jittakal/tabular2mcap/internal/mapping"
	"github.com/jittakal/tabular2mcap/internal/schema"
	itabular "github.com/jittakal/tabular2mcap/internal/tabular"
	"github.com/jittakal/tabular2mcap/internal/template"
	"github.com/jittakal/tabular2mcap/internal/writer"
	"github.com/jittakal/tabular2mcap/pkg/message"
	"github.com/jittakal/tabular2mcap/pkg/tabular"
)

// convertTable reads one tabular file and writes a topic per converter function.
func (c *Converter) convertTable(ctx context.Context, r *run, rel string, m mapping.TabularMapping) error {
	table, err := itabular.Open(ctx, filepath.Join(r.inputDir, filepath.FromSlash(rel)), c.logger)
	if err != nil {
		return fmt.Errorf("read %s: %w", rel, err)
	}
	c.metrics.AddRowsRead(strings.TrimPrefix(strings.ToLower(filepath.Ext(rel)), "."), table.Len())

	if c.opts.TestMode {
		total := table.Len()
		table = table.Head(c.opts.TestModeRows)
		c.logger.Debug("Converting file in test mode",
			zap.String("file", rel),
			zap.Int("rows", table.Len()),
			zap.Int("total_rows", total))
	} else {
		c.logger.Debug("Converting file", zap.String("file", rel), zap.Int("rows", table.Len()))
	}

	for _, ref := range m.ConverterFunctions {
		fn, err := c.function(ref.FunctionName)
		if err != nil {
			return err
		}
		topic := c.topicName(rel, ref.TopicSuffix)

		s, rowFn, err := c.tableSchema(r, table, topic, ref, fn)
		if err != nil {
			return err
		}

		n, err := r.conv.WriteMessages(topic, s, tableRows(ctx, table, fn, rowFn))
		if err != nil {
			return conversionError(rel, topic, err)
		}
		r.summary.AddMessages(topic, n)
		c.logger.Debug("Wrote topic",
			zap.String("file", rel),
			zap.String("topic", topic),
			zap.String("schema", s.Name),
			zap.Int("messages", n))
	}
	return nil
}

// tableSchema returns the schema for ref and the row function producing its
// messages. Without a schema name a generic schema is derived from each table;
// tables with the same columns share one schema record.
func (c *Converter) tableSchema(r *run, table *tabular.Table, topic string, ref mapping.ConverterFunctionRef, fn *template.Function) (*writer.Schema, template.RowFunc, error) {
	if ref.SchemaName != "" {
		s, err := c.namedSchema(r, ref.SchemaName)
		return s, fn.Convert, err
	}

	s, keys, err := r.conv.RegisterGenericSchema(table, c.genericSchemaName(topic), ref.ExcludeColumns)
	if err != nil {
		return nil, nil, err
	}
	return s, template.Generic(keys, fn.Convert), nil
}

func (c *Converter) genericSchemaName(topic string) string {
	if c.cfg.WriterFormat == message.FormatROS2 {
		return schema.SanitizeSchemaName(topic)
	}
	return "table." + strings.ReplaceAll(topic, "/", ".")
}

// tableRows converts the rows of table lazily, stopping at the first error.
func tableRows(ctx context.Context, table *tabular.Table, fn *template.Function, rowFn template.RowFunc) iter.Seq2[message.ConvertedRow, error] {
	return func(yield func(message.ConvertedRow, error) bool) {
		for i := range table.Len() {
			if err := ctx.Err(); err != nil {
				yield(message.ConvertedRow{}, err)
				return
			}
			row, err := fn.Row(i, table.Row(i), rowFn)
			if err != nil {
				yield(message.ConvertedRow{}, &apperrors.ConversionError{Row: i, Err: err})
				return
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// conversionError fills in the file and topic of a row error.
func conversionError(file, topic string, err error) error {
	var ce *apperrors.ConversionError
	if errors.As(err, &ce) {
		if ce.File == "" {
			ce.File = file
		}
		ce.Topic = topic
		return err
	}
	return fmt.Errorf("write %s to %s: %w", file, topic, err)
}
