package tabular

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/linkedin/goavro/v2"

	"github.com/jittakal/tabular2mcap/pkg/tabular"
)

// Ensure implementation satisfies interface at compile time.
var _ tabular.Reader = (*AvroReader)(nil)

// AvroReader reads Avro object container files whose schema is a record.
// Record fields become columns in declaration order.
type AvroReader struct{}

// NewAvroReader creates an Avro reader.
func NewAvroReader() *AvroReader {
	return &AvroReader{}
}

// Format returns "avro".
func (r *AvroReader) Format() string {
	return "avro"
}

type avroField struct {
	Name string          `json:"name"`
	Type json.RawMessage `json:"type"`
}

type avroRecordSchema struct {
	Type   string      `json:"type"`
	Fields []avroField `json:"fields"`
}

// Read decodes every datum in the container.
func (r *AvroReader) Read(ctx context.Context, path string) (*tabular.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	ocf, err := goavro.NewOCFReader(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("failed to open avro container %s: %w", path, err)
	}

	var schema avroRecordSchema
	if err := json.Unmarshal([]byte(ocf.Codec().Schema()), &schema); err != nil {
		return nil, fmt.Errorf("failed to parse avro schema of %s: %w", path, err)
	}
	if schema.Type != "record" {
		return nil, fmt.Errorf("avro file %s: top-level schema must be a record, got %q", path, schema.Type)
	}

	table := &tabular.Table{Columns: make([]tabular.Column, len(schema.Fields))}
	for i, field := range schema.Fields {
		col := avroColumn(field.Type)
		col.Name = field.Name
		table.Columns[i] = col
	}

	for ocf.Scan() {
		if len(table.Rows)%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		datum, err := ocf.Read()
		if err != nil {
			return nil, fmt.Errorf("failed to read avro datum from %s: %w", path, err)
		}
		record, ok := datum.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("avro file %s: datum is %T, not a record", path, datum)
		}
		row := make([]any, len(schema.Fields))
		for i, field := range schema.Fields {
			row[i] = normalizeAvro(record[field.Name])
		}
		table.Rows = append(table.Rows, row)
	}
	if err := ocf.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return table, nil
}

// avroColumn maps an Avro field type onto a column kind. Nullable unions take
// the kind of their single non-null branch.
func avroColumn(raw json.RawMessage) tabular.Column {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return avroPrimitive(name, "")
	}

	var union []json.RawMessage
	if err := json.Unmarshal(raw, &union); err == nil {
		var branches []json.RawMessage
		for _, b := range union {
			if strings.TrimSpace(string(b)) != `"null"` {
				branches = append(branches, b)
			}
		}
		if len(branches) == 1 {
			return avroColumn(branches[0])
		}
		return tabular.Column{Kind: tabular.KindObject}
	}

	var complex struct {
		Type        string          `json:"type"`
		LogicalType string          `json:"logicalType"`
		Items       json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(raw, &complex); err != nil {
		return tabular.Column{Kind: tabular.KindObject}
	}
	switch complex.Type {
	case "array":
		return tabular.Column{Kind: tabular.KindList, Elem: avroColumn(complex.Items).Kind}
	case "record", "map":
		return tabular.Column{Kind: tabular.KindObject}
	case "enum":
		return tabular.Column{Kind: tabular.KindString}
	case "fixed":
		return tabular.Column{Kind: tabular.KindBytes}
	}
	return avroPrimitive(complex.Type, complex.LogicalType)
}

func avroPrimitive(name, logical string) tabular.Column {
	switch logical {
	case "timestamp-millis", "timestamp-micros":
		return tabular.Column{Kind: tabular.KindTime}
	}
	switch name {
	case "boolean":
		return tabular.Column{Kind: tabular.KindBool}
	case "int":
		return tabular.Column{Kind: tabular.KindInt, Bits: 32}
	case "long":
		return tabular.Column{Kind: tabular.KindInt, Bits: 64}
	case "float":
		return tabular.Column{Kind: tabular.KindFloat, Bits: 32}
	case "double":
		return tabular.Column{Kind: tabular.KindFloat, Bits: 64}
	case "string":
		return tabular.Column{Kind: tabular.KindString}
	case "bytes":
		return tabular.Column{Kind: tabular.KindBytes}
	}
	return tabular.Column{Kind: tabular.KindObject}
}

// normalizeAvro unwraps union values and widens numbers to the table value types.
func normalizeAvro(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case int32:
		return int64(x)
	case int:
		return int64(x)
	case float32:
		return float64(x)
	case time.Time:
		return x.UTC()
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = normalizeAvro(x[i])
		}
		return out
	case map[string]any:
		// goavro decodes a non-null union value as {"typename": value}.
		if len(x) == 1 {
			for k, inner := range x {
				if isAvroUnionBranch(k) {
					return normalizeAvro(inner)
				}
			}
		}
		out := make(map[string]any, len(x))
		for k, inner := range x {
			out[k] = normalizeAvro(inner)
		}
		return out
	}
	return v
}

func isAvroUnionBranch(name string) bool {
	switch name {
	case "boolean", "int", "long", "float", "double", "string", "bytes", "array", "map",
		"long.timestamp-millis", "long.timestamp-micros", "int.date", "bytes.decimal":
		return true
	}
	return false
}
