package tabular

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/format"

	"github.com/jittakal/tabular2mcap/pkg/tabular"
)

// Ensure implementation satisfies interface at compile time.
var _ tabular.Reader = (*ParquetReader)(nil)

// julianUnixEpoch is the Julian day number of 1970-01-01.
const julianUnixEpoch = 2440588

// ParquetReader reads Apache Parquet files.
//
// Flat leaf columns map one to one onto table columns. Leaves nested in a
// non-repeated group are flattened with a "." separator. Repeated leaves become
// list columns named after their top-level field.
type ParquetReader struct {
	batchSize int
}

// NewParquetReader creates a Parquet reader.
func NewParquetReader() *ParquetReader {
	return &ParquetReader{batchSize: 512}
}

// Format returns "parquet".
func (r *ParquetReader) Format() string {
	return "parquet"
}

type parquetLeaf struct {
	column   int
	kind     parquet.Kind
	unsigned bool
	text     bool
	timeUnit time.Duration
}

// Read decodes every row group of the file.
func (r *ParquetReader) Read(ctx context.Context, path string) (*tabular.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file %s: %w", path, err)
	}

	schema := pf.Schema()
	table := &tabular.Table{}
	byName := make(map[string]int)
	var leaves []parquetLeaf

	for _, p := range schema.Columns() {
		leaf, ok := schema.Lookup(p...)
		if !ok {
			return nil, fmt.Errorf("parquet column %s not found in schema", strings.Join(p, "."))
		}
		repeated := leaf.MaxRepetitionLevel > 0
		name := strings.Join(p, ".")
		if repeated {
			name = p[0]
		}

		info := parquetLeafInfo(leaf.Node.Type())
		kind, bits := info.tabularKind(leaf.Node.Type())

		idx, exists := byName[name]
		if !exists {
			idx = len(table.Columns)
			byName[name] = idx
			col := tabular.Column{Name: name, Kind: kind, Bits: bits}
			if repeated {
				col = tabular.Column{Name: name, Kind: tabular.KindList, Elem: kind}
			}
			table.Columns = append(table.Columns, col)
		}
		info.column = idx
		leaves = append(leaves, info)
	}

	buf := make([]parquet.Row, r.batchSize)
	for _, rg := range pf.RowGroups() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := r.readRowGroup(rg, buf, leaves, table); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}
	return table, nil
}

func (r *ParquetReader) readRowGroup(rg parquet.RowGroup, buf []parquet.Row, leaves []parquetLeaf, table *tabular.Table) error {
	rows := rg.Rows()
	defer rows.Close()

	for {
		n, err := rows.ReadRows(buf)
		for _, row := range buf[:n] {
			out := make([]any, len(table.Columns))
			for _, v := range row {
				leaf := leaves[v.Column()]
				col := table.Columns[leaf.column]
				if col.Kind == tabular.KindList {
					list, _ := out[leaf.column].([]any)
					if list == nil {
						list = []any{}
					}
					if !v.IsNull() {
						list = append(list, leaf.value(v))
					}
					out[leaf.column] = list
					continue
				}
				if !v.IsNull() {
					out[leaf.column] = leaf.value(v)
				}
			}
			table.Rows = append(table.Rows, out)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func parquetLeafInfo(t parquet.Type) parquetLeaf {
	info := parquetLeaf{kind: t.Kind()}
	lt := t.LogicalType()
	if lt == nil {
		return info
	}
	if lt.Integer != nil {
		info.unsigned = !lt.Integer.IsSigned
	}
	if lt.Timestamp != nil {
		info.timeUnit = timestampUnit(lt.Timestamp.Unit)
	}
	info.text = lt.UTF8 != nil || lt.Enum != nil || lt.Json != nil
	return info
}

func timestampUnit(u format.TimeUnit) time.Duration {
	switch {
	case u.Millis != nil:
		return time.Millisecond
	case u.Micros != nil:
		return time.Microsecond
	default:
		return time.Nanosecond
	}
}

func (l parquetLeaf) tabularKind(t parquet.Type) (tabular.Kind, int) {
	if l.timeUnit != 0 || l.kind == parquet.Int96 {
		return tabular.KindTime, 0
	}
	switch l.kind {
	case parquet.Boolean:
		return tabular.KindBool, 0
	case parquet.Int32:
		if l.unsigned {
			return tabular.KindUint, integerBits(t, 32)
		}
		return tabular.KindInt, integerBits(t, 32)
	case parquet.Int64:
		if l.unsigned {
			return tabular.KindUint, 64
		}
		return tabular.KindInt, 64
	case parquet.Float:
		return tabular.KindFloat, 32
	case parquet.Double:
		return tabular.KindFloat, 64
	case parquet.ByteArray:
		if l.text {
			return tabular.KindString, 0
		}
		return tabular.KindBytes, 0
	default:
		return tabular.KindBytes, 0
	}
}

func integerBits(t parquet.Type, fallback int) int {
	if lt := t.LogicalType(); lt != nil && lt.Integer != nil {
		return int(lt.Integer.BitWidth)
	}
	return fallback
}

func (l parquetLeaf) value(v parquet.Value) any {
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		if l.unsigned {
			return uint64(uint32(v.Int32()))
		}
		if l.timeUnit != 0 {
			return time.Unix(0, int64(v.Int32())*int64(l.timeUnit)).UTC()
		}
		return int64(v.Int32())
	case parquet.Int64:
		if l.timeUnit != 0 {
			return time.Unix(0, v.Int64()*int64(l.timeUnit)).UTC()
		}
		if l.unsigned {
			return uint64(v.Int64())
		}
		return v.Int64()
	case parquet.Int96:
		i96 := v.Int96()
		nanosOfDay := int64(uint64(i96[1])<<32 | uint64(i96[0]))
		days := int64(i96[2]) - julianUnixEpoch
		return time.Unix(days*86400, nanosOfDay).UTC()
	case parquet.Float:
		return float64(v.Float())
	case parquet.Double:
		return v.Double()
	case parquet.ByteArray:
		if l.text {
			return string(v.ByteArray())
		}
		return append([]byte(nil), v.ByteArray()...)
	case parquet.FixedLenByteArray:
		return append([]byte(nil), v.ByteArray()...)
	}
	return nil
}
