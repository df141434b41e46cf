// Package tabular defines the in-memory table model shared by all tabular readers.
//
// A Table is column-typed: every Column carries the Kind inferred (CSV, JSON) or
// declared (Parquet, Avro) by its reader, and row values use a small set of Go
// types so downstream converters can switch on them without reflection.
package tabular

import (
	"context"
	"math"
)

// Kind identifies the logical type of a column.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindUint
	KindFloat
	KindBool
	KindTime
	KindList
	KindObject
	KindBytes
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	case KindList:
		return "list"
	case KindObject:
		return "object"
	case KindBytes:
		return "bytes"
	default:
		return "null"
	}
}

// Column describes one table column.
type Column struct {
	Name string
	Kind Kind
	// Bits is the width of integer and float columns (8, 16, 32 or 64).
	Bits int
	// Elem is the element kind of list columns.
	Elem Kind
}

// Table holds decoded rows.
//
// Row values are one of: nil, string, int64, uint64, float64, bool, time.Time,
// []any, map[string]any or []byte.
type Table struct {
	Columns []Column
	Rows    [][]any
}

// Reader reads a whole tabular file into memory.
type Reader interface {
	// Read decodes the file at path.
	Read(ctx context.Context, path string) (*Table, error)

	// Format returns the reader format name (e.g. "csv", "parquet").
	Format() string
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Head returns a table sharing the first n rows.
func (t *Table) Head(n int) *Table {
	if n < 0 || n >= len(t.Rows) {
		return t
	}
	return &Table{Columns: t.Columns, Rows: t.Rows[:n]}
}

// Row returns row i keyed by column name. NaN floats are returned as nil.
func (t *Table) Row(i int) map[string]any {
	row := make(map[string]any, len(t.Columns))
	for j, c := range t.Columns {
		var v any
		if j < len(t.Rows[i]) {
			v = t.Rows[i][j]
		}
		if f, ok := v.(float64); ok && math.IsNaN(f) {
			v = nil
		}
		row[c.Name] = v
	}
	return row
}

// RenameColumns applies fn to every column name.
func (t *Table) RenameColumns(fn func(string) string) {
	for i := range t.Columns {
		t.Columns[i].Name = fn(t.Columns[i].Name)
	}
}
