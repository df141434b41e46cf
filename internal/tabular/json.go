package tabular

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/jittakal/tabular2mcap/pkg/tabular"
)

// Ensure implementations satisfy interface at compile time.
var (
	_ tabular.Reader = (*JSONReader)(nil)
	_ tabular.Reader = (*JSONLinesReader)(nil)
)

// JSONReader reads a JSON document holding either an array of records or an
// object of columns ({"col": [v0, v1]} or {"col": {"0": v0, "1": v1}}).
type JSONReader struct{}

// NewJSONReader creates a JSON reader.
func NewJSONReader() *JSONReader {
	return &JSONReader{}
}

// Format returns "json".
func (r *JSONReader) Format() string {
	return "json"
}

// Read decodes the document.
func (r *JSONReader) Read(ctx context.Context, path string) (*tabular.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return &tabular.Table{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if data[0] == '[' {
		var records []map[string]any
		if err := dec.Decode(&records); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		return recordsTable(records, recordKeyOrder(data)), nil
	}

	var columns map[string]any
	if err := dec.Decode(&columns); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return columnsTable(columns, recordKeyOrder(data))
}

// JSONLinesReader reads newline delimited JSON objects. Blank lines are skipped.
type JSONLinesReader struct{}

// NewJSONLinesReader creates a JSON lines reader.
func NewJSONLinesReader() *JSONLinesReader {
	return &JSONLinesReader{}
}

// Format returns "jsonl".
func (r *JSONLinesReader) Format() string {
	return "jsonl"
}

// Read decodes every line.
func (r *JSONLinesReader) Read(ctx context.Context, path string) (*tabular.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var (
		records []map[string]any
		order   []string
		seen    = make(map[string]bool)
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		if line%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		dec := json.NewDecoder(bytes.NewReader(text))
		dec.UseNumber()
		var record map[string]any
		if err := dec.Decode(&record); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		for _, k := range objectKeys(text) {
			if !seen[k] {
				seen[k] = true
				order = append(order, k)
			}
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return recordsTable(records, order), nil
}

// recordsTable builds a table from row objects. Keys absent from a record are null.
func recordsTable(records []map[string]any, order []string) *tabular.Table {
	table := &tabular.Table{Rows: make([][]any, len(records))}
	for i := range table.Rows {
		table.Rows[i] = make([]any, len(order))
	}
	for j, name := range order {
		raw := make([]any, len(records))
		for i, rec := range records {
			raw[i] = rec[name]
		}
		col, values := inferValues(name, raw)
		table.Columns = append(table.Columns, col)
		for i, v := range values {
			table.Rows[i][j] = v
		}
	}
	return table
}

// columnsTable builds a table from an object of columns.
func columnsTable(columns map[string]any, order []string) (*tabular.Table, error) {
	data := make(map[string][]any, len(columns))
	n := 0
	for _, name := range order {
		switch c := columns[name].(type) {
		case []any:
			data[name] = c
		case map[string]any:
			keys := make([]string, 0, len(c))
			for k := range c {
				keys = append(keys, k)
			}
			sort.Slice(keys, func(a, b int) bool {
				ia, errA := strconv.Atoi(keys[a])
				ib, errB := strconv.Atoi(keys[b])
				if errA == nil && errB == nil {
					return ia < ib
				}
				return keys[a] < keys[b]
			})
			vals := make([]any, len(keys))
			for i, k := range keys {
				vals[i] = c[k]
			}
			data[name] = vals
		default:
			return nil, fmt.Errorf("column %q: expected an array or object, got %T", name, c)
		}
		n = max(n, len(data[name]))
	}

	table := &tabular.Table{Rows: make([][]any, n)}
	for i := range table.Rows {
		table.Rows[i] = make([]any, len(order))
	}
	for j, name := range order {
		raw := make([]any, n)
		copy(raw, data[name])
		col, values := inferValues(name, raw)
		table.Columns = append(table.Columns, col)
		for i, v := range values {
			table.Rows[i][j] = v
		}
	}
	return table, nil
}

// recordKeyOrder returns object keys in first-seen document order. For an array
// it walks the keys of each element; for an object it returns its own keys.
func recordKeyOrder(data []byte) []string {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil
	}
	delim, _ := tok.(json.Delim)
	if delim == '{' {
		return objectKeys(data)
	}

	var order []string
	seen := make(map[string]bool)
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return order
		}
		for _, k := range objectKeys(raw) {
			if !seen[k] {
				seen[k] = true
				order = append(order, k)
			}
		}
	}
	return order
}

// objectKeys returns the top-level keys of a JSON object in document order.
func objectKeys(obj []byte) []string {
	dec := json.NewDecoder(bytes.NewReader(obj))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return keys
		}
		key, ok := tok.(string)
		if !ok {
			return keys
		}
		keys = append(keys, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return keys
		}
	}
	return keys
}
