package tabular

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jittakal/tabular2mcap/pkg/tabular"
)

// Ensure implementation satisfies interface at compile time.
var _ tabular.Reader = (*CSVReader)(nil)

// CSVReader reads delimited text with a header row and infers column types.
type CSVReader struct {
	delimiter rune
	format    string
}

// NewCSVReader creates a comma separated reader.
func NewCSVReader() *CSVReader {
	return &CSVReader{delimiter: ',', format: "csv"}
}

// NewTSVReader creates a tab separated reader.
func NewTSVReader() *CSVReader {
	return &CSVReader{delimiter: '\t', format: "tsv"}
}

// Format returns the reader format name.
func (r *CSVReader) Format() string {
	return r.format
}

// Read reads the whole file. Short rows are padded with nulls.
func (r *CSVReader) Read(ctx context.Context, path string) (*tabular.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	cr := csv.NewReader(bufio.NewReader(f))
	cr.Comma = r.delimiter
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: no columns to parse from file", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	header = dedupeNames(header)

	columns := make([][]string, len(header))
	rows := 0
	for {
		if rows%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if len(record) > len(header) {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("%s line %d: expected %d fields, saw %d", path, line, len(header), len(record))
		}
		for j := range header {
			cell := ""
			if j < len(record) {
				cell = record[j]
			}
			columns[j] = append(columns[j], cell)
		}
		rows++
	}

	table := &tabular.Table{
		Columns: make([]tabular.Column, len(header)),
		Rows:    make([][]any, rows),
	}
	for i := range table.Rows {
		table.Rows[i] = make([]any, len(header))
	}
	for j, name := range header {
		col, values := inferStrings(name, columns[j])
		table.Columns[j] = col
		for i, v := range values {
			table.Rows[i][j] = v
		}
	}
	return table, nil
}

// dedupeNames suffixes repeated header names with .1, .2 and so on.
func dedupeNames(names []string) []string {
	out := make([]string, len(names))
	seen := make(map[string]int, len(names))
	taken := make(map[string]bool, len(names))
	for _, n := range names {
		taken[n] = true
	}
	for i, n := range names {
		count, dup := seen[n]
		seen[n] = count + 1
		if !dup {
			out[i] = n
			continue
		}
		candidate := n
		for k := count; ; k++ {
			candidate = n + "." + strconv.Itoa(k)
			if !taken[candidate] {
				break
			}
		}
		taken[candidate] = true
		out[i] = candidate
	}
	return out
}
