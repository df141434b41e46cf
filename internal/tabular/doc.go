// Package tabular provides readers that load tabular files into memory.
//
// # Supported Formats
//
// The reader is chosen from the file extension:
//
//   - .csv, .txt, .tsv: delimited text with type inference
//   - .parquet: Apache Parquet
//   - .avro: Avro object container files
//   - .json: array of records or object of columns
//   - .jsonl, .ndjson: one JSON object per line
//
// Formats that are recognized but not readable (.feather, .orc, .xlsx, .xls,
// .xml, .pkl, .pickle) fail with ErrUnsupportedFormat. Any other extension is
// read as CSV after a warning.
//
// # Factory
//
//	factory := tabular.NewFactory(logger)
//	table, err := factory.Read(ctx, "data/gps.csv")
//	if err != nil {
//	    return err
//	}
//
// # Column Names
//
// SanitizeColumnName maps arbitrary header text onto identifiers usable as
// template keys and message field names.
package tabular
