package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrUnknownFunction", ErrUnknownFunction},
		{"ErrUnknownSchema", ErrUnknownSchema},
		{"ErrNoTimestamp", ErrNoTimestamp},
		{"ErrUnsupportedFormat", ErrUnsupportedFormat},
		{"ErrUnsupportedWriterFormat", ErrUnsupportedWriterFormat},
		{"ErrUnsupportedMapping", ErrUnsupportedMapping},
		{"ErrInvalidTemplateOutput", ErrInvalidTemplateOutput},
		{"ErrWriterClosed", ErrWriterClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err == nil {
				t.Errorf("%s should not be nil", tt.name)
			}
			if tt.err.Error() == "" {
				t.Errorf("%s should have an error message", tt.name)
			}
		})
	}
}

func TestConversionError(t *testing.T) {
	convErr := &ConversionError{
		File:  "gps/fix.csv",
		Topic: "/gpsfixcsv/LocationFix",
		Row:   7,
		Err:   fmt.Errorf("render: %w", ErrNoTimestamp),
	}

	msg := convErr.Error()
	for _, want := range []string{"gps/fix.csv", "/gpsfixcsv/LocationFix", "row=7"} {
		if !strings.Contains(msg, want) {
			t.Errorf("ConversionError message %q should contain %q", msg, want)
		}
	}

	if !errors.Is(convErr, ErrNoTimestamp) {
		t.Error("ConversionError should wrap the row error")
	}
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{
		Field:  "tabular_mappings[0].file_pattern",
		Reason: "required field missing",
	}

	if !strings.Contains(err.Error(), "tabular_mappings[0].file_pattern") {
		t.Errorf("ValidationError should name the field, got %q", err.Error())
	}
}

func TestSchemaError(t *testing.T) {
	schemaErr := &SchemaError{Name: "foxglove.Nope", Encoding: "jsonschema", Err: ErrUnknownSchema}

	if schemaErr.Error() == "" {
		t.Error("SchemaError should have an error message")
	}
	if !errors.Is(schemaErr, ErrUnknownSchema) {
		t.Error("SchemaError should wrap ErrUnknownSchema")
	}
}

func TestStorageError(t *testing.T) {
	baseErr := errors.New("disk full")
	storageErr := &StorageError{
		Operation: "write",
		Path:      "/data/output.mcap",
		Err:       baseErr,
	}

	if storageErr.Error() == "" {
		t.Error("StorageError should have an error message")
	}

	if !errors.Is(storageErr, baseErr) {
		t.Error("StorageError should wrap base error")
	}
}

func TestFetchError(t *testing.T) {
	fetchErr := &FetchError{Repository: "geometry2", URL: "https://example.com/x.zip", StatusCode: 404, Err: errors.New("not found")}

	if !strings.Contains(fetchErr.Error(), "status=404") {
		t.Errorf("FetchError should include the status code, got %q", fetchErr.Error())
	}

	noStatus := &FetchError{Repository: "geometry2", URL: "https://example.com/x.zip", Err: errors.New("dial tcp")}
	if strings.Contains(noStatus.Error(), "status=") {
		t.Errorf("FetchError without status should omit it, got %q", noStatus.Error())
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "storage upload error is retryable",
			err:  &StorageError{Operation: "upload", Path: "s3://bucket/out.mcap", Err: errors.New("failed")},
			want: true,
		},
		{
			name: "storage stat error is not retryable",
			err:  &StorageError{Operation: "stat", Path: "/tmp/out.mcap", Err: errors.New("failed")},
			want: false,
		},
		{
			name: "wrapped storage error is retryable",
			err:  fmt.Errorf("upload: %w", &StorageError{Operation: "write", Err: errors.New("failed")}),
			want: true,
		},
		{
			name: "fetch transport error is retryable",
			err:  &FetchError{Repository: "rcl_interfaces", Err: errors.New("connection reset")},
			want: true,
		},
		{
			name: "fetch server error is retryable",
			err:  &FetchError{Repository: "rcl_interfaces", StatusCode: 503, Err: errors.New("unavailable")},
			want: true,
		},
		{
			name: "fetch rate limit is retryable",
			err:  &FetchError{Repository: "rcl_interfaces", StatusCode: 429, Err: errors.New("slow down")},
			want: true,
		},
		{
			name: "fetch not found is not retryable",
			err:  &FetchError{Repository: "rcl_interfaces", StatusCode: 404, Err: errors.New("missing")},
			want: false,
		},
		{
			name: "validation error is not retryable",
			err:  &ValidationError{Field: "separator", Reason: "missing"},
			want: false,
		},
		{
			name: "generic error is not retryable",
			err:  errors.New("generic error"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
