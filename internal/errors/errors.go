// Package errors defines application-specific error types and sentinel errors.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for common conditions.
var (
	ErrUnknownFunction         = errors.New("unknown converter function")
	ErrUnknownSchema           = errors.New("unknown schema")
	ErrNoTimestamp             = errors.New("no timestamp found in message")
	ErrUnsupportedFormat       = errors.New("unsupported tabular format")
	ErrUnsupportedWriterFormat = errors.New("unsupported writer format")
	ErrUnsupportedMapping      = errors.New("unsupported mapping")
	ErrInvalidTemplateOutput   = errors.New("template output is not a JSON object")
	ErrWriterClosed            = errors.New("mcap writer is closed")
)

// ConversionError represents a failure while converting one row of a file.
type ConversionError struct {
	File  string
	Topic string
	Row   int
	Err   error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("conversion error: file=%s topic=%s row=%d: %v",
		e.File, e.Topic, e.Row, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// ValidationError represents an invalid configuration value or message field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: field=%s: %s", e.Field, e.Reason)
}

// SchemaError represents a schema lookup or registration failure.
type SchemaError struct {
	Name     string
	Encoding string
	Err      error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error: name=%s encoding=%s: %v", e.Name, e.Encoding, e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// StorageError represents a storage operation failure.
type StorageError struct {
	Operation string
	Path      string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: operation=%s path=%s: %v",
		e.Operation, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// FetchError represents a failed schema repository download.
type FetchError struct {
	Repository string
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch error: repository=%s url=%s status=%d: %v",
			e.Repository, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error: repository=%s url=%s: %v", e.Repository, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable defines an interface for errors that can indicate if they are retryable.
type Retryable interface {
	error
	IsRetryable() bool
}

// IsRetryable checks if an error is retryable.
// It first checks if the error implements the Retryable interface,
// then falls back to checking specific error types.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryable Retryable
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}

	return false
}

// IsRetryable determines if a StorageError is retryable based on the operation type.
func (e *StorageError) IsRetryable() bool {
	return e.Operation == "write" || e.Operation == "upload" || e.Operation == "create"
}

// IsRetryable reports whether the download may succeed on another attempt.
// Transport failures and server errors are retryable, client errors are not.
func (e *FetchError) IsRetryable() bool {
	if e.StatusCode == 0 {
		return true
	}
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}
