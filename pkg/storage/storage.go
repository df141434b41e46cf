// Package storage defines interfaces for publishing converted MCAP files.
//
// This package provides abstractions for placing a finished local file on
// various storage backends (local filesystem, S3, Google Cloud Storage,
// Azure Blob).
package storage

import (
	"context"
	"fmt"
)

// Destination schemes.
const (
	SchemeFile  = "file"
	SchemeS3    = "s3"
	SchemeGCS   = "gs"
	SchemeAzure = "azblob"
)

// Destination is a parsed output location.
type Destination struct {
	// Scheme is one of the Scheme constants.
	Scheme string
	// Bucket is the S3 or GCS bucket, or the Azure container.
	Bucket string
	// Account is the Azure storage account of wasbs:// URLs.
	Account string
	// Key is the object key, blob name or local file path.
	Key string
}

// IsRemote reports whether the destination is not on the local filesystem.
func (d Destination) IsRemote() bool {
	return d.Scheme != SchemeFile
}

// String returns the destination as a URL, or the path for local files.
func (d Destination) String() string {
	if !d.IsRemote() {
		return d.Key
	}
	return fmt.Sprintf("%s://%s/%s", d.Scheme, d.Bucket, d.Key)
}

// Uploader publishes a finished local file.
type Uploader interface {
	// Upload places the file at localPath under key and returns its size.
	Upload(ctx context.Context, localPath, key string) (int64, error)

	// Close releases client resources.
	Close() error
}
