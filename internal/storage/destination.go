// Package storage implements the output sinks of a conversion.
package storage

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/jittakal/tabular2mcap/pkg/storage"
)

// ParseDestination parses an output location. It accepts s3://bucket/key,
// gs://bucket/object, azblob://container/blob,
// wasbs://container@account.blob.core.windows.net/blob, file://path and plain
// paths.
func ParseDestination(output string) (storage.Destination, error) {
	if output == "" {
		return storage.Destination{}, fmt.Errorf("output is required")
	}

	scheme, rest, ok := strings.Cut(output, "://")
	if !ok {
		return storage.Destination{Scheme: storage.SchemeFile, Key: filepath.Clean(output)}, nil
	}

	switch strings.ToLower(scheme) {
	case "file":
		if rest == "" {
			return storage.Destination{}, fmt.Errorf("file destination %q has no path", output)
		}
		return storage.Destination{Scheme: storage.SchemeFile, Key: filepath.Clean(filepath.FromSlash(rest))}, nil
	case "s3", "s3a":
		return bucketDestination(storage.SchemeS3, output, rest)
	case "gs", "gcs":
		return bucketDestination(storage.SchemeGCS, output, rest)
	case "azblob", "az":
		return bucketDestination(storage.SchemeAzure, output, rest)
	case "wasbs", "wasb":
		u, err := url.Parse(output)
		if err != nil {
			return storage.Destination{}, fmt.Errorf("invalid destination %q: %w", output, err)
		}
		container := u.User.Username()
		if container == "" {
			return storage.Destination{}, fmt.Errorf("destination %q has no container", output)
		}
		account, _, _ := strings.Cut(u.Hostname(), ".")
		key := strings.TrimPrefix(u.Path, "/")
		if key == "" {
			return storage.Destination{}, fmt.Errorf("destination %q has no blob name", output)
		}
		return storage.Destination{Scheme: storage.SchemeAzure, Bucket: container, Account: account, Key: key}, nil
	}
	return storage.Destination{}, fmt.Errorf("unsupported destination scheme %q", scheme)
}

func bucketDestination(scheme, output, rest string) (storage.Destination, error) {
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return storage.Destination{}, fmt.Errorf("destination %q has no bucket", output)
	}
	key = strings.TrimPrefix(key, "/")
	if key == "" || strings.HasSuffix(key, "/") {
		key += "output.mcap"
	}
	return storage.Destination{Scheme: scheme, Bucket: bucket, Key: key}, nil
}
