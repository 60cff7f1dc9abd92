// Package blob defines the object storage contract used to publish exported
// design documents. Concrete backends live in the memory, fs and s3
// subpackages.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"designcore/pkg/domain"
)

// Driver identifies a blob backend.
type Driver string

// Supported drivers.
const (
	DriverMemory     Driver = "memory"
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
)

// PutOptions carries optional object attributes.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Info describes a stored object.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is a flat key/value object store. Put overwrites an existing key.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

// NotFound reports a missing key as domain.ErrNotFound.
func NotFound(key string) error {
	return fmt.Errorf("%w: blob %s", domain.ErrNotFound, key)
}

// IsNotFound reports whether err classifies as a missing object.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

// CleanKey rejects keys that are empty, absolute or escape their root and
// returns the key with forward slashes.
func CleanKey(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", domain.InvalidArgumentf("empty blob key")
	}
	trimmed = strings.ReplaceAll(trimmed, "\\", "/")
	if strings.HasPrefix(trimmed, "/") {
		return "", domain.InvalidArgumentf("absolute blob key %q", key)
	}
	for _, segment := range strings.Split(trimmed, "/") {
		if segment == ".." {
			return "", domain.InvalidArgumentf("blob key %q escapes root", key)
		}
	}
	return trimmed, nil
}

// CloneMetadata copies user metadata; nil stays nil.
func CloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
