package storage

import (
	"context"
	"io"
	"time"
)

// Metadata describes a stored object. ContentLength is only meaningful
// when LengthKnown is set, so the zero value describes an object of
// unknown size. LastModified is the zero time when unknown.
type Metadata struct {
	ContentType   string
	ContentLength int64
	LengthKnown   bool
	ETag          string
	LastModified  time.Time
}

// HasContentLength reports whether the object size is known.
func (m Metadata) HasContentLength() bool {
	return m.LengthKnown && m.ContentLength >= 0
}

// Object is an open object payload together with its metadata. The caller
// owns Body and must close it.
type Object struct {
	Body     io.ReadCloser
	Metadata Metadata
}

// ObjectStore is the minimal contract a thumbnail backend needs from an
// object storage implementation (S3, MinIO, local disk).
type ObjectStore interface {
	// Exists reports whether key is present. Transport failures are
	// returned as errors, never as false.
	Exists(ctx context.Context, key string) (bool, error)

	// Get opens the object stored under key. found is false, with a nil
	// error, when the key is not present.
	Get(ctx context.Context, key string) (obj *Object, found bool, err error)

	// Put stores data under key, replacing any existing object.
	Put(ctx context.Context, key string, contentType string, data []byte) error
}
