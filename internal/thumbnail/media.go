package thumbnail

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"thumbnail/pkg/storage"
)

// MediaStream is a retrieved thumbnail: the storage key that matched, the
// source URL when the lookup was URL based, the open payload and whatever
// metadata the backend could provide.
//
// The payload must be closed exactly once, either after the response body
// has been written or when a precondition short-circuits the response.
// Close is safe to call more than once; only the first call reaches the
// underlying stream.
type MediaStream struct {
	ID          string
	OriginalURL string

	body     io.ReadCloser
	metadata *storage.Metadata

	closeOnce sync.Once
	closeErr  error
	closed    atomic.Bool
}

// NewMediaStream wraps body. metadata may be nil when the backend has none.
func NewMediaStream(id string, originalURL string, body io.ReadCloser, metadata *storage.Metadata) *MediaStream {
	return &MediaStream{
		ID:          id,
		OriginalURL: originalURL,
		body:        body,
		metadata:    metadata,
	}
}

// Read reads from the payload.
func (m *MediaStream) Read(p []byte) (int, error) {
	return m.body.Read(p)
}

// Close releases the payload.
func (m *MediaStream) Close() error {
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		if m.body != nil {
			m.closeErr = m.body.Close()
		}
	})
	return m.closeErr
}

// IsClosed reports whether Close has been called.
func (m *MediaStream) IsClosed() bool {
	return m.closed.Load()
}

// HasMetadata reports whether the backend supplied metadata.
func (m *MediaStream) HasMetadata() bool {
	return m.metadata != nil
}

// ContentType is the stored content type, or "" when unknown.
func (m *MediaStream) ContentType() string {
	if m.metadata == nil {
		return ""
	}
	return m.metadata.ContentType
}

// ContentLength returns the payload size and whether it is known.
func (m *MediaStream) ContentLength() (int64, bool) {
	if m.metadata == nil || !m.metadata.HasContentLength() {
		return 0, false
	}
	return m.metadata.ContentLength, true
}

// ETag is the stored entity tag without quotes, or "" when unknown.
func (m *MediaStream) ETag() string {
	if m.metadata == nil {
		return ""
	}
	return m.metadata.ETag
}

// LastModified returns the modification time and whether it is known.
func (m *MediaStream) LastModified() (time.Time, bool) {
	if m.metadata == nil || m.metadata.LastModified.IsZero() {
		return time.Time{}, false
	}
	return m.metadata.LastModified, true
}
