package thumbnail

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"thumbnail/pkg/storage"
)

const (
	// IIIFBackendName is the reserved storage name of the IIIF fetch
	// backend. It needs no storage definition in the configuration.
	IIIFBackendName = "IIIF-IS"

	iiifHost         = "iiif.europeana.eu"
	iiifFullTemplate = "/full/full/0/default."

	DefaultIIIFTimeout      = 10 * time.Second
	DefaultIIIFMaxSizeMB    = 10
	DefaultIIIFCacheEntries = 256
)

// IsEuropeanaIIIFURL reports whether raw is an http(s) URL on the Europeana
// IIIF image server.
func IsEuropeanaIIIFURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return false
	}

	return strings.EqualFold(u.Hostname(), iiifHost)
}

// IIIFThumbnailURL rewrites a full size IIIF image URL into the URL of a
// rendition that is width pixels wide. ok is false when raw is not a
// Europeana IIIF URL or does not follow the full size template.
func IIIFThumbnailURL(raw string, width int) (thumbnailURL string, ok bool) {
	if !IsEuropeanaIIIFURL(raw) || !strings.Contains(raw, iiifFullTemplate) {
		return "", false
	}

	return strings.Replace(raw, iiifFullTemplate, "/full/"+strconv.Itoa(width)+",/0/default.", 1), true
}

// IIIFConfig tunes the IIIF fetch backend. Zero values select defaults.
type IIIFConfig struct {
	Timeout      time.Duration
	MaxSizeMB    int
	CacheEntries int
}

type iiifEntry struct {
	data     []byte
	metadata storage.Metadata
}

// IIIFBackend produces thumbnails on the fly from the Europeana IIIF image
// server. It only handles URL based lookups; a request without a matching
// source URL is a miss.
type IIIFBackend struct {
	client       *http.Client
	maxSizeBytes int64
	cache        *lru.Cache[string, iiifEntry]
}

// NewIIIFBackend creates the IIIF backend. client may be nil.
func NewIIIFBackend(cfg IIIFConfig, client *http.Client) (*IIIFBackend, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultIIIFTimeout
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = DefaultIIIFMaxSizeMB
	}
	if cfg.CacheEntries <= 0 {
		cfg.CacheEntries = DefaultIIIFCacheEntries
	}

	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	cache, err := lru.New[string, iiifEntry](cfg.CacheEntries)
	if err != nil {
		return nil, fmt.Errorf("create iiif cache: %w", err)
	}

	return &IIIFBackend{
		client:       client,
		maxSizeBytes: int64(cfg.MaxSizeMB) * 1024 * 1024,
		cache:        cache,
	}, nil
}

func (b *IIIFBackend) Name() string {
	return IIIFBackendName
}

// Exists always reports false: the IIIF server is addressed by source URL,
// not by id.
func (b *IIIFBackend) Exists(ctx context.Context, id string) (bool, error) {
	return false, nil
}

func (b *IIIFBackend) Retrieve(ctx context.Context, id string, originalURL string) (*MediaStream, bool, error) {
	if originalURL == "" {
		return nil, false, nil
	}

	thumbnailURL, ok := IIIFThumbnailURL(originalURL, WidthForKey(id))
	if !ok {
		return nil, false, nil
	}

	entry, found := b.cache.Get(thumbnailURL)
	if !found {
		var err error
		entry, found, err = b.fetch(ctx, thumbnailURL)
		if err != nil || !found {
			return nil, false, err
		}
		b.cache.Add(thumbnailURL, entry)
	}

	metadata := entry.metadata
	return NewMediaStream(id, originalURL, io.NopCloser(bytes.NewReader(entry.data)), &metadata), true, nil
}

func (b *IIIFBackend) fetch(ctx context.Context, thumbnailURL string) (iiifEntry, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, thumbnailURL, nil)
	if err != nil {
		return iiifEntry{}, false, fmt.Errorf("iiif request %q: %w", thumbnailURL, err)
	}

	slog.Debug("Fetching IIIF thumbnail", "url", thumbnailURL)

	resp, err := b.client.Do(req)
	if err != nil {
		return iiifEntry{}, false, fmt.Errorf("iiif fetch %q: %w", thumbnailURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return iiifEntry{}, false, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return iiifEntry{}, false, fmt.Errorf("iiif fetch %q: unexpected status code %d", thumbnailURL, resp.StatusCode)
	}

	if resp.ContentLength > b.maxSizeBytes {
		return iiifEntry{}, false, fmt.Errorf("iiif fetch %q: content length %d exceeds maximum %d bytes", thumbnailURL, resp.ContentLength, b.maxSizeBytes)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, b.maxSizeBytes+1))
	if err != nil {
		return iiifEntry{}, false, fmt.Errorf("iiif fetch %q: read body: %w", thumbnailURL, err)
	}

	if int64(len(data)) > b.maxSizeBytes {
		return iiifEntry{}, false, fmt.Errorf("iiif fetch %q: response body exceeds maximum %d bytes", thumbnailURL, b.maxSizeBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if len(data) == 0 || isHTML(contentType, data) {
		slog.Debug("IIIF server returned no image", "url", thumbnailURL, "content_type", contentType)
		return iiifEntry{}, false, nil
	}

	metadata := storage.Metadata{
		ContentType:   contentType,
		ContentLength: int64(len(data)),
		LengthKnown:   true,
		ETag:          strings.Trim(resp.Header.Get("ETag"), `"`),
	}

	if lastModified, err := http.ParseTime(resp.Header.Get("Last-Modified")); err == nil {
		metadata.LastModified = lastModified.UTC()
	}

	return iiifEntry{data: data, metadata: metadata}, true, nil
}

// isHTML detects error pages served with a 2xx status.
func isHTML(contentType string, data []byte) bool {
	if strings.HasPrefix(strings.ToLower(contentType), "text/html") {
		return true
	}

	head := bytes.ToLower(bytes.TrimSpace(data[:min(len(data), 64)]))
	return bytes.HasPrefix(head, []byte("<!doctype html")) || bytes.HasPrefix(head, []byte("<html"))
}
