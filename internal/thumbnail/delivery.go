package thumbnail

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	allowedMethods = "GET, HEAD"
	cacheControl   = "no-cache"
	gzipSuffix     = "-gzip"
)

// EvaluatePreconditions classifies a request for stream into 200, 304 or
// 412 from its If-Match, If-None-Match and If-Modified-Since headers.
// If-Match is evaluated first.
func EvaluatePreconditions(header http.Header, stream *MediaStream) int {
	etag := stream.ETag()
	if n := len(etag) - len(gzipSuffix); n >= 0 && strings.EqualFold(etag[n:], gzipSuffix) {
		etag = etag[:n]
	}

	if ifMatch := headerList(header, "If-Match"); strings.TrimSpace(ifMatch) != "" {
		if !anyETagMatches(ifMatch, etag) {
			return http.StatusPreconditionFailed
		}
	}

	if etag == "" {
		return http.StatusOK
	}

	if ifNoneMatch := headerList(header, "If-None-Match"); strings.TrimSpace(ifNoneMatch) != "" {
		if anyETagMatches(ifNoneMatch, etag) {
			return http.StatusNotModified
		}
		return http.StatusOK
	}

	lastModified, ok := stream.LastModified()
	if !ok {
		return http.StatusOK
	}

	since, err := http.ParseTime(header.Get("If-Modified-Since"))
	if err != nil {
		return http.StatusOK
	}

	if !lastModified.Truncate(time.Second).After(since) {
		return http.StatusNotModified
	}

	return http.StatusOK
}

func headerList(header http.Header, name string) string {
	return strings.Join(header.Values(name), ",")
}

// anyETagMatches compares etag against a comma separated list of entity
// tags using the weak comparison: W/ prefixes and quotes are dropped and
// case is ignored. "*" matches anything.
func anyETagMatches(list string, etag string) bool {
	if strings.TrimSpace(list) == "*" {
		return true
	}

	if etag == "" {
		return false
	}

	want := normalizeETag(etag)
	for _, candidate := range strings.Split(list, ",") {
		candidate = normalizeETag(candidate)
		if candidate == "*" || strings.EqualFold(candidate, want) {
			return true
		}
	}

	return false
}

func normalizeETag(etag string) string {
	etag = strings.TrimSpace(etag)
	etag = strings.TrimPrefix(etag, "W/")
	return strings.ReplaceAll(etag, `"`, "")
}

// GuessContentType infers the thumbnail media type from the source URL, or
// from a bare extension such as ".png". Thumbnails of PNG and PDF sources
// are PNG; everything else, including an empty hint, is JPEG.
func GuessContentType(hint string) string {
	lower := strings.ToLower(hint)
	if strings.HasSuffix(lower, ".png") || strings.HasSuffix(lower, ".pdf") {
		return "image/png"
	}
	return "image/jpeg"
}

// ResponseContentType prefers the stored image type of stream and falls
// back to GuessContentType(hint).
func ResponseContentType(stream *MediaStream, hint string) string {
	if ct := stream.ContentType(); strings.HasPrefix(strings.ToLower(ct), "image/") {
		return ct
	}
	return GuessContentType(hint)
}

// createETag formats an entity tag as a quoted header value.
func createETag(etag string) string {
	return fmt.Sprintf("\"%s\"", etag)
}

func writeDefaultHeaders(w http.ResponseWriter) {
	w.Header().Set("Allow", allowedMethods)
	w.Header().Set("Cache-Control", cacheControl)
}

// WriteThumbnail answers r with stream and closes the stream on every path.
// hint is the source URL or extension used when the stream carries no
// image content type. The returned status is the one written.
func WriteThumbnail(w http.ResponseWriter, r *http.Request, stream *MediaStream, hint string) (int, error) {
	defer stream.Close()

	writeDefaultHeaders(w)

	if etag := stream.ETag(); etag != "" {
		w.Header().Set("ETag", createETag(etag))
	}
	if lastModified, ok := stream.LastModified(); ok {
		w.Header().Set("Last-Modified", lastModified.UTC().Format(http.TimeFormat))
	}

	status := EvaluatePreconditions(r.Header, stream)
	if status != http.StatusOK {
		w.WriteHeader(status)
		return status, nil
	}

	w.Header().Set("Content-Type", ResponseContentType(stream, hint))
	if size, ok := stream.ContentLength(); ok {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}

	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return http.StatusOK, nil
	}

	if _, err := io.Copy(w, stream); err != nil {
		return http.StatusOK, fmt.Errorf("stream thumbnail %s: %w", stream.ID, err)
	}

	return http.StatusOK, nil
}
