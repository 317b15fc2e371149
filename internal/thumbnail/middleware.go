package thumbnail

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-Id"

// ResponseWriterWrapper records the status code of the first WriteHeader or
// Write call on the wrapped http.ResponseWriter.
type ResponseWriterWrapper struct {
	http.ResponseWriter
	WrittenResponseCode int
}

func (w *ResponseWriterWrapper) WriteHeader(statusCode int) {
	if w.WrittenResponseCode == 0 {
		w.WrittenResponseCode = statusCode
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *ResponseWriterWrapper) Write(b []byte) (int, error) {
	if w.WrittenResponseCode == 0 {
		w.WrittenResponseCode = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

type LogEntry struct {
	RequestID  string
	IP         string
	Host       string
	Method     string
	URL        string
	Proto      string
	DurationMS float64
	StatusCode int
}

func (e LogEntry) User() slog.Attr {
	return slog.Group("user", "ip", e.IP)
}

func (e LogEntry) Request() slog.Attr {
	return slog.Group("request",
		"id", e.RequestID,
		"proto", e.Proto,
		"method", e.Method,
		"host", e.Host,
		"url", e.URL,
		"duration_ms", e.DurationMS,
		"status_code", e.StatusCode,
	)
}

// LogRequest is middleware that logs incoming HTTP requests and tags each
// with a request id. A request id sent by the client is kept.
func LogRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		entry := LogEntry{
			RequestID: requestID,
			IP:        r.RemoteAddr,
			Host:      r.Host,
			Method:    r.Method,
			URL:       r.URL.String(),
			Proto:     r.Proto,
		}

		writer := ResponseWriterWrapper{ResponseWriter: w}

		start := time.Now()
		next.ServeHTTP(&writer, r)
		elapsed := time.Since(start).Nanoseconds()

		entry.DurationMS = float64(elapsed) / float64(time.Millisecond)
		entry.StatusCode = writer.WrittenResponseCode

		slog.Log(r.Context(), requestLogLevel(writer.WrittenResponseCode), "Request", entry.User(), entry.Request())
	})
}

// requestLogLevel maps a response status to the level of its request log
// line. Client errors log at Info, except 401 and 413 which log at Warn.
func requestLogLevel(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status == http.StatusUnauthorized, status == http.StatusRequestEntityTooLarge:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// SlashFix collapses double slashes and drops a trailing slash.
func SlashFix(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for strings.Contains(r.URL.Path, "//") {
			r.URL.Path = strings.ReplaceAll(r.URL.Path, "//", "/")
		}

		if r.URL.Path != "/" && strings.HasSuffix(r.URL.Path, "/") {
			r.URL.Path = strings.TrimSuffix(r.URL.Path, "/")
		}
		r.URL.RawPath = ""

		next.ServeHTTP(w, r)
	})
}

// Recoverer turns a panicking handler into a 500 response. The
// http.ErrAbortHandler sentinel is re-raised so the connection is dropped.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}

			if recovered == http.ErrAbortHandler {
				panic(recovered)
			}

			slog.Error("Internal Error in HTTP handler", "method", r.Method, "path", r.URL.Path, "error", recovered)
			writeInternalError(w)
		}()

		next.ServeHTTP(w, r)
	})
}

// RequireWriteAccess is middleware that enforces the configured write
// policy. Without an AuthEngine every request passes.
func (s *Server) RequireWriteAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Config.Authenticator == nil {
			next.ServeHTTP(w, r)
			return
		}

		user, err := s.Config.Authenticator.AuthenticateRequest(r.Context(), r)
		if err != nil {
			slog.Error("Authenticating upload", "err", err)
		}

		if user == nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="thumbnail"`)
			writeError(w, http.StatusUnauthorized, "Not authorized to upload thumbnails")
			return
		}

		slog.Debug("Upload authorized", "user", user.Name)
		next.ServeHTTP(w, r)
	})
}
