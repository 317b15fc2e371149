package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

const (
	invalidURLMessage      = "INVALID URL"
	invalidSizeMessage     = "Invalid size. Supported values are 200 and 400"
	invalidIDMessage       = "Invalid or empty id"
	missingSizeOrIDMessage = "Either Size or Id is missing. Correct url is /v3/{size}/{id}"
	emptyFileMessage       = "Received empty file"
)

var (
	sourceURLPattern = regexp.MustCompile(`^(https?|ftp)://.*$`)
	uploadIDPattern  = regexp.MustCompile(`^[a-fA-F0-9]{8,128}$`)
	v3SizePattern    = regexp.MustCompile(`^(200|400)$`)

	// Media types accepted for upload.
	supportedUploadTypes = []string{
		"image/jpeg",
		"image/jpg",
		"image/png",
		"image/webp",
		"image/gif",
		"image/tiff",
		"image/bmp",
	}
)

// Server serves thumbnails out of the fallback chains of a RouteTable.
type Server struct {
	Config    Config
	retriever *FallbackRetriever
	metrics   *Metrics
}

// NewServer validates cfg and returns a new Server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Routes == nil {
		return nil, fmt.Errorf("%w: no route table", ErrConfiguration)
	}

	if cfg.DefaultImages == nil {
		images, err := LoadDefaultImages()
		if err != nil {
			return nil, err
		}
		cfg.DefaultImages = images
	}

	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = DefaultMaxUploadSize
	}

	metrics, err := NewMetrics(cfg.Registerer)
	if err != nil {
		return nil, err
	}

	if uploader, ok := cfg.Routes.Uploader(); ok {
		slog.Warn("Uploading is enabled", "storage", uploader.Name(), "authorization", cfg.Authenticator != nil)
	}

	return &Server{
		Config:    cfg,
		retriever: NewFallbackRetriever(cfg.Routes, metrics),
		metrics:   metrics,
	}, nil
}

// v2Width maps the v2 size parameter to a width. Only w200 and 200 select
// the medium size.
func v2Width(size string) int {
	if strings.EqualFold(size, "w200") || size == "200" {
		return int(SizeMedium)
	}
	return int(SizeLarge)
}

// handleThumbnailByURL implements GET /api/v2/thumbnail-by-url.json. A
// missing thumbnail is answered with the default image for the requested
// type.
func (s *Server) handleThumbnailByURL(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if !query.Has("uri") {
		writeLegacyError(w, http.StatusBadRequest, "Required request parameter 'uri' is not present")
		return
	}

	sourceURL := query.Get("uri")
	if !sourceURLPattern.MatchString(sourceURL) {
		slog.Info("Rejected thumbnail request", "uri", sourceURL, "reason", invalidURLMessage)
		writeLegacyError(w, http.StatusBadRequest, invalidURLMessage, "uri: "+invalidURLMessage)
		return
	}

	id, err := HashURL(sourceURL)
	if err != nil {
		writeLegacyError(w, http.StatusBadRequest, invalidURLMessage, "uri: "+invalidURLMessage)
		return
	}
	key := StorageKey(id, v2Width(query.Get("size")))

	route, backends := s.Config.Routes.Resolve(RoutingHost(r))
	slog.Debug("Thumbnail by url", "uri", sourceURL, "key", key, "route", route)

	stream, found, err := s.retriever.Retrieve(ctx, backends, key, sourceURL)
	if err != nil {
		slog.Error("Retrieve thumbnail", "key", key, "uri", sourceURL, "route", route, "err", err)
		writeLegacyError(w, http.StatusInternalServerError, "Error retrieving thumbnail", err.Error())
		return
	}

	if !found {
		s.writeDefaultImage(w, r, ParseMediaType(query.Get("type")))
		return
	}

	status, err := WriteThumbnail(w, r, stream, sourceURL)
	s.metrics.RecordDelivery(status)
	if err != nil {
		slog.Warn("Write thumbnail", "key", key, "err", err)
	}
}

func (s *Server) writeDefaultImage(w http.ResponseWriter, r *http.Request, mediaType MediaType) {
	data := s.Config.DefaultImages.Get(mediaType)
	s.metrics.RecordDefaultImage(string(mediaType))

	writeDefaultHeaders(w)
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return
	}

	if _, err := w.Write(data); err != nil {
		slog.Warn("Write default image", "type", mediaType, "err", err)
	}
}

// handleThumbnailByID implements GET /thumbnail/v3/{size}/{id}. The id may
// carry an extension, which then serves as the content type hint.
func (s *Server) handleThumbnailByID(ctx context.Context, w http.ResponseWriter, r *http.Request, size string, id string) {
	if size == "" || id == "" {
		writeError(w, http.StatusBadRequest, missingSizeOrIDMessage)
		return
	}

	if !v3SizePattern.MatchString(size) {
		slog.Info("Rejected thumbnail request", "size", size, "reason", ErrInvalidSize)
		writeError(w, http.StatusBadRequest, invalidSizeMessage)
		return
	}
	width, _ := strconv.Atoi(size)

	var extension string
	if i := strings.LastIndexByte(id, '.'); i >= 0 {
		if i == 0 {
			slog.Info("Rejected thumbnail request", "id", id, "reason", ErrInvalidID)
			writeError(w, http.StatusBadRequest, invalidIDMessage)
			return
		}
		id, extension = id[:i], id[i:]
	}

	key := StorageKey(id, width)

	route, backends := s.Config.Routes.Resolve(RoutingHost(r))
	slog.Debug("Thumbnail by id", "key", key, "route", route)

	stream, found, err := s.retriever.Retrieve(ctx, backends, key, "")
	if err != nil {
		slog.Error("Retrieve thumbnail", "key", key, "route", route, "err", err)
		writeError(w, http.StatusInternalServerError, "Error retrieving thumbnail")
		return
	}

	if !found {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	status, err := WriteThumbnail(w, r, stream, extension)
	s.metrics.RecordDelivery(status)
	if err != nil {
		slog.Warn("Write thumbnail", "key", key, "err", err)
	}
}

// isSupportedUploadType strips parameters from contentType and checks it
// against the accepted media types.
func isSupportedUploadType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, _, _ = strings.Cut(contentType, ";")
	}

	return slices.Contains(supportedUploadTypes, strings.ToLower(strings.TrimSpace(mediaType)))
}

func unsupportedContentTypeMessage(contentType string) string {
	return fmt.Sprintf("Unsupported content type: %s\nSupported types are: [%s]",
		contentType, strings.Join(supportedUploadTypes, ", "))
}

// handleUpload implements PUT /thumbnail/v3/{id}: the multipart field
// "file" is scaled to every thumbnail size and stored in the upload
// storage.
func (s *Server) handleUpload(ctx context.Context, w http.ResponseWriter, r *http.Request, id string) {
	uploader, ok := s.Config.Routes.Uploader()
	if !ok {
		writeError(w, http.StatusNotFound, ErrUploadDisabled.Error())
		return
	}

	if !uploadIDPattern.MatchString(id) {
		slog.Info("Rejected upload", "id", id, "reason", ErrInvalidID)
		s.metrics.RecordUpload(ErrInvalidID)
		writeError(w, http.StatusBadRequest, invalidIDMessage)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.Config.MaxUploadSize)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			s.metrics.RecordUpload(ErrInvalidInput)
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds the maximum upload size of %d bytes", maxBytesErr.Limit))
			return
		}
		s.metrics.RecordUpload(ErrInvalidInput)
		writeError(w, http.StatusBadRequest, "Required part 'file' is not present")
		return
	}
	defer file.Close()

	if contentType := header.Header.Get("Content-Type"); !isSupportedUploadType(contentType) {
		slog.Info("Rejected upload", "id", id, "content_type", contentType, "reason", ErrUnsupportedContentType)
		s.metrics.RecordUpload(ErrUnsupportedContentType)
		writeError(w, http.StatusBadRequest, unsupportedContentTypeMessage(contentType))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		slog.Error("Read uploaded file", "id", id, "err", err)
		writeInternalError(w)
		return
	}

	if len(data) == 0 {
		s.metrics.RecordUpload(ErrEmptyFile)
		writeError(w, http.StatusBadRequest, emptyFileMessage)
		return
	}

	err = uploader.Process(ctx, id, data)
	s.metrics.RecordUpload(err)

	switch {
	case errors.Is(err, ErrEmptyFile):
		writeError(w, http.StatusBadRequest, emptyFileMessage)
	case errors.Is(err, ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		slog.Error("Process upload", "id", id, "filename", header.Filename, "err", err)
		writeError(w, http.StatusInternalServerError, "Error processing image: "+err.Error())
	default:
		slog.Info("Image processed", "id", id, "filename", header.Filename, "size", len(data))
		w.WriteHeader(http.StatusNoContent)
	}
}
