package thumbnail

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns an http.Handler serving the thumbnail API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Lookup by source URL; GET patterns also match HEAD.
	mux.HandleFunc("GET /api/v2/thumbnail-by-url.json", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		s.handleThumbnailByURL(ctx, w, r)
	})
	mux.HandleFunc("GET /thumbnail/v2/url.json", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		s.handleThumbnailByURL(ctx, w, r)
	})

	// Lookup by id
	mux.HandleFunc("GET /thumbnail/v3/{size}/{id}", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		size := r.PathValue("size")
		id := r.PathValue("id")
		s.handleThumbnailByID(ctx, w, r, size, id)
	})
	mux.HandleFunc("GET /thumbnail/v3/{size}", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusBadRequest, missingSizeOrIDMessage)
	})
	mux.HandleFunc("GET /thumbnail/v3", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusBadRequest, missingSizeOrIDMessage)
	})

	// Upload
	upload := s.RequireWriteAccess(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := r.PathValue("id")
		s.handleUpload(ctx, w, r, id)
	}))
	mux.HandleFunc("PUT /thumbnail/v3/{id}", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.Config.Routes.Uploader(); !ok {
			writeError(w, http.StatusNotFound, ErrUploadDisabled.Error())
			return
		}
		upload.ServeHTTP(w, r)
	})

	if s.Config.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.Config.Gatherer, promhttp.HandlerOpts{}))
	}

	// Add middleware
	handler := SlashFix(mux)
	handler = LogRequest(handler)
	handler = Recoverer(handler)
	return handler
}
