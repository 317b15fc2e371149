package thumbnail

import (
	"context"
	"log/slog"
)

// FallbackRetriever walks a fallback chain and returns the first hit.
type FallbackRetriever struct {
	routes  *RouteTable
	metrics *Metrics
}

// NewFallbackRetriever creates a retriever reporting legacy hits for the
// storages marked in routes. metrics may be nil.
func NewFallbackRetriever(routes *RouteTable, metrics *Metrics) *FallbackRetriever {
	return &FallbackRetriever{routes: routes, metrics: metrics}
}

// Retrieve asks each backend in order for id and returns the first stream
// found. found is false, with a nil error, when no backend holds id. An
// error from any backend ends the walk; it is never treated as a miss.
func (f *FallbackRetriever) Retrieve(ctx context.Context, backends []Backend, id string, originalURL string) (stream *MediaStream, found bool, err error) {
	for _, b := range backends {
		stream, found, err := b.Retrieve(ctx, id, originalURL)
		if err != nil {
			f.metrics.RecordLookup(b.Name(), "error")
			return nil, false, err
		}

		if !found {
			if stream != nil {
				_ = stream.Close()
			}
			slog.Debug("File not present in storage", "id", id, "storage", b.Name())
			f.metrics.RecordLookup(b.Name(), "miss")
			continue
		}

		slog.Debug("File found in storage", "id", id, "storage", b.Name())
		f.metrics.RecordLookup(b.Name(), "hit")

		if f.routes != nil && f.routes.IsLegacy(b.Name()) {
			slog.Info("Thumbnail served from legacy storage", "id", id, "storage", b.Name(), "url", originalURL)
			f.metrics.RecordLegacyHit(b.Name())
		}

		return stream, true, nil
	}

	return nil, false, nil
}
