package thumbnail

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "thumbnail"

// Metrics exports retrieval, delivery and upload counters. A nil *Metrics
// records nothing.
type Metrics struct {
	backendLookups *prometheus.CounterVec
	legacyHits     *prometheus.CounterVec
	deliveries     *prometheus.CounterVec
	defaultImages  *prometheus.CounterVec
	uploads        *prometheus.CounterVec
}

// NewMetrics registers the service metrics on reg, reusing collectors that
// are already registered there.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{}

	var err error
	if m.backendLookups, err = registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "backend_lookups_total",
		Help:      "Thumbnail lookups per storage and outcome (hit, miss, error).",
	}, "storage", "outcome"); err != nil {
		return nil, err
	}

	if m.legacyHits, err = registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "legacy_storage_hits_total",
		Help:      "Thumbnails served from a storage marked as legacy.",
	}, "storage"); err != nil {
		return nil, err
	}

	if m.deliveries, err = registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "deliveries_total",
		Help:      "Responses for found thumbnails by status code.",
	}, "code"); err != nil {
		return nil, err
	}

	if m.defaultImages, err = registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "default_images_total",
		Help:      "Default images served in place of a missing thumbnail.",
	}, "type"); err != nil {
		return nil, err
	}

	if m.uploads, err = registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "uploads_total",
		Help:      "Processed uploads by result.",
	}, "result"); err != nil {
		return nil, err
	}

	return m, nil
}

func registerCounterVec(reg prometheus.Registerer, opts prometheus.CounterOpts, labels ...string) (*prometheus.CounterVec, error) {
	vec := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(vec); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("register metric %s: %w", opts.Name, err)
	}
	return vec, nil
}

func (m *Metrics) RecordLookup(storage string, outcome string) {
	if m == nil {
		return
	}
	m.backendLookups.WithLabelValues(storage, outcome).Inc()
}

func (m *Metrics) RecordLegacyHit(storage string) {
	if m == nil {
		return
	}
	m.legacyHits.WithLabelValues(storage).Inc()
}

func (m *Metrics) RecordDelivery(code int) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(fmt.Sprint(code)).Inc()
}

func (m *Metrics) RecordDefaultImage(mediaType string) {
	if m == nil {
		return
	}
	m.defaultImages.WithLabelValues(mediaType).Inc()
}

func (m *Metrics) RecordUpload(err error) {
	if m == nil {
		return
	}

	result := "ok"
	switch {
	case errors.Is(err, ErrInvalidInput):
		result = "invalid"
	case err != nil:
		result = "error"
	}
	m.uploads.WithLabelValues(result).Inc()
}
