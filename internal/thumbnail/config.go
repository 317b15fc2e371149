package thumbnail

import (
	"github.com/prometheus/client_golang/prometheus"

	"thumbnail/internal/auth"
)

// DefaultMaxUploadSize bounds the multipart body of an upload request.
const DefaultMaxUploadSize = 32 << 20

type Config struct {
	Routes        *RouteTable
	Authenticator auth.AuthEngine
	Registerer    prometheus.Registerer
	Gatherer      prometheus.Gatherer
	DefaultImages DefaultImages
	MaxUploadSize int64
}

type ConfigOption func(*Config)

func WithRouteTable(routes *RouteTable) ConfigOption {
	return func(cfg *Config) {
		cfg.Routes = routes
	}
}

// WithAuthEngine guards uploads with authenticator. Without it uploads are
// not authenticated.
func WithAuthEngine(authenticator auth.AuthEngine) ConfigOption {
	return func(cfg *Config) {
		cfg.Authenticator = authenticator
	}
}

// WithRegisterer registers the service metrics on reg instead of the
// default registerer.
func WithRegisterer(reg prometheus.Registerer) ConfigOption {
	return func(cfg *Config) {
		cfg.Registerer = reg
	}
}

// WithMetrics serves gatherer on GET /metrics.
func WithMetrics(gatherer prometheus.Gatherer) ConfigOption {
	return func(cfg *Config) {
		cfg.Gatherer = gatherer
	}
}

func WithDefaultImages(images DefaultImages) ConfigOption {
	return func(cfg *Config) {
		cfg.DefaultImages = images
	}
}

func WithMaxUploadSize(size int64) ConfigOption {
	return func(cfg *Config) {
		cfg.MaxUploadSize = size
	}
}

func NewConfig(opts ...ConfigOption) Config {
	cfg := Config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
