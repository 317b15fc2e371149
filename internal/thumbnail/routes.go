package thumbnail

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strings"
)

// RouteConfig maps one or more route names (top level host labels) to an
// ordered list of storage names.
type RouteConfig struct {
	Names    []string
	Storages []string
}

// RouteTableConfig is everything needed to build a RouteTable.
type RouteTableConfig struct {
	// Routes in configuration order. The first name of the first route is
	// the default route.
	Routes []RouteConfig

	// UploadStorage names the storage that receives uploads. Empty disables
	// uploading.
	UploadStorage string

	// LegacyStorages lists storages whose hits are reported so that their
	// content can be migrated.
	LegacyStorages []string
}

// BackendFactory creates the backend for a storage name. It is called at
// most once per name while building a RouteTable.
type BackendFactory func(name string) (Backend, error)

// Uploader is a Backend that can store derived thumbnails for an uploaded
// image.
type Uploader interface {
	Backend
	Process(ctx context.Context, id string, image []byte) error
}

// RouteTable is the immutable mapping from route names to fallback chains.
// It is safe for concurrent use.
type RouteTable struct {
	names        []string
	routes       map[string][]Backend
	defaultRoute string
	uploader     Uploader
	legacy       map[string]struct{}
}

// BuildRouteTable creates every backend referenced by cfg through factory,
// sharing one instance per storage name, and assembles the route table.
func BuildRouteTable(cfg RouteTableConfig, factory BackendFactory) (*RouteTable, error) {
	if len(cfg.Routes) == 0 {
		return nil, fmt.Errorf("%w: no routes defined", ErrConfiguration)
	}

	t := &RouteTable{
		routes: make(map[string][]Backend),
		legacy: make(map[string]struct{}),
	}

	backends := make(map[string]Backend)
	backend := func(name string) (Backend, error) {
		if b, ok := backends[name]; ok {
			slog.Debug("Reusing existing storage", "storage", name)
			return b, nil
		}

		b, err := factory(name)
		if err != nil {
			return nil, fmt.Errorf("%w: storage %s: %v", ErrConfiguration, name, err)
		}
		if b == nil {
			return nil, fmt.Errorf("%w: no storage defined with name %s", ErrConfiguration, name)
		}

		backends[name] = b
		return b, nil
	}

	for i, route := range cfg.Routes {
		if len(route.Names) == 0 {
			return nil, fmt.Errorf("%w: route %d has no names", ErrConfiguration, i)
		}
		if len(route.Storages) == 0 {
			return nil, fmt.Errorf("%w: route %s has no storages", ErrConfiguration, route.Names[0])
		}

		chain := make([]Backend, 0, len(route.Storages))
		for _, storageName := range route.Storages {
			b, err := backend(storageName)
			if err != nil {
				return nil, err
			}
			chain = append(chain, b)
		}

		for _, name := range route.Names {
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "" {
				return nil, fmt.Errorf("%w: route %d has an empty name", ErrConfiguration, i)
			}

			if _, exists := t.routes[name]; exists {
				slog.Warn("Ignoring duplicate route", "route", name)
				continue
			}

			slog.Info("Adding route", "route", name, "storages", route.Storages)
			t.routes[name] = chain
			t.names = append(t.names, name)
			if t.defaultRoute == "" {
				t.defaultRoute = name
			}
		}
	}

	if cfg.UploadStorage != "" {
		b, err := backend(cfg.UploadStorage)
		if err != nil {
			return nil, err
		}

		uploader, ok := b.(Uploader)
		if !ok {
			return nil, fmt.Errorf("%w: storage %s does not accept uploads", ErrConfiguration, cfg.UploadStorage)
		}
		t.uploader = uploader
	}

	for _, name := range cfg.LegacyStorages {
		t.legacy[name] = struct{}{}
	}

	return t, nil
}

// DefaultRoute is the route used when no route matches a host.
func (t *RouteTable) DefaultRoute() string {
	return t.defaultRoute
}

// RouteNames returns all route names in configuration order.
func (t *RouteTable) RouteNames() []string {
	return slices.Clone(t.names)
}

// Backends returns the fallback chain of a route.
func (t *RouteTable) Backends(route string) ([]Backend, bool) {
	chain, ok := t.routes[route]
	return chain, ok
}

// Uploader returns the upload target, if uploading is enabled.
func (t *RouteTable) Uploader() (Uploader, bool) {
	return t.uploader, t.uploader != nil
}

// IsLegacy reports whether storage is marked as legacy.
func (t *RouteTable) IsLegacy(storage string) bool {
	_, ok := t.legacy[storage]
	return ok
}

// Resolve picks the fallback chain for host. The top level label of host
// (everything before the first '.') is matched exactly against the route
// names first, then each route name is tried as a substring of the label,
// and finally the default route is used.
func (t *RouteTable) Resolve(host string) (route string, backends []Backend) {
	label := strings.ToLower(host)
	if i := strings.IndexByte(label, '.'); i >= 0 {
		label = label[:i]
	}

	if chain, ok := t.routes[label]; ok {
		return label, chain
	}

	for _, name := range t.names {
		if strings.Contains(label, name) {
			return name, t.routes[name]
		}
	}

	slog.Warn("No route configured for host, using default route", "host", host, "route", t.defaultRoute)
	return t.defaultRoute, t.routes[t.defaultRoute]
}

// RoutingHost returns the host name used to route r. The port is dropped,
// except for localhost where it is kept so that several routes can be
// exercised on one machine.
func RoutingHost(r *http.Request) string {
	host, port, err := net.SplitHostPort(r.Host)
	if err != nil {
		host, port = r.Host, ""
	}

	if strings.EqualFold(host, "localhost") && port != "" {
		return host + ":" + port
	}

	return host
}
