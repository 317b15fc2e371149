// Package config loads the YAML configuration of the thumbnail server.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"thumbnail/internal/thumbnail"
)

const (
	StorageTypeS3    = "s3"
	StorageTypeLocal = "local"

	DefaultListen   = ":8080"
	DefaultLogLevel = "info"

	EnvConfig   = "THUMBNAIL_CONFIG"
	EnvListen   = "THUMBNAIL_LISTEN"
	EnvLogLevel = "THUMBNAIL_LOG_LEVEL"
)

type Config struct {
	Listen         string             `yaml:"listen"`
	LogLevel       string             `yaml:"log_level"`
	Metrics        bool               `yaml:"metrics"`
	MaxUploadSize  int64              `yaml:"max_upload_size"`
	UploadStorage  string             `yaml:"upload_storage"`
	LegacyStorages []string           `yaml:"legacy_storages"`
	Routes         []Route            `yaml:"routes"`
	Storages       map[string]Storage `yaml:"storages"`
	IIIF           IIIF               `yaml:"iiif"`
	Auth           Auth               `yaml:"auth"`
}

// Route maps one or more host names to an ordered list of storage names.
type Route struct {
	Names    []string `yaml:"names"`
	Storages []string `yaml:"storages"`
}

// Storage defines one named object store. Type selects which of the
// remaining fields apply.
type Storage struct {
	Type string `yaml:"type"`

	// s3
	Key            string `yaml:"key"`
	Secret         string `yaml:"secret"`
	Region         string `yaml:"region"`
	Bucket         string `yaml:"bucket"`
	Endpoint       string `yaml:"endpoint"`
	Secure         bool   `yaml:"secure"`
	MaxConnections int    `yaml:"max_connections"`

	// local
	DataDir string `yaml:"data_dir"`
}

type IIIF struct {
	Timeout      time.Duration `yaml:"timeout"`
	MaxSizeMB    int           `yaml:"max_size_mb"`
	CacheEntries int           `yaml:"cache_entries"`
}

// Auth holds the credentials that grant write access. Uploads are not
// authenticated when it is empty.
type Auth struct {
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	Tokens   []string `yaml:"tokens"`
}

// Enabled reports whether any credential is configured.
func (a Auth) Enabled() bool {
	return a.Username != "" || len(a.Tokens) > 0
}

// Default returns a configuration with every optional field set.
func Default() Config {
	return Config{
		Listen:   DefaultListen,
		LogLevel: DefaultLogLevel,
		Metrics:  true,
		IIIF: IIIF{
			Timeout:      thumbnail.DefaultIIIFTimeout,
			MaxSizeMB:    thumbnail.DefaultIIIFMaxSizeMB,
			CacheEntries: thumbnail.DefaultIIIFCacheEntries,
		},
	}
}

// Load reads the configuration file at path, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// Parse decodes a YAML document on top of Default, applies environment
// overrides and validates the result. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: parse yaml: %w", thumbnail.ErrConfiguration, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// getenv returns the value of the environment variable named by key or
// fallback if the variable is not present.
func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func (c *Config) applyEnv() {
	c.Listen = getenv(EnvListen, c.Listen)
	c.LogLevel = getenv(EnvLogLevel, c.LogLevel)
}

// Validate checks that the routes and storages describe a servable setup.
// All violations are reported, wrapped in thumbnail.ErrConfiguration.
func (c Config) Validate() error {
	var errs []error

	if len(c.Routes) == 0 {
		errs = append(errs, errors.New("no routes configured"))
	}

	for i, route := range c.Routes {
		if len(route.Names) == 0 {
			errs = append(errs, fmt.Errorf("route %d has no names", i))
		}
		if len(route.Storages) == 0 {
			errs = append(errs, fmt.Errorf("route %d (%s) has no storages", i, strings.Join(route.Names, ", ")))
		}
		for _, name := range route.Storages {
			if err := c.checkStorage(name); err != nil {
				errs = append(errs, fmt.Errorf("route %d: %w", i, err))
			}
		}
	}

	if c.UploadStorage != "" {
		if c.UploadStorage == thumbnail.IIIFBackendName {
			errs = append(errs, fmt.Errorf("upload storage %q is read-only", c.UploadStorage))
		} else if err := c.checkStorage(c.UploadStorage); err != nil {
			errs = append(errs, fmt.Errorf("upload storage: %w", err))
		}
	}

	for _, name := range c.LegacyStorages {
		if err := c.checkStorage(name); err != nil {
			errs = append(errs, fmt.Errorf("legacy storages: %w", err))
		}
	}

	for name, storage := range c.Storages {
		if err := storage.validate(); err != nil {
			errs = append(errs, fmt.Errorf("storage %q: %w", name, err))
		}
	}

	if c.Auth.Username != "" && c.Auth.Password == "" {
		errs = append(errs, errors.New("auth username is set without a password"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", thumbnail.ErrConfiguration, errors.Join(errs...))
	}

	return nil
}

func (c Config) checkStorage(name string) error {
	if name == thumbnail.IIIFBackendName {
		return nil
	}
	if _, ok := c.Storages[name]; !ok {
		return fmt.Errorf("storage %q is not defined", name)
	}
	return nil
}

func (s Storage) validate() error {
	switch s.Type {
	case StorageTypeS3:
		var missing []string
		for field, value := range map[string]string{"key": s.Key, "secret": s.Secret, "region": s.Region, "bucket": s.Bucket} {
			if value == "" {
				missing = append(missing, field)
			}
		}
		if len(missing) > 0 {
			slices.Sort(missing)
			return fmt.Errorf("s3 storage is missing %s", strings.Join(missing, ", "))
		}
	case StorageTypeLocal:
		if s.DataDir == "" {
			return errors.New("local storage is missing data_dir")
		}
		if s.Bucket == "" {
			return errors.New("local storage is missing bucket")
		}
	default:
		return fmt.Errorf("unknown storage type %q", s.Type)
	}
	return nil
}

// RouteTable converts the routes into the form thumbnail.BuildRouteTable
// expects.
func (c Config) RouteTable() thumbnail.RouteTableConfig {
	routes := make([]thumbnail.RouteConfig, 0, len(c.Routes))
	for _, route := range c.Routes {
		routes = append(routes, thumbnail.RouteConfig{
			Names:    route.Names,
			Storages: route.Storages,
		})
	}

	return thumbnail.RouteTableConfig{
		Routes:         routes,
		UploadStorage:  c.UploadStorage,
		LegacyStorages: c.LegacyStorages,
	}
}

func (c Config) IIIFConfig() thumbnail.IIIFConfig {
	return thumbnail.IIIFConfig{
		Timeout:      c.IIIF.Timeout,
		MaxSizeMB:    c.IIIF.MaxSizeMB,
		CacheEntries: c.IIIF.CacheEntries,
	}
}
