package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"thumbnail/internal/config"
	"thumbnail/internal/storage"
	"thumbnail/internal/thumbnail"
	pkgstorage "thumbnail/pkg/storage"
)

// backendFactory creates the backends named in the configuration. Stores
// that hold resources are tracked so they can be released on shutdown.
type backendFactory struct {
	ctx     context.Context
	cfg     config.Config
	closers []io.Closer
}

func newBackendFactory(ctx context.Context, cfg config.Config) *backendFactory {
	return &backendFactory{ctx: ctx, cfg: cfg}
}

// Create implements thumbnail.BackendFactory.
func (f *backendFactory) Create(name string) (thumbnail.Backend, error) {
	if name == thumbnail.IIIFBackendName {
		slog.Info("Setting up new client", "storage", name, "type", "iiif")
		backend, err := thumbnail.NewIIIFBackend(f.cfg.IIIFConfig(), nil)
		if err != nil {
			return nil, err
		}
		return backend, nil
	}

	store, err := f.openStore(name)
	if err != nil {
		return nil, err
	}

	if name == f.cfg.UploadStorage {
		return thumbnail.NewUploadBackend(name, store, thumbnail.NewImageProcessor()), nil
	}

	return thumbnail.NewStoreBackend(name, store), nil
}

func (f *backendFactory) openStore(name string) (pkgstorage.ObjectStore, error) {
	def, ok := f.cfg.Storages[name]
	if !ok {
		return nil, fmt.Errorf("storage %q is not defined", name)
	}

	switch def.Type {
	case config.StorageTypeS3:
		slog.Info("Setting up new client", "storage", name, "type", def.Type, "endpoint", def.Endpoint, "region", def.Region, "bucket", def.Bucket)
		store, err := storage.NewMinioStorage(storage.MinioConfig{
			Endpoint:       def.Endpoint,
			AccessKey:      def.Key,
			SecretKey:      def.Secret,
			Region:         def.Region,
			Bucket:         def.Bucket,
			Secure:         def.Secure,
			MaxConnections: def.MaxConnections,
		})
		if err != nil {
			return nil, err
		}
		return store, nil

	case config.StorageTypeLocal:
		slog.Info("Setting up new client", "storage", name, "type", def.Type, "data_dir", def.DataDir, "bucket", def.Bucket)
		store, err := storage.NewLocalFileStorage(f.ctx, def.DataDir, def.Bucket)
		if err != nil {
			return nil, err
		}
		f.closers = append(f.closers, store)
		return store, nil

	default:
		return nil, fmt.Errorf("storage %q has unknown type %q", name, def.Type)
	}
}

// Close releases every store opened by the factory.
func (f *backendFactory) Close() error {
	var errs []error
	for _, c := range f.closers {
		errs = append(errs, c.Close())
	}
	f.closers = nil
	return errors.Join(errs...)
}
