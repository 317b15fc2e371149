package thumbnail

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"thumbnail/pkg/storage"
)

// Backend is one source of thumbnail bytes in a fallback chain.
type Backend interface {
	// Name is the configured storage name, unique within a route table.
	Name() string

	// Exists probes for id without fetching content.
	Exists(ctx context.Context, id string) (bool, error)

	// Retrieve opens the thumbnail stored under id. found is false, with a
	// nil error, when the backend does not hold it. originalURL is the
	// source URL for URL based lookups and may be empty.
	Retrieve(ctx context.Context, id string, originalURL string) (stream *MediaStream, found bool, err error)
}

// StoreBackend serves thumbnails out of an ObjectStore.
type StoreBackend struct {
	name  string
	store storage.ObjectStore
}

// NewStoreBackend wraps store under the given storage name.
func NewStoreBackend(name string, store storage.ObjectStore) *StoreBackend {
	return &StoreBackend{name: name, store: store}
}

func (b *StoreBackend) Name() string {
	return b.name
}

func (b *StoreBackend) Exists(ctx context.Context, id string) (bool, error) {
	exists, err := b.store.Exists(ctx, id)
	if err != nil {
		return false, fmt.Errorf("storage %s: %w", b.name, err)
	}
	return exists, nil
}

func (b *StoreBackend) Retrieve(ctx context.Context, id string, originalURL string) (*MediaStream, bool, error) {
	obj, found, err := b.store.Get(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("storage %s: %w", b.name, err)
	}
	if !found {
		return nil, false, nil
	}

	metadata := obj.Metadata
	return NewMediaStream(id, originalURL, obj.Body, &metadata), true, nil
}

// UploadBackend is a StoreBackend that also accepts uploaded images and
// stores the derived thumbnails for them.
type UploadBackend struct {
	*StoreBackend

	processor Processor
}

// NewUploadBackend creates the write target named name.
func NewUploadBackend(name string, store storage.ObjectStore, processor Processor) *UploadBackend {
	return &UploadBackend{
		StoreBackend: NewStoreBackend(name, store),
		processor:    processor,
	}
}

// Process generates every size in Sizes from image and stores each under
// StorageKey(id, size). Existing objects are replaced.
func (b *UploadBackend) Process(ctx context.Context, id string, image []byte) error {
	if len(image) == 0 {
		return ErrEmptyFile
	}

	derived := make([][]byte, len(Sizes))

	g, _ := errgroup.WithContext(ctx)
	for i, size := range Sizes {
		g.Go(func() error {
			slog.Debug("Generating image", "id", id, "width", int(size))
			data, err := b.processor.Process(image, int(size))
			if err != nil {
				return err
			}
			derived[i] = data
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	for i, size := range Sizes {
		key := StorageKey(id, int(size))

		exists, err := b.store.Exists(ctx, key)
		if err != nil {
			return fmt.Errorf("storage %s: %w", b.name, err)
		}

		if exists {
			slog.Warn("Replacing stored object", "storage", b.name, "key", key)
		}

		if err := b.store.Put(ctx, key, b.processor.ContentType(), derived[i]); err != nil {
			return fmt.Errorf("storage %s: %w", b.name, err)
		}
	}

	return nil
}
