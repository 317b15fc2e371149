package thumbnail_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"thumbnail/internal/thumbnail"
)

func TestStoreBackendRetrieve(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	key := thumbnail.StorageKey(testID, 200)
	store.add(key, testMedium)

	b := thumbnail.NewStoreBackend("default", store)
	require.Equal(t, "default", b.Name())

	exists, err := b.Exists(t.Context(), key)
	require.NoError(t, err)
	require.True(t, exists)

	stream, found, err := b.Retrieve(t.Context(), key, testURL)
	require.NoError(t, err)
	require.True(t, found)
	defer stream.Close()

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	require.Equal(t, testMedium, string(data))
	require.Equal(t, testETag, stream.ETag())
	require.Equal(t, "image/jpeg", stream.ContentType())

	size, ok := stream.ContentLength()
	require.True(t, ok)
	require.Equal(t, int64(len(testMedium)), size)
}

func TestStoreBackendRetrieveMissing(t *testing.T) {
	t.Parallel()

	b := thumbnail.NewStoreBackend("default", newMemoryStore())

	stream, found, err := b.Retrieve(t.Context(), thumbnail.StorageKey(testID, 400), testURL)
	require.NoError(t, err)
	require.False(t, found)
	require.Nil(t, stream)

	exists, err := b.Exists(t.Context(), thumbnail.StorageKey(testID, 400))
	require.NoError(t, err)
	require.False(t, exists)
}

func TestStoreBackendTransportError(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	store.fail(errTransport)
	b := thumbnail.NewStoreBackend("default", store)

	_, found, err := b.Retrieve(t.Context(), thumbnail.StorageKey(testID, 400), testURL)
	require.ErrorIs(t, err, errTransport)
	require.False(t, found)

	_, err = b.Exists(t.Context(), thumbnail.StorageKey(testID, 400))
	require.ErrorIs(t, err, errTransport)
}

func TestUploadBackendProcess(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	b := thumbnail.NewUploadBackend("logos", store, thumbnail.NewImageProcessor())

	const id = "0123456789abcdef"
	source := testImage(t, 800, 400)

	require.NoError(t, b.Process(t.Context(), id, source))
	require.Equal(t, []string{id + "-LARGE", id + "-MEDIUM"}, store.puts, "LARGE is stored before MEDIUM")

	large, ok := store.object(id + "-LARGE")
	require.True(t, ok)
	require.Equal(t, "image/jpeg", large.metadata.ContentType)

	medium, ok := store.object(id + "-MEDIUM")
	require.True(t, ok)
	require.Less(t, len(medium.data), len(large.data))

	// A second upload replaces the objects with identical bytes.
	require.NoError(t, b.Process(t.Context(), id, source))
	require.Len(t, store.puts, 4)

	again, ok := store.object(id + "-LARGE")
	require.True(t, ok)
	require.True(t, bytes.Equal(large.data, again.data))
}

func TestUploadBackendProcessErrors(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	b := thumbnail.NewUploadBackend("logos", store, thumbnail.NewImageProcessor())

	require.ErrorIs(t, b.Process(t.Context(), "0123456789abcdef", nil), thumbnail.ErrEmptyFile)
	require.ErrorIs(t, b.Process(t.Context(), "0123456789abcdef", []byte("not an image")), thumbnail.ErrProcessingFailed)
	require.Empty(t, store.puts, "nothing is stored when processing fails")

	store.fail(errTransport)
	require.ErrorIs(t, b.Process(t.Context(), "0123456789abcdef", testImage(t, 50, 50)), errTransport)
}
