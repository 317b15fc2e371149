package storage_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"thumbnail/internal/storage"
)

const (
	fakeBucket    = "thumbs"
	fakeKey       = "7463a193a468a1ff1a0c0f7d5933e54b-LARGE"
	fakeDeniedKey = "forbidden-LARGE"
	fakeContent   = "This is some dummy text data instead of an actual image file"
)

var fakeLastModified = time.Unix(1600000000, 0).UTC()

// fakeS3 answers the handful of S3 requests MinioStorage issues against a
// single in-memory object.
type fakeS3 struct {
	mu   sync.Mutex
	puts map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/"+fakeBucket+"/")

	switch {
	case r.Method == http.MethodPut:
		_, _ = io.Copy(io.Discard, r.Body)
		f.mu.Lock()
		f.puts[key] = r.Header.Get("Content-Type")
		f.mu.Unlock()
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)

	case key == fakeDeniedKey:
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		if r.Method != http.MethodHead {
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>Access Denied</Message></Error>`)
		}

	case key != fakeKey:
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		if r.Method != http.MethodHead {
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message><Key>`+key+`</Key></Error>`)
		}

	default:
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Content-Length", strconv.Itoa(len(fakeContent)))
		w.Header().Set("ETag", `"1234test"`)
		w.Header().Set("Last-Modified", fakeLastModified.Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			_, _ = io.WriteString(w, fakeContent)
		}
	}
}

func newFakeS3Storage(t *testing.T) (*storage.MinioStorage, *fakeS3) {
	t.Helper()

	fake := &fakeS3{puts: map[string]string{}}
	httpSrv := httptest.NewServer(fake)
	t.Cleanup(httpSrv.Close)

	store, err := storage.NewMinioStorage(storage.MinioConfig{
		Endpoint:  httpSrv.URL,
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Region:    "us-east-1",
		Bucket:    fakeBucket,
	})
	require.NoError(t, err, "NewMinioStorage error")

	return store, fake
}

func TestMinioStorageExists(t *testing.T) {
	t.Parallel()

	store, _ := newFakeS3Storage(t)

	exists, err := store.Exists(t.Context(), fakeKey)
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = store.Exists(t.Context(), "missing-LARGE")
	require.NoError(t, err, "a missing key is not an error")
	require.False(t, exists)
}

func TestMinioStorageGet(t *testing.T) {
	t.Parallel()

	store, _ := newFakeS3Storage(t)

	obj, found, err := store.Get(t.Context(), fakeKey)
	require.NoError(t, err)
	require.True(t, found)
	defer obj.Body.Close()

	data, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	require.Equal(t, fakeContent, string(data))

	require.Equal(t, "image/jpeg", obj.Metadata.ContentType)
	require.Equal(t, int64(len(fakeContent)), obj.Metadata.ContentLength)
	require.True(t, obj.Metadata.HasContentLength())
	require.Equal(t, "1234test", obj.Metadata.ETag)
	require.True(t, fakeLastModified.Equal(obj.Metadata.LastModified))
}

func TestMinioStorageGetMissing(t *testing.T) {
	t.Parallel()

	store, _ := newFakeS3Storage(t)

	obj, found, err := store.Get(t.Context(), "missing-LARGE")
	require.NoError(t, err, "absence must not be reported as an error")
	require.False(t, found)
	require.Nil(t, obj)
}

func TestMinioStorageTransportErrorPropagates(t *testing.T) {
	t.Parallel()

	store, _ := newFakeS3Storage(t)

	_, found, err := store.Get(t.Context(), fakeDeniedKey)
	require.Error(t, err)
	require.False(t, found)

	_, err = store.Exists(t.Context(), fakeDeniedKey)
	require.Error(t, err)
}

func TestMinioStoragePut(t *testing.T) {
	t.Parallel()

	store, fake := newFakeS3Storage(t)

	require.NoError(t, store.Put(t.Context(), "cafebabe-MEDIUM", "image/jpeg", []byte("jpeg bytes")))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Equal(t, "image/jpeg", fake.puts["cafebabe-MEDIUM"])
}

func TestNewMinioStorageRequiresBucket(t *testing.T) {
	t.Parallel()

	_, err := storage.NewMinioStorage(storage.MinioConfig{Endpoint: "localhost:9000"})
	require.Error(t, err)
}
