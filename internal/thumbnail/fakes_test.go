package thumbnail_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"thumbnail/internal/thumbnail"
	"thumbnail/pkg/storage"
)

const (
	testURL     = "https://test.europeana.eu/thumbnail.jpg"
	testID      = "7463a193a468a1ff1a0c0f7d5933e54b"
	testETag    = "1234test"
	testContent = "This is some dummy text data instead of an actual image file\nAnd here is another line just to make the content a bit larger"
	testMedium  = "medium-sized test data"
)

var (
	testLastModified = time.Unix(1600000000, 0).UTC()

	errTransport = errors.New("connection reset by peer")
)

// trackingBody records whether it was closed and how often.
type trackingBody struct {
	io.Reader
	closes atomic.Int32
}

func newTrackingBody(content string) *trackingBody {
	return &trackingBody{Reader: bytes.NewReader([]byte(content))}
}

func (b *trackingBody) Close() error {
	b.closes.Add(1)
	return nil
}

type storedObject struct {
	data     []byte
	metadata storage.Metadata
}

// memoryStore is an in-memory storage.ObjectStore that hands out tracked
// bodies and records every call.
type memoryStore struct {
	mu      sync.Mutex
	objects map[string]storedObject
	bodies  []*trackingBody
	puts    []string
	gets    int
	err     error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string]storedObject{}}
}

// add stores content under key with the standard test metadata.
func (s *memoryStore) add(key string, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = storedObject{
		data: []byte(content),
		metadata: storage.Metadata{
			ContentType:   "image/jpeg",
			ContentLength: int64(len(content)),
			LengthKnown:   true,
			ETag:          testETag,
			LastModified:  testLastModified,
		},
	}
}

func (s *memoryStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	_, ok := s.objects[key]
	return ok, nil
}

func (s *memoryStore) Get(ctx context.Context, key string) (*storage.Object, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.err != nil {
		return nil, false, s.err
	}
	obj, ok := s.objects[key]
	if !ok {
		return nil, false, nil
	}
	body := newTrackingBody(string(obj.data))
	s.bodies = append(s.bodies, body)
	return &storage.Object{Body: body, Metadata: obj.metadata}, true, nil
}

func (s *memoryStore) Put(ctx context.Context, key string, contentType string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.puts = append(s.puts, key)
	s.objects[key] = storedObject{
		data: bytes.Clone(data),
		metadata: storage.Metadata{
			ContentType:   contentType,
			ContentLength: int64(len(data)),
			LengthKnown:   true,
			LastModified:  testLastModified,
		},
	}
	return nil
}

func (s *memoryStore) object(key string) (storedObject, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	return obj, ok
}

// fail makes every subsequent call return err.
func (s *memoryStore) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *memoryStore) putKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.puts)
}

func (s *memoryStore) getCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

func (s *memoryStore) openBodies() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	open := 0
	for _, b := range s.bodies {
		if b.closes.Load() == 0 {
			open++
		}
	}
	return open
}

// backendFactory returns a BackendFactory over stores, counting how often
// each name is created.
func backendFactory(stores map[string]*memoryStore, created map[string]int) thumbnail.BackendFactory {
	return func(name string) (thumbnail.Backend, error) {
		created[name]++
		store, ok := stores[name]
		if !ok {
			return nil, errors.New("no credentials configured")
		}
		return thumbnail.NewStoreBackend(name, store), nil
	}
}

// counterValue returns the value of the counter name whose labels include
// labels, or 0 when there is none.
func counterValue(t *testing.T, g prometheus.Gatherer, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := g.Gather()
	require.NoError(t, err)

	for _, family := range families {
		if family.GetName() != name {
			continue
		}

	metrics:
		for _, metric := range family.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if want, ok := labels[pair.GetName()]; ok && want != pair.GetValue() {
					continue metrics
				}
			}
			return metric.GetCounter().GetValue()
		}
	}

	return 0
}
