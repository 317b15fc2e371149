package thumbnail_test

import (
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"thumbnail/internal/thumbnail"
)

type chain struct {
	table   *thumbnail.RouteTable
	stores  map[string]*memoryStore
	metrics *thumbnail.Metrics
	reg     *prometheus.Registry
}

func newChain(t *testing.T, legacy ...string) chain {
	t.Helper()

	stores := map[string]*memoryStore{
		"A": newMemoryStore(),
		"B": newMemoryStore(),
		"C": newMemoryStore(),
	}

	table, err := thumbnail.BuildRouteTable(thumbnail.RouteTableConfig{
		Routes:         []thumbnail.RouteConfig{{Names: []string{"acme"}, Storages: []string{"A", "B", "C"}}},
		LegacyStorages: legacy,
	}, backendFactory(stores, map[string]int{}))
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics, err := thumbnail.NewMetrics(reg)
	require.NoError(t, err)

	return chain{table: table, stores: stores, metrics: metrics, reg: reg}
}

func TestRetrieveStopsAtFirstHit(t *testing.T) {
	t.Parallel()

	c := newChain(t)
	key := thumbnail.StorageKey(testID, 400)
	c.stores["B"].add(key, testContent)
	c.stores["C"].add(key, "should never be read")

	retriever := thumbnail.NewFallbackRetriever(c.table, c.metrics)
	_, backends := c.table.Resolve("acme")

	stream, found, err := retriever.Retrieve(t.Context(), backends, key, testURL)
	require.NoError(t, err)
	require.True(t, found)
	defer stream.Close()

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	require.Equal(t, testContent, string(data))
	require.Equal(t, key, stream.ID)
	require.Equal(t, testURL, stream.OriginalURL)

	require.Equal(t, 1, c.stores["A"].getCount())
	require.Equal(t, 1, c.stores["B"].getCount())
	require.Equal(t, 0, c.stores["C"].getCount(), "storages after a hit are never queried")

	lookups := "thumbnail_backend_lookups_total"
	require.InDelta(t, 1, counterValue(t, c.reg, lookups, map[string]string{"storage": "A", "outcome": "miss"}), 0)
	require.InDelta(t, 1, counterValue(t, c.reg, lookups, map[string]string{"storage": "B", "outcome": "hit"}), 0)
	require.InDelta(t, 0, counterValue(t, c.reg, "thumbnail_legacy_storage_hits_total", map[string]string{"storage": "B"}), 0)
}

func TestRetrieveNotFound(t *testing.T) {
	t.Parallel()

	c := newChain(t)
	retriever := thumbnail.NewFallbackRetriever(c.table, c.metrics)
	_, backends := c.table.Resolve("acme")

	stream, found, err := retriever.Retrieve(t.Context(), backends, thumbnail.StorageKey(testID, 200), "")
	require.NoError(t, err, "a miss on every storage is not an error")
	require.False(t, found)
	require.Nil(t, stream)

	for name, store := range c.stores {
		require.Equalf(t, 1, store.getCount(), "storage %s", name)
		require.Zerof(t, store.openBodies(), "storage %s left a body open", name)
	}
}

func TestRetrieveTransportErrorPropagates(t *testing.T) {
	t.Parallel()

	c := newChain(t)
	key := thumbnail.StorageKey(testID, 400)
	c.stores["A"].fail(errTransport)
	c.stores["B"].add(key, testContent)

	retriever := thumbnail.NewFallbackRetriever(c.table, c.metrics)
	_, backends := c.table.Resolve("acme")

	stream, found, err := retriever.Retrieve(t.Context(), backends, key, testURL)
	require.ErrorIs(t, err, errTransport, "an error must not be treated as a miss")
	require.False(t, found)
	require.Nil(t, stream)
	require.Equal(t, 0, c.stores["B"].getCount())
}

func TestRetrieveLegacyHit(t *testing.T) {
	t.Parallel()

	c := newChain(t, "C")
	key := thumbnail.StorageKey(testID, 400)
	c.stores["C"].add(key, testContent)

	retriever := thumbnail.NewFallbackRetriever(c.table, c.metrics)
	_, backends := c.table.Resolve("acme")

	stream, found, err := retriever.Retrieve(t.Context(), backends, key, testURL)
	require.NoError(t, err)
	require.True(t, found)
	require.NoError(t, stream.Close())

	require.InDelta(t, 1, counterValue(t, c.reg, "thumbnail_legacy_storage_hits_total", map[string]string{"storage": "C"}), 0)
}
