package main

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"

	"thumbnail/internal/config"
	"thumbnail/internal/thumbnail"
)

func testPNG(t *testing.T) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, 640, 480))
	for y := range 480 {
		for x := range 640 {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testConfig(t *testing.T) config.Config {
	t.Helper()

	dataDir := t.TempDir()
	cfg, err := config.Parse(fmt.Appendf(nil, `
upload_storage: logos
legacy_storages: [archive]
routes:
  - names: [acme]
    storages: [logos, archive, remote, IIIF-IS]
storages:
  logos:   {type: local, data_dir: %[1]q, bucket: logos}
  archive: {type: local, data_dir: %[1]q, bucket: archive}
  remote:  {type: s3, key: k, secret: s, region: eu-central-1, bucket: thumbs, endpoint: "http://127.0.0.1:9000"}
`, dataDir))
	require.NoError(t, err)
	return cfg
}

func TestBackendFactory(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	factory := newBackendFactory(t.Context(), cfg)
	defer func() {
		require.NoError(t, factory.Close())
	}()

	routes, err := thumbnail.BuildRouteTable(cfg.RouteTable(), factory.Create)
	require.NoError(t, err)

	uploader, ok := routes.Uploader()
	require.True(t, ok)
	require.Equal(t, "logos", uploader.Name())

	route, backends := routes.Resolve("acme.europeana.eu")
	require.Equal(t, "acme", route)

	names := make([]string, 0, len(backends))
	for _, b := range backends {
		names = append(names, b.Name())
	}
	require.Equal(t, []string{"logos", "archive", "remote", thumbnail.IIIFBackendName}, names)
	require.True(t, routes.IsLegacy("archive"))

	require.NoError(t, uploader.Process(t.Context(), "cafebabe", testPNG(t)))

	stream, found, err := backends[0].Retrieve(t.Context(), thumbnail.StorageKey("cafebabe", 200), "")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "image/jpeg", stream.ContentType())
	require.NoError(t, stream.Close())
}

func TestBackendFactoryUndefinedStorage(t *testing.T) {
	t.Parallel()

	factory := newBackendFactory(t.Context(), testConfig(t))
	defer factory.Close()

	_, err := factory.Create("missing")
	require.Error(t, err)
}

func TestNewAuthEngine(t *testing.T) {
	t.Parallel()

	require.Nil(t, newAuthEngine(config.Auth{}))
	require.NotNil(t, newAuthEngine(config.Auth{Username: "u", Password: "p"}))
	require.NotNil(t, newAuthEngine(config.Auth{Tokens: []string{"t"}}))
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	_, err := newLogger("debug")
	require.NoError(t, err)

	_, err = newLogger("loud")
	require.ErrorIs(t, err, thumbnail.ErrConfiguration)
}
