package imagery

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMosaicName(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		"planet_medres_normalized_analytic_2023-06_mosaic",
		MosaicName("2023-06"))
}

// fakeProvider serves a single mosaic with two quads and counts downloads.
type fakeProvider struct {
	server    *httptest.Server
	downloads atomic.Int32
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	p := &fakeProvider{}
	mux := http.NewServeMux()

	mux.HandleFunc("/mosaics", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name__is")
		if !strings.Contains(name, "2023-06") {
			fmt.Fprint(w, `{"mosaics":[]}`)
			return
		}
		fmt.Fprint(w, `{"mosaics":[{"id":"mosaic-1"}]}`)
	})
	mux.HandleFunc("/mosaics/mosaic-1/quads", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"items":[
			{"id":"457-1102","bbox":[-79.8,0.4,-79.6,0.6],"_links":{"download":"%s/download/457-1102"}},
			{"id":"456-1102","bbox":[-80.0,0.4,-79.8,0.6],"_links":{"download":"%s/download/456-1102"}}
		]}`, p.server.URL, p.server.URL)
	})
	mux.HandleFunc("/download/", func(w http.ResponseWriter, r *http.Request) {
		p.downloads.Add(1)
		fmt.Fprint(w, "tile-bytes")
	})

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	return &Client{
		http:     http.DefaultClient,
		baseURL:  baseURL,
		cacheDir: t.TempDir(),
	}
}

func TestFetchTiles(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider(t)
	client := testClient(t, provider.server.URL)
	bounds := orb.Bound{Min: orb.Point{-80, 0.4}, Max: orb.Point{-79.6, 0.6}}

	quads, err := client.FetchTiles(context.Background(), bounds, "2023-06")
	require.NoError(t, err)
	require.Len(t, quads, 2)

	// Sorted by quad id regardless of listing order.
	assert.Equal(t, "456-1102", quads[0].ID)
	assert.Equal(t, "457-1102", quads[1].ID)
	assert.InDelta(t, -80.0, quads[0].BBox.Min[0], 1e-9)

	for _, q := range quads {
		data, err := os.ReadFile(q.LocalPath)
		require.NoError(t, err)
		assert.Equal(t, "tile-bytes", string(data))
		assert.True(t, strings.HasSuffix(q.LocalPath, "_2023_06.tif"))
		assert.Equal(t, filepath.Join(client.cacheDir, "2023", "06"), filepath.Dir(q.LocalPath))
	}
	assert.Equal(t, int32(2), provider.downloads.Load())

	// A second fetch serves everything from the cache.
	_, err = client.FetchTiles(context.Background(), bounds, "2023-06")
	require.NoError(t, err)
	assert.Equal(t, int32(2), provider.downloads.Load(), "cached quads are not re-downloaded")
}

func TestFetchTilesUnknownPeriod(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider(t)
	client := testClient(t, provider.server.URL)
	bounds := orb.Bound{Min: orb.Point{-80, 0.4}, Max: orb.Point{-79.6, 0.6}}

	_, err := client.FetchTiles(context.Background(), bounds, "2019-01")
	assert.ErrorIs(t, err, ErrImageryUnavailable)
}

func TestGetJSONNotFound(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(server.Close)

	client := testClient(t, server.URL)
	_, err := client.getJSON(context.Background(), server.URL+"/mosaics")
	assert.ErrorIs(t, err, ErrImageryUnavailable)
}

func TestGetJSONRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	}))
	t.Cleanup(server.Close)

	client := testClient(t, server.URL)
	body, err := client.getJSON(context.Background(), server.URL+"/flaky")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetJSONExhaustsRetries(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	client := testClient(t, server.URL)
	_, err := client.getJSON(context.Background(), server.URL+"/down")
	assert.ErrorIs(t, err, ErrTransientProvider)
}

func TestDownloadQuadCleansUpPartialFile(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	client := testClient(t, server.URL)
	target := filepath.Join(t.TempDir(), "quad.tif")
	err := client.downloadQuad(context.Background(), server.URL+"/q", target)
	require.Error(t, err)

	_, statErr := os.Stat(target)
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(target + ".tmp")
	assert.True(t, os.IsNotExist(statErr))
}
