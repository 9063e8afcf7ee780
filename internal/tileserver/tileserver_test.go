package tileserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"mandelview/internal/fractal"
	"mandelview/internal/metrics"
	"mandelview/pkg/tiles"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingPipeline struct {
	calls atomic.Int32
	err   error
}

func (p *countingPipeline) Render(req fractal.ComputeRequest) (fractal.PixelBuffer, error) {
	p.calls.Add(1)
	if p.err != nil {
		return fractal.PixelBuffer{}, p.err
	}
	return fractal.Software{}.Render(req)
}

func newTestCache(t *testing.T, pipeline fractal.Pipeline, workers int, opts ...CacheOption) *TileCache {
	t.Helper()
	opts = append([]CacheOption{WithTileSize(16), WithMaxIterations(40)}, opts...)
	tc, err := NewTileCache(pipeline, t.TempDir(), workers, opts...)
	require.NoError(t, err)
	t.Cleanup(tc.Close)
	return tc
}

func TestGetTileRendersOnce(t *testing.T) {
	pipeline := &countingPipeline{}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	tc := newTestCache(t, pipeline, 0, WithMetrics(m))

	coord := tiles.TileCoord{X: 1, Y: 1, Zoom: 2}
	require.False(t, tc.IsCached(coord))

	data, err := tc.GetTile(coord)
	require.NoError(t, err)
	require.True(t, tc.IsCached(coord))

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 16, img.Bounds().Dx())
	require.Equal(t, 16, img.Bounds().Dy())

	again, err := tc.GetTile(coord)
	require.NoError(t, err)
	require.Equal(t, data, again)
	require.Equal(t, int32(1), pipeline.calls.Load())

	require.InDelta(t, 1, testutil.ToFloat64(m.Tiles.WithLabelValues(metrics.TileRender)), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.Tiles.WithLabelValues(metrics.TileHit)), 0)
}

func TestRenderTileCountsDiskHit(t *testing.T) {
	pipeline := &countingPipeline{}
	m := metrics.New(prometheus.NewRegistry())
	tc := newTestCache(t, pipeline, 0, WithMetrics(m))
	coord := tiles.TileCoord{X: 2, Y: 1, Zoom: 2}

	first, err := tc.renderTile(coord)
	require.NoError(t, err)

	// a caller that missed the cache before the file was written
	again, err := tc.renderTile(coord)
	require.NoError(t, err)
	require.Equal(t, first, again)

	require.Equal(t, int32(1), pipeline.calls.Load())
	require.InDelta(t, 1, testutil.ToFloat64(m.Tiles.WithLabelValues(metrics.TileRender)), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.Tiles.WithLabelValues(metrics.TileHit)), 0)
}

func TestGetTileConcurrent(t *testing.T) {
	pipeline := &countingPipeline{}
	tc := newTestCache(t, pipeline, 0)
	coord := tiles.TileCoord{X: 3, Y: 2, Zoom: 3}

	var wg sync.WaitGroup
	results := make([][]byte, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data, err := tc.GetTile(coord)
			if err == nil {
				results[i] = data
			}
		}(i)
	}
	wg.Wait()

	for _, data := range results {
		require.Equal(t, results[0], data)
		require.NotEmpty(t, data)
	}
	require.Equal(t, int32(1), pipeline.calls.Load())
}

func TestGetTileInvalid(t *testing.T) {
	pipeline := &countingPipeline{}
	tc := newTestCache(t, pipeline, 0)

	_, err := tc.GetTile(tiles.TileCoord{X: 4, Y: 0, Zoom: 2})
	require.ErrorIs(t, err, ErrInvalidTile)
	require.Zero(t, pipeline.calls.Load())
}

func TestGetTileFailureIsNotCached(t *testing.T) {
	cause := &fractal.ExecutionError{Op: "read buffer", Err: errors.New("CL_OUT_OF_RESOURCES")}
	pipeline := &countingPipeline{err: cause}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	tc := newTestCache(t, pipeline, 0, WithMetrics(m))

	coord := tiles.TileCoord{Zoom: 0}
	_, err := tc.GetTile(coord)
	require.ErrorIs(t, err, fractal.ErrExecution)
	require.False(t, tc.IsCached(coord))

	// the next request retries
	pipeline.err = nil
	_, err = tc.GetTile(coord)
	require.NoError(t, err)
	require.Equal(t, int32(2), pipeline.calls.Load())
	require.InDelta(t, 1, testutil.ToFloat64(m.Tiles.WithLabelValues(metrics.TileError)), 0)
}

func TestPrefetchNeighbours(t *testing.T) {
	pipeline := &countingPipeline{}
	tc, err := NewTileCache(pipeline, t.TempDir(), 2, WithTileSize(8), WithMaxIterations(20))
	require.NoError(t, err)

	coord := tiles.TileCoord{X: 1, Y: 1, Zoom: 2}
	_, err = tc.GetTile(coord)
	require.NoError(t, err)

	// Close drains the queue
	tc.Close()
	for _, adj := range tiles.GetAdjacentTiles(coord) {
		require.True(t, tc.IsCached(adj), adj.String())
	}
	require.Equal(t, int32(5), pipeline.calls.Load())

	require.Zero(t, tc.PrefetchArea(0, 0, 3, 1))
	tc.Close()
}

func TestPrefetchArea(t *testing.T) {
	pipeline := &countingPipeline{}
	tc, err := NewTileCache(pipeline, t.TempDir(), 1, WithTileSize(8), WithMaxIterations(20))
	require.NoError(t, err)

	require.Equal(t, 9, tc.PrefetchArea(-0.75, 0, 3, 1))
	require.Equal(t, 4, tc.PrefetchArea(-100, -100, 3, 1))
	require.Zero(t, tc.PrefetchArea(0, 0, -1, 1))
	tc.Close()

	center := tiles.WorldToTile(-0.75, 0, 3)
	require.True(t, tc.IsCached(center))
}

func TestParseTilePath(t *testing.T) {
	tests := []struct {
		path string
		want tiles.TileCoord
		ok   bool
	}{
		{path: "/tile/3/4/5.png", want: tiles.TileCoord{X: 4, Y: 5, Zoom: 3}, ok: true},
		{path: "/tile/0/0/0", want: tiles.TileCoord{}, ok: true},
		{path: "/tile/3/4", ok: false},
		{path: "/tile/a/4/5.png", ok: false},
		{path: "/tile/3/b/5.png", ok: false},
		{path: "/tile/3/4/c.png", ok: false},
		{path: "/tile/3/4/5/6", ok: false},
	}
	for _, test := range tests {
		t.Run(test.path, func(t *testing.T) {
			got, ok := parseTilePath(test.path)
			require.Equal(t, test.ok, ok)
			if ok {
				require.Equal(t, test.want, got)
			}
		})
	}
}

func TestServerHandler(t *testing.T) {
	pipeline := &countingPipeline{}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	tc := newTestCache(t, pipeline, 0, WithMetrics(m))
	handler := NewServer(tc, ":0", WithGatherer(reg)).Handler()

	do := func(method, target, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
		return rec
	}

	t.Run("tile", func(t *testing.T) {
		rec := do(http.MethodGet, "/tile/2/1/1.png", "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		_, err := png.Decode(rec.Body)
		require.NoError(t, err)
	})

	t.Run("bad_path", func(t *testing.T) {
		require.Equal(t, http.StatusBadRequest, do(http.MethodGet, "/tile/2/1", "").Code)
	})

	t.Run("out_of_range", func(t *testing.T) {
		require.Equal(t, http.StatusNotFound, do(http.MethodGet, "/tile/2/9/1.png", "").Code)
	})

	t.Run("method", func(t *testing.T) {
		require.Equal(t, http.StatusMethodNotAllowed, do(http.MethodPost, "/tile/2/1/1.png", "").Code)
		require.Equal(t, http.StatusMethodNotAllowed, do(http.MethodGet, "/prefetch", "").Code)
	})

	t.Run("health", func(t *testing.T) {
		rec := do(http.MethodGet, "/health", "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})

	t.Run("metrics", func(t *testing.T) {
		rec := do(http.MethodGet, "/metrics", "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), "mandelview_tiles_total")
	})

	t.Run("prefetch", func(t *testing.T) {
		rec := do(http.MethodPost, "/prefetch", `{"centerX":-0.75,"centerY":0,"zoom":1,"radius":0}`)
		require.Equal(t, http.StatusAccepted, rec.Code)
		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, "prefetching", resp["status"])

		require.Equal(t, http.StatusBadRequest, do(http.MethodPost, "/prefetch", `{"radius":99}`).Code)
		require.Equal(t, http.StatusBadRequest, do(http.MethodPost, "/prefetch", `not json`).Code)
	})

	t.Run("render_failure", func(t *testing.T) {
		pipeline.err = &fractal.ExecutionError{Op: "enqueue kernel", Err: errors.New("device lost")}
		defer func() { pipeline.err = nil }()
		require.Equal(t, http.StatusInternalServerError, do(http.MethodGet, "/tile/3/0/0.png", "").Code)
	})
}

func TestServerShutdownBeforeStart(t *testing.T) {
	tc := newTestCache(t, &countingPipeline{}, 0)
	srv := NewServer(tc, "127.0.0.1:0")

	require.NoError(t, srv.Shutdown(context.Background()))
	require.NoError(t, srv.Start())
}
