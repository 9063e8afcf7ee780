package tileserver

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"mandelview/internal/fractal"
	"mandelview/internal/metrics"
	"mandelview/pkg/tiles"
)

// ErrInvalidTile is returned for coordinates outside the tile pyramid.
var ErrInvalidTile = errors.New("invalid tile coordinate")

const (
	DefaultTileSize      = 256
	DefaultMaxIterations = 500
)

// TileCache renders tiles through a pipeline and caches the encoded PNGs
// on disk.
type TileCache struct {
	cacheDir      string
	pipeline      fractal.Pipeline
	tileSize      int
	maxIterations uint32

	// The pipeline is not safe for concurrent use
	renderMu sync.Mutex
	group    singleflight.Group

	fetchQueue chan tiles.TileCoord
	wg         sync.WaitGroup
	closeMu    sync.RWMutex
	closed     bool

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// CacheOption configures a TileCache.
type CacheOption func(*TileCache)

// WithTileSize sets the edge length of a tile in pixels.
func WithTileSize(size int) CacheOption {
	return func(tc *TileCache) {
		tc.tileSize = size
	}
}

// WithMaxIterations sets the iteration budget of tile renders.
func WithMaxIterations(n uint32) CacheOption {
	return func(tc *TileCache) {
		tc.maxIterations = n
	}
}

// WithLogger sets the cache logger.
func WithLogger(logger *zap.Logger) CacheOption {
	return func(tc *TileCache) {
		tc.logger = logger
	}
}

// WithMetrics sets the collectors tile lookups are recorded in.
func WithMetrics(m *metrics.Metrics) CacheOption {
	return func(tc *TileCache) {
		tc.metrics = m
	}
}

// NewTileCache creates a new tile cache with workers prefetching the
// neighbours of requested tiles.
func NewTileCache(pipeline fractal.Pipeline, cacheDir string, workers int, opts ...CacheOption) (*TileCache, error) {
	tc := &TileCache{
		cacheDir:      cacheDir,
		pipeline:      pipeline,
		tileSize:      DefaultTileSize,
		maxIterations: DefaultMaxIterations,
		fetchQueue:    make(chan tiles.TileCoord, 1000),
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(tc)
	}
	if tc.metrics == nil {
		tc.metrics = metrics.New(nil)
	}

	if err := os.MkdirAll(tc.dir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	for i := 0; i < workers; i++ {
		tc.wg.Add(1)
		go tc.worker()
	}

	return tc, nil
}

func (tc *TileCache) worker() {
	defer tc.wg.Done()
	for coord := range tc.fetchQueue {
		if _, err := tc.renderTile(coord); err != nil {
			tc.logger.Debug("prefetch failed", zap.Stringer("tile", coord), zap.Error(err))
		}
	}
}

// Close stops the prefetch workers and waits for them to finish.
func (tc *TileCache) Close() {
	tc.closeMu.Lock()
	if tc.closed {
		tc.closeMu.Unlock()
		return
	}
	tc.closed = true
	close(tc.fetchQueue)
	tc.closeMu.Unlock()

	tc.wg.Wait()
}

// dir separates tiles rendered with different sizes or budgets.
func (tc *TileCache) dir() string {
	return filepath.Join(tc.cacheDir, fmt.Sprintf("s%d_i%d", tc.tileSize, tc.maxIterations))
}

// tilePath returns the file path for a cached tile
func (tc *TileCache) tilePath(coord tiles.TileCoord) string {
	return filepath.Join(tc.dir(), fmt.Sprintf("%d_%d_%d.png", coord.Zoom, coord.X, coord.Y))
}

// GetTile returns the PNG of a tile, rendering and caching it if necessary
func (tc *TileCache) GetTile(coord tiles.TileCoord) ([]byte, error) {
	if !coord.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTile, coord)
	}

	if data, err := os.ReadFile(tc.tilePath(coord)); err == nil {
		tc.metrics.Tiles.WithLabelValues(metrics.TileHit).Inc()
		return data, nil
	}

	data, err := tc.renderTile(coord)
	if err != nil {
		return nil, err
	}

	tc.queuePrefetch(coord)

	return data, nil
}

// renderTile renders a tile once even when several callers ask for it at
// the same time.
func (tc *TileCache) renderTile(coord tiles.TileCoord) ([]byte, error) {
	v, err, _ := tc.group.Do(coord.String(), func() (interface{}, error) {
		path := tc.tilePath(coord)
		if data, err := os.ReadFile(path); err == nil {
			tc.metrics.Tiles.WithLabelValues(metrics.TileHit).Inc()
			return data, nil
		}

		start := time.Now()
		tc.renderMu.Lock()
		buf, err := tc.pipeline.Render(coord.Request(tc.tileSize, tc.maxIterations))
		tc.renderMu.Unlock()
		if err != nil {
			tc.metrics.Tiles.WithLabelValues(metrics.TileError).Inc()
			return nil, fmt.Errorf("rendering tile %s: %w", coord, err)
		}

		var out bytes.Buffer
		if err := png.Encode(&out, buf.Image()); err != nil {
			tc.metrics.Tiles.WithLabelValues(metrics.TileError).Inc()
			return nil, fmt.Errorf("encoding tile %s: %w", coord, err)
		}
		tc.metrics.TileDuration.Observe(time.Since(start).Seconds())
		tc.metrics.Tiles.WithLabelValues(metrics.TileRender).Inc()

		if err := os.WriteFile(path, out.Bytes(), 0644); err != nil {
			// still serve the rendered tile
			tc.logger.Warn("failed to cache tile", zap.Stringer("tile", coord), zap.Error(err))
		}
		return out.Bytes(), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// queuePrefetch adds adjacent tiles to the prefetch queue
func (tc *TileCache) queuePrefetch(coord tiles.TileCoord) {
	tc.enqueue(tiles.GetAdjacentTiles(coord))
}

// PrefetchArea queues the tiles within radius tiles of the world point.
func (tc *TileCache) PrefetchArea(centerX, centerY float64, zoom, radius int) int {
	if zoom < 0 || zoom > tiles.MaxZoom {
		return 0
	}
	center := tiles.WorldToTile(centerX, centerY, zoom)
	var coords []tiles.TileCoord
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			coord := tiles.TileCoord{X: center.X + dx, Y: center.Y + dy, Zoom: zoom}
			if coord.Valid() && !tc.IsCached(coord) {
				coords = append(coords, coord)
			}
		}
	}
	return tc.enqueue(coords)
}

// enqueue never blocks; tiles that do not fit are dropped.
func (tc *TileCache) enqueue(coords []tiles.TileCoord) int {
	tc.closeMu.RLock()
	defer tc.closeMu.RUnlock()
	if tc.closed {
		return 0
	}

	queued := 0
	for _, coord := range coords {
		select {
		case tc.fetchQueue <- coord:
			queued++
		default:
		}
	}
	return queued
}

// IsCached checks if a tile is already cached
func (tc *TileCache) IsCached(coord tiles.TileCoord) bool {
	_, err := os.Stat(tc.tilePath(coord))
	return err == nil
}
