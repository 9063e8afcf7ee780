package tiles

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"mandelview/internal/fractal"
)

// The zoom 0 tile is a square of side RootSide centered on the set.
const (
	RootCenterX = -0.75
	RootCenterY = 0.0
	RootSide    = 4.0

	// MaxZoom keeps tile edges well above double precision resolution
	MaxZoom = 40
)

// TileCoord represents a tile coordinate in the slippy map format. Y grows
// downward, like image rows and the imaginary axis of the kernel.
type TileCoord struct {
	X    int
	Y    int
	Zoom int
}

func (t TileCoord) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Zoom, t.X, t.Y)
}

// Path returns the tile server path of the tile.
func (t TileCoord) Path() string {
	return fmt.Sprintf("/tile/%d/%d/%d.png", t.Zoom, t.X, t.Y)
}

// Valid reports whether the tile exists at its zoom level.
func (t TileCoord) Valid() bool {
	if t.Zoom < 0 || t.Zoom > MaxZoom {
		return false
	}
	n := 1 << t.Zoom
	return t.X >= 0 && t.X < n && t.Y >= 0 && t.Y < n
}

// Side returns the width of the tile in world units.
func (t TileCoord) Side() float64 {
	return RootSide / math.Pow(2, float64(t.Zoom))
}

// Bound returns the region of the complex plane covered by the tile.
func (t TileCoord) Bound() orb.Bound {
	side := t.Side()
	minX := RootCenterX - RootSide/2 + float64(t.X)*side
	minY := RootCenterY - RootSide/2 + float64(t.Y)*side
	return orb.Bound{
		Min: orb.Point{minX, minY},
		Max: orb.Point{minX + side, minY + side},
	}
}

// Request describes a size x size render of the tile.
func (t TileCoord) Request(size int, maxIterations uint32) fractal.ComputeRequest {
	center := t.Bound().Center()
	scale := t.Side() / float64(size)
	return fractal.ComputeRequest{
		Width:         uint32(size),
		Height:        uint32(size),
		MaxIterations: maxIterations,
		CenterX:       center[0],
		CenterY:       center[1],
		ScaleX:        scale,
		ScaleY:        scale,
	}
}

// WorldToTile returns the tile containing the world point at a zoom level.
// Points outside the root tile are clamped to the border tiles.
func WorldToTile(x, y float64, zoom int) TileCoord {
	n := math.Pow(2, float64(zoom))
	tx := int(math.Floor((x - (RootCenterX - RootSide/2)) / RootSide * n))
	ty := int(math.Floor((y - (RootCenterY - RootSide/2)) / RootSide * n))

	maxTile := int(n) - 1
	tx = min(max(tx, 0), maxTile)
	ty = min(max(ty, 0), maxTile)

	return TileCoord{X: tx, Y: ty, Zoom: zoom}
}

// GetAdjacentTiles returns adjacent tiles in priority order for prefetching
// Order: right, left, down, up
func GetAdjacentTiles(t TileCoord) []TileCoord {
	maxTile := (1 << t.Zoom) - 1
	adjacent := make([]TileCoord, 0, 4)

	if t.X+1 <= maxTile {
		adjacent = append(adjacent, TileCoord{X: t.X + 1, Y: t.Y, Zoom: t.Zoom})
	}
	if t.X-1 >= 0 {
		adjacent = append(adjacent, TileCoord{X: t.X - 1, Y: t.Y, Zoom: t.Zoom})
	}
	if t.Y+1 <= maxTile {
		adjacent = append(adjacent, TileCoord{X: t.X, Y: t.Y + 1, Zoom: t.Zoom})
	}
	if t.Y-1 >= 0 {
		adjacent = append(adjacent, TileCoord{X: t.X, Y: t.Y - 1, Zoom: t.Zoom})
	}

	return adjacent
}
