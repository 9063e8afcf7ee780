// Package metrics defines the prometheus collectors for frames and tiles.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mandelview"

// Tile lookup results
const (
	TileHit    = "hit"
	TileRender = "render"
	TileError  = "error"
)

// Metrics groups the collectors registered for one process.
type Metrics struct {
	FramesRendered prometheus.Counter
	FrameErrors    prometheus.Counter
	RenderDuration prometheus.Histogram

	Tiles        *prometheus.CounterVec
	TileDuration prometheus.Histogram
}

// New registers the collectors with reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FramesRendered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_rendered_total",
			Help:      "Frames rendered by the compute pipeline.",
		}),
		FrameErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_errors_total",
			Help:      "Frames skipped because the GPU dispatch or readback failed.",
		}),
		RenderDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Time spent in the compute pipeline per frame, dispatch to readback.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		Tiles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tiles_total",
			Help:      "Tile lookups by result.",
		}, []string{"result"}),
		TileDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tile_render_duration_seconds",
			Help:      "Time spent rendering and encoding one tile.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}
}
