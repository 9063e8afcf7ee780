// Package frame drives one render per display refresh: advance the
// camera, dispatch the pipeline and hand the result to the display.
package frame

import (
	"errors"
	"fmt"
	"image/png"
	"io"
	"time"

	"go.uber.org/zap"

	"mandelview/internal/camera"
	"mandelview/internal/fractal"
	"mandelview/internal/metrics"
)

// ErrNoFrame is returned by Snapshot before any frame succeeded.
var ErrNoFrame = errors.New("no frame rendered yet")

// Display shows a finished frame. An empty buffer clears the display.
type Display interface {
	Draw(buf fractal.PixelBuffer) error
}

// Driver owns the per-frame protocol. It is not safe for concurrent use.
type Driver struct {
	camera        *camera.Camera
	pipeline      fractal.Pipeline
	display       Display
	maxIterations uint32

	// last successful frame, redrawn when a dispatch fails
	last fractal.PixelBuffer

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the driver logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Driver) {
		d.logger = logger
	}
}

// WithMetrics sets the collectors frames are recorded in.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Driver) {
		d.metrics = m
	}
}

// NewDriver creates a driver rendering cam through pipeline onto display.
func NewDriver(cam *camera.Camera, pipeline fractal.Pipeline, display Display, maxIterations uint32, opts ...Option) *Driver {
	d := &Driver{
		camera:        cam,
		pipeline:      pipeline,
		display:       display,
		maxIterations: maxIterations,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.metrics == nil {
		d.metrics = metrics.New(nil)
	}
	return d
}

// Step applies the queued input, advances the camera one frame and draws
// the result. A failed dispatch redraws the previous frame; only errors
// outside the pipeline's execution are returned.
func (d *Driver) Step(events ...camera.Event) error {
	d.camera.Apply(events...)
	d.camera.Advance()

	buf, err := d.render()
	if err != nil {
		return err
	}

	if err := d.display.Draw(buf); err != nil {
		return fmt.Errorf("draw: %w", err)
	}
	return nil
}

func (d *Driver) render() (fractal.PixelBuffer, error) {
	req := d.camera.Request(d.maxIterations)

	start := time.Now()
	buf, err := d.pipeline.Render(req)
	if err != nil {
		if !errors.Is(err, fractal.ErrExecution) {
			return fractal.PixelBuffer{}, fmt.Errorf("render: %w", err)
		}
		d.metrics.FrameErrors.Inc()
		view := d.camera.Bounds()
		d.logger.Warn("frame failed, redrawing previous frame",
			zap.Uint32("width", req.Width),
			zap.Uint32("height", req.Height),
			zap.Float64("zoom", d.camera.Current.Zoom),
			zap.Float64s("bounds", []float64{view.Min[0], view.Min[1], view.Max[0], view.Max[1]}),
			zap.Error(err),
		)
		return d.last, nil
	}

	d.metrics.RenderDuration.Observe(time.Since(start).Seconds())
	d.metrics.FramesRendered.Inc()
	d.last = buf
	return buf, nil
}

// Last returns the most recent successful frame.
func (d *Driver) Last() fractal.PixelBuffer {
	return d.last
}

// Snapshot encodes the most recent successful frame as PNG.
func (d *Driver) Snapshot(w io.Writer) error {
	if d.last.Empty() {
		return ErrNoFrame
	}
	return png.Encode(w, d.last.Image())
}
