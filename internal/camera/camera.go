package camera

import (
	"math"

	"github.com/paulmach/orb"

	"mandelview/internal/fractal"
)

const (
	DefaultCenterX = -0.75
	DefaultCenterY = 0.0
	DefaultZoom    = 1.0

	// DefaultAlpha is the fraction of the remaining distance covered per frame
	DefaultAlpha = 0.1

	// World extent visible at zoom 1
	BaseExtentX = 3.5
	BaseExtentY = 2.0

	ZoomStep = 2.0
)

// Viewport is a point in the complex plane and a magnification.
type Viewport struct {
	CenterX float64
	CenterY float64
	Zoom    float64
}

// DefaultViewport frames the whole set.
func DefaultViewport() Viewport {
	return Viewport{CenterX: DefaultCenterX, CenterY: DefaultCenterY, Zoom: DefaultZoom}
}

// EventKind identifies an input event.
type EventKind int

const (
	CursorMove EventKind = iota
	PrimaryPress
	SecondaryPress
)

func (k EventKind) String() string {
	switch k {
	case CursorMove:
		return "cursor_move"
	case PrimaryPress:
		return "primary_press"
	case SecondaryPress:
		return "secondary_press"
	default:
		return "unknown"
	}
}

// Event is a discrete input in screen pixels, origin top-left. X and Y are
// only read for CursorMove; presses act at the last known cursor position.
type Event struct {
	Kind EventKind
	X    float64
	Y    float64
}

// Camera is the navigation state. Input moves Target, Advance eases
// Current toward it, and Current is what gets rendered.
type Camera struct {
	Current Viewport
	Target  Viewport

	// Home is restored by Reset
	Home Viewport

	Alpha       float64
	BaseExtentX float64
	BaseExtentY float64

	// Viewport dimensions
	ViewportWidth  int
	ViewportHeight int

	// World units per pixel, derived from Current.Zoom
	ScaleX float64
	ScaleY float64

	cursorX float64
	cursorY float64
}

// Option configures a Camera.
type Option func(*Camera)

// WithAlpha sets the smoothing factor, expected in (0, 1].
func WithAlpha(alpha float64) Option {
	return func(c *Camera) {
		c.Alpha = alpha
	}
}

// WithBaseExtent sets the world extent visible at zoom 1.
func WithBaseExtent(x, y float64) Option {
	return func(c *Camera) {
		c.BaseExtentX = x
		c.BaseExtentY = y
	}
}

// NewCamera creates a camera resting at home.
func NewCamera(home Viewport, width, height int, opts ...Option) *Camera {
	c := &Camera{
		Current:        home,
		Target:         home,
		Home:           home,
		Alpha:          DefaultAlpha,
		BaseExtentX:    BaseExtentX,
		BaseExtentY:    BaseExtentY,
		ViewportWidth:  width,
		ViewportHeight: height,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.updateScale()
	return c
}

// SetViewport updates the viewport dimensions
func (c *Camera) SetViewport(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	c.ViewportWidth = width
	c.ViewportHeight = height
	c.updateScale()
}

// Apply handles events in the order they were received.
func (c *Camera) Apply(events ...Event) {
	for _, ev := range events {
		c.Handle(ev)
	}
}

// Handle updates the target or the cursor for a single event.
func (c *Camera) Handle(ev Event) {
	switch ev.Kind {
	case CursorMove:
		c.cursorX = ev.X
		c.cursorY = ev.Y
	case PrimaryPress:
		c.ZoomAtCursor(ZoomStep)
	case SecondaryPress:
		c.ZoomAtCursor(1 / ZoomStep)
	}
}

// ZoomAtCursor retargets the view on the world point under the cursor and
// multiplies the target zoom by factor. The point is resolved against the
// current viewport, not the target.
func (c *Camera) ZoomAtCursor(factor float64) {
	wx, wy := c.ScreenToWorld(c.cursorX, c.cursorY)
	c.Target.CenterX = wx
	c.Target.CenterY = wy
	c.Target.Zoom *= factor
}

// Cursor returns the last known cursor position.
func (c *Camera) Cursor() (x, y float64) {
	return c.cursorX, c.cursorY
}

// Advance moves Current a fraction Alpha of the way to Target and derives
// the scale from the smoothed zoom. Call once per frame.
func (c *Camera) Advance() {
	c.Current.CenterX += (c.Target.CenterX - c.Current.CenterX) * c.Alpha
	c.Current.CenterY += (c.Target.CenterY - c.Current.CenterY) * c.Alpha
	c.Current.Zoom += (c.Target.Zoom - c.Current.Zoom) * c.Alpha
	c.updateScale()
}

func (c *Camera) updateScale() {
	c.ScaleX = c.BaseExtentX / float64(c.ViewportWidth) / c.Current.Zoom
	c.ScaleY = c.BaseExtentY / float64(c.ViewportHeight) / c.Current.Zoom
}

// Reset eases back to the home view.
func (c *Camera) Reset() {
	c.Target = c.Home
}

// Converged reports whether Current is within eps of Target on every axis.
func (c *Camera) Converged(eps float64) bool {
	return math.Abs(c.Target.CenterX-c.Current.CenterX) <= eps &&
		math.Abs(c.Target.CenterY-c.Current.CenterY) <= eps &&
		math.Abs(c.Target.Zoom-c.Current.Zoom) <= eps
}

// ScreenToWorld converts screen coordinates to a point in the complex plane
// using the current viewport.
func (c *Camera) ScreenToWorld(screenX, screenY float64) (wx, wy float64) {
	w := float64(c.ViewportWidth)
	h := float64(c.ViewportHeight)
	wx = c.Current.CenterX + (screenX/w-0.5)*c.ScaleX*w
	wy = c.Current.CenterY + (screenY/h-0.5)*c.ScaleY*h
	return wx, wy
}

// WorldToScreen is the inverse of ScreenToWorld.
func (c *Camera) WorldToScreen(wx, wy float64) (screenX, screenY float64) {
	w := float64(c.ViewportWidth)
	h := float64(c.ViewportHeight)
	screenX = ((wx-c.Current.CenterX)/(c.ScaleX*w) + 0.5) * w
	screenY = ((wy-c.Current.CenterY)/(c.ScaleY*h) + 0.5) * h
	return screenX, screenY
}

// Bounds returns the region of the plane covered by the current view.
func (c *Camera) Bounds() orb.Bound {
	halfW := float64(c.ViewportWidth) / 2 * c.ScaleX
	halfH := float64(c.ViewportHeight) / 2 * c.ScaleY
	return orb.Bound{
		Min: orb.Point{c.Current.CenterX - halfW, c.Current.CenterY - halfH},
		Max: orb.Point{c.Current.CenterX + halfW, c.Current.CenterY + halfH},
	}
}

// Request describes the render of the current view.
func (c *Camera) Request(maxIterations uint32) fractal.ComputeRequest {
	return fractal.ComputeRequest{
		Width:         uint32(c.ViewportWidth),
		Height:        uint32(c.ViewportHeight),
		MaxIterations: maxIterations,
		CenterX:       c.Current.CenterX,
		CenterY:       c.Current.CenterY,
		ScaleX:        c.ScaleX,
		ScaleY:        c.ScaleY,
	}
}
