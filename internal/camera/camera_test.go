package camera

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"mandelview/internal/fractal"
)

func TestNewCamera(t *testing.T) {
	c := NewCamera(DefaultViewport(), 800, 600)

	require.Equal(t, c.Current, c.Target)
	require.Equal(t, DefaultAlpha, c.Alpha)
	require.InDelta(t, 3.5/800, c.ScaleX, 1e-15)
	require.InDelta(t, 2.0/600, c.ScaleY, 1e-15)
}

func TestScreenWorldRoundTrip(t *testing.T) {
	c := NewCamera(Viewport{CenterX: -0.1, CenterY: 0.65, Zoom: 37}, 640, 480)
	c.Target = Viewport{CenterX: 0.3, CenterY: -0.2, Zoom: 900}
	for i := 0; i < 7; i++ {
		c.Advance()
	}

	points := [][2]float64{{0, 0}, {639, 479}, {320, 240}, {12.5, 400.25}, {-30, 700}}
	for _, p := range points {
		wx, wy := c.ScreenToWorld(p[0], p[1])
		sx, sy := c.WorldToScreen(wx, wy)
		require.InDelta(t, p[0], sx, 1e-6)
		require.InDelta(t, p[1], sy, 1e-6)
	}
}

func TestScreenCenterMapsToViewportCenter(t *testing.T) {
	c := NewCamera(DefaultViewport(), 800, 800)
	wx, wy := c.ScreenToWorld(400, 400)
	require.InDelta(t, DefaultCenterX, wx, 1e-15)
	require.InDelta(t, DefaultCenterY, wy, 1e-15)

	wx, wy = c.ScreenToWorld(0, 0)
	require.InDelta(t, -0.75-1.75, wx, 1e-12)
	require.InDelta(t, -1.0, wy, 1e-12)
}

func TestPrimaryPressZoomsIn(t *testing.T) {
	c := NewCamera(DefaultViewport(), 800, 800)
	c.Apply(Event{Kind: CursorMove, X: 600, Y: 200})
	c.Apply(Event{Kind: PrimaryPress})

	wx, wy := c.ScreenToWorld(600, 200)
	require.Equal(t, wx, c.Target.CenterX)
	require.Equal(t, wy, c.Target.CenterY)
	require.Equal(t, 2.0, c.Target.Zoom)

	// nothing moves until the next frame
	require.Equal(t, DefaultViewport(), c.Current)
}

func TestSecondaryPressZoomsOut(t *testing.T) {
	c := NewCamera(DefaultViewport(), 800, 800)
	c.Apply(
		Event{Kind: CursorMove, X: 100, Y: 700},
		Event{Kind: SecondaryPress},
	)

	require.InDelta(t, -0.75+(100.0/800-0.5)*3.5, c.Target.CenterX, 1e-12)
	require.InDelta(t, (700.0/800-0.5)*2.0, c.Target.CenterY, 1e-12)
	require.Equal(t, 0.5, c.Target.Zoom)
}

func TestPressBeforeCursorMoveUsesOrigin(t *testing.T) {
	c := NewCamera(DefaultViewport(), 400, 200)
	c.Handle(Event{Kind: PrimaryPress, X: 300, Y: 150})

	wx, wy := c.ScreenToWorld(0, 0)
	require.Equal(t, wx, c.Target.CenterX)
	require.Equal(t, wy, c.Target.CenterY)
	x, y := c.Cursor()
	require.Zero(t, x)
	require.Zero(t, y)
}

func TestPressUsesCurrentNotTarget(t *testing.T) {
	c := NewCamera(DefaultViewport(), 800, 800)
	c.Apply(Event{Kind: CursorMove, X: 800, Y: 400})
	c.Apply(Event{Kind: PrimaryPress})
	first := c.Target

	// a second press before any frame resolves against the same current view
	c.Apply(Event{Kind: PrimaryPress})
	require.Equal(t, first.CenterX, c.Target.CenterX)
	require.Equal(t, first.CenterY, c.Target.CenterY)
	require.Equal(t, 4.0, c.Target.Zoom)
}

func TestZoomMonotonicity(t *testing.T) {
	c := NewCamera(Viewport{CenterX: 0, CenterY: 0, Zoom: 3}, 500, 500)
	c.Apply(Event{Kind: CursorMove, X: 260, Y: 240})

	for n := 1; n <= 40; n++ {
		c.Apply(Event{Kind: PrimaryPress})
		if n%3 == 0 {
			c.Advance()
		}
		require.Equal(t, 3*math.Pow(2, float64(n)), c.Target.Zoom)
	}
}

func TestCursorMoveDoesNotChangeView(t *testing.T) {
	c := NewCamera(DefaultViewport(), 800, 600)
	before := *c
	c.Apply(Event{Kind: CursorMove, X: 10, Y: 20}, Event{Kind: CursorMove, X: -5, Y: 9000})

	require.Equal(t, before.Current, c.Current)
	require.Equal(t, before.Target, c.Target)
	x, y := c.Cursor()
	require.Equal(t, -5.0, x)
	require.Equal(t, 9000.0, y)
}

func TestAdvanceConverges(t *testing.T) {
	c := NewCamera(DefaultViewport(), 800, 600)
	c.Target = Viewport{CenterX: 0.28, CenterY: 0.008, Zoom: 64}

	distance := func() float64 {
		return math.Abs(c.Target.CenterX-c.Current.CenterX) +
			math.Abs(c.Target.CenterY-c.Current.CenterY) +
			math.Abs(c.Target.Zoom-c.Current.Zoom)
	}

	prev := distance()
	steps := 0
	for !c.Converged(1e-9) {
		c.Advance()
		d := distance()
		require.Less(t, d, prev)
		prev = d
		steps++
		require.Less(t, steps, 1000)
	}

	require.InDelta(t, 3.5/800/64, c.ScaleX, 1e-12)
	require.InDelta(t, 2.0/600/64, c.ScaleY, 1e-12)
}

func TestAdvanceStep(t *testing.T) {
	c := NewCamera(Viewport{CenterX: 0, CenterY: 0, Zoom: 1}, 100, 100)
	c.Target = Viewport{CenterX: 1, CenterY: -2, Zoom: 11}
	c.Advance()

	require.InDelta(t, 0.1, c.Current.CenterX, 1e-15)
	require.InDelta(t, -0.2, c.Current.CenterY, 1e-15)
	require.InDelta(t, 2.0, c.Current.Zoom, 1e-15)
	// scale follows the smoothed zoom, not the target
	require.InDelta(t, 3.5/100/2.0, c.ScaleX, 1e-15)
}

func TestAlphaOneJumps(t *testing.T) {
	c := NewCamera(DefaultViewport(), 100, 100, WithAlpha(1))
	c.Target = Viewport{CenterX: 0.5, CenterY: 0.5, Zoom: 8}
	c.Advance()
	require.Equal(t, c.Target, c.Current)
	require.True(t, c.Converged(0))
}

func TestResetAndSetViewport(t *testing.T) {
	c := NewCamera(DefaultViewport(), 800, 600, WithBaseExtent(4, 4))
	require.InDelta(t, 4.0/800, c.ScaleX, 1e-15)

	c.Apply(Event{Kind: CursorMove, X: 1, Y: 1}, Event{Kind: PrimaryPress})
	c.Advance()
	c.Reset()
	require.Equal(t, c.Home, c.Target)

	c.SetViewport(400, 300)
	require.Equal(t, 400, c.ViewportWidth)
	require.InDelta(t, 4.0/400/c.Current.Zoom, c.ScaleX, 1e-15)

	c.SetViewport(0, 300)
	require.Equal(t, 400, c.ViewportWidth)
}

func TestRequest(t *testing.T) {
	c := NewCamera(DefaultViewport(), 100, 100)
	req := c.Request(1000)

	require.Equal(t, fractal.ComputeRequest{
		Width:         100,
		Height:        100,
		MaxIterations: 1000,
		CenterX:       -0.75,
		CenterY:       0,
		ScaleX:        0.035,
		ScaleY:        0.02,
	}, req)
}

func TestBounds(t *testing.T) {
	c := NewCamera(DefaultViewport(), 700, 400)
	b := c.Bounds()
	require.InDelta(t, -2.5, b.Min[0], 1e-12)
	require.InDelta(t, 1.0, b.Max[0], 1e-12)
	require.InDelta(t, -1.0, b.Min[1], 1e-12)
	require.InDelta(t, 1.0, b.Max[1], 1e-12)
	require.True(t, b.Contains([2]float64{-0.75, 0}))
}

func TestEventKindString(t *testing.T) {
	require.Equal(t, "primary_press", PrimaryPress.String())
	require.Equal(t, "secondary_press", SecondaryPress.String())
	require.Equal(t, "cursor_move", CursorMove.String())
	require.Equal(t, "unknown", EventKind(42).String())
}
