// Package app hosts the interactive viewer: a glfw window presenting
// frames through WebGPU while mouse input steers the camera.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/rajveermalviya/go-webgpu/wgpu"
	"go.uber.org/zap"

	"mandelview/internal/camera"
	"mandelview/internal/config"
	"mandelview/internal/fractal"
	"mandelview/internal/frame"
	"mandelview/internal/metrics"
	"mandelview/internal/renderer"
)

type App struct {
	window   *glfw.Window
	instance *wgpu.Instance
	surface  *wgpu.Surface
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	renderer *renderer.Renderer
	camera   *camera.Camera
	driver   *frame.Driver

	// filled by glfw callbacks during PollEvents, drained once per frame
	events      []camera.Event
	snapshotDue bool
	snapshotDir string
	title       string
	width       int
	height      int

	logger *zap.Logger
}

// Option configures an App.
type Option func(*App)

// WithLogger sets the app logger.
func WithLogger(logger *zap.Logger) Option {
	return func(app *App) {
		app.logger = logger
	}
}

// WithSnapshotDir sets where P key snapshots are written.
func WithSnapshotDir(dir string) Option {
	return func(app *App) {
		app.snapshotDir = dir
	}
}

// New opens the window and the display device. The pipeline stays owned by
// the caller. New must be called from the main thread, which the binary
// locks in init.
func New(cfg *config.Config, pipeline fractal.Pipeline, m *metrics.Metrics, opts ...Option) (*App, error) {
	app := &App{
		title:       cfg.Window.Title,
		snapshotDir: ".",
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(app)
	}

	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("GLFW init failed: %w", err)
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.CocoaRetinaFramebuffer, glfw.True)

	window, err := glfw.CreateWindow(cfg.Window.Width, cfg.Window.Height, cfg.Window.Title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("window creation failed: %w", err)
	}
	app.window = window

	// The framebuffer is larger than the window on high DPI displays
	app.width, app.height = window.GetFramebufferSize()

	if err := app.initWebGPU(); err != nil {
		app.Cleanup()
		return nil, err
	}

	app.renderer, err = renderer.NewRenderer(app.adapter, app.device, app.queue, app.surface, uint32(app.width), uint32(app.height), app.logger)
	if err != nil {
		app.Cleanup()
		return nil, fmt.Errorf("renderer creation failed: %w", err)
	}

	nav := cfg.Navigation
	home := camera.Viewport{CenterX: nav.CenterX, CenterY: nav.CenterY, Zoom: nav.Zoom}
	app.camera = camera.NewCamera(home, app.width, app.height,
		camera.WithAlpha(nav.Alpha),
		camera.WithBaseExtent(nav.BaseExtentX, nav.BaseExtentY),
	)
	app.driver = frame.NewDriver(app.camera, pipeline, app.renderer, cfg.Render.MaxIterations,
		frame.WithLogger(app.logger),
		frame.WithMetrics(m),
	)

	app.setupCallbacks()

	return app, nil
}

func (app *App) initWebGPU() error {
	app.instance = wgpu.CreateInstance(&wgpu.InstanceDescriptor{
		Backends: instanceBackend,
	})
	if app.instance == nil {
		return errors.New("failed to create WebGPU instance")
	}

	var err error
	app.surface, err = CreateSurface(app.instance, app.window)
	if err != nil {
		return fmt.Errorf("surface creation failed: %w", err)
	}

	// Request adapter - try with surface first, then without
	app.adapter, err = app.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface:    app.surface,
		PowerPreference:      wgpu.PowerPreference_HighPerformance,
		ForceFallbackAdapter: false,
	})
	if err != nil {
		app.logger.Warn("adapter request failed, retrying without surface constraint", zap.Error(err))
		app.adapter, err = app.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
			PowerPreference: wgpu.PowerPreference_HighPerformance,
		})
		if err != nil {
			return fmt.Errorf("adapter request failed: %w", err)
		}
	}

	props := app.adapter.GetProperties()
	app.logger.Info("display adapter",
		zap.String("name", props.Name),
		zap.String("driver", props.DriverDescription),
	)

	app.device, err = app.adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "MandelviewDevice",
	})
	if err != nil {
		return fmt.Errorf("device request failed: %w", err)
	}

	app.queue = app.device.GetQueue()
	return nil
}

func (app *App) setupCallbacks() {
	app.window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		// minimized windows report 0x0
		if width <= 0 || height <= 0 {
			return
		}
		app.width = width
		app.height = height
		app.camera.SetViewport(width, height)
		app.renderer.Resize(uint32(width), uint32(height))
	})

	app.window.SetMouseButtonCallback(func(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
		if action != glfw.Press {
			return
		}
		switch button {
		case glfw.MouseButtonLeft:
			app.events = append(app.events, camera.Event{Kind: camera.PrimaryPress})
		case glfw.MouseButtonRight:
			app.events = append(app.events, camera.Event{Kind: camera.SecondaryPress})
		}
	})

	app.window.SetCursorPosCallback(func(w *glfw.Window, x, y float64) {
		// cursor positions are in window coordinates
		sx, sy := app.framebufferScale()
		app.events = append(app.events, camera.Event{Kind: camera.CursorMove, X: x * sx, Y: y * sy})
	})

	app.window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if action != glfw.Press {
			return
		}
		switch key {
		case glfw.KeyEscape:
			w.SetShouldClose(true)
		case glfw.KeyR:
			app.camera.Reset()
		case glfw.KeyP:
			app.snapshotDue = true
		}
	})
}

func (app *App) framebufferScale() (float64, float64) {
	ww, wh := app.window.GetSize()
	if ww == 0 || wh == 0 {
		return 1, 1
	}
	return float64(app.width) / float64(ww), float64(app.height) / float64(wh)
}

// Run renders frames until the window is closed or ctx is done.
func (app *App) Run(ctx context.Context) error {
	lastTime := time.Now()
	frames := 0

	for !app.window.ShouldClose() {
		if err := ctx.Err(); err != nil {
			return nil
		}

		glfw.PollEvents()
		events := app.events
		app.events = app.events[:0]

		if err := app.driver.Step(events...); err != nil {
			return err
		}

		if app.snapshotDue {
			app.snapshotDue = false
			app.saveSnapshot()
		}

		frames++
		if time.Since(lastTime) >= time.Second {
			app.window.SetTitle(fmt.Sprintf("%s | Zoom: %.4g | FPS: %d", app.title, app.camera.Current.Zoom, frames))
			frames = 0
			lastTime = time.Now()
		}
	}

	return nil
}

func (app *App) saveSnapshot() {
	path := filepath.Join(app.snapshotDir, fmt.Sprintf("mandelview-%s.png", time.Now().Format("20060102-150405")))
	f, err := os.Create(path)
	if err != nil {
		app.logger.Error("snapshot failed", zap.Error(err))
		return
	}
	defer f.Close()

	if err := app.driver.Snapshot(f); err != nil {
		app.logger.Error("snapshot failed", zap.String("path", path), zap.Error(err))
		return
	}
	app.logger.Info("snapshot saved", zap.String("path", path))
}

// Cleanup releases the display resources in reverse order of creation.
func (app *App) Cleanup() {
	if app.renderer != nil {
		app.renderer.Release()
	}
	if app.queue != nil {
		app.queue.Release()
	}
	if app.device != nil {
		app.device.Release()
	}
	if app.adapter != nil {
		app.adapter.Release()
	}
	if app.surface != nil {
		app.surface.Release()
	}
	if app.instance != nil {
		app.instance.Release()
	}
	if app.window != nil {
		app.window.Destroy()
	}
	glfw.Terminate()
}
