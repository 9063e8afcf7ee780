package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Window     Window     `mapstructure:"window"`
	Render     Render     `mapstructure:"render"`
	Navigation Navigation `mapstructure:"navigation"`
	Server     Server     `mapstructure:"server"`
	Log        Log        `mapstructure:"log"`
}

// Window is the interactive window and the size of the rendered image
type Window struct {
	Width  int    `mapstructure:"width"`
	Height int    `mapstructure:"height"`
	Title  string `mapstructure:"title"`
}

// Render contains compute pipeline parameters
type Render struct {
	MaxIterations uint32 `mapstructure:"max_iterations"`

	// KernelFile replaces the built-in kernel source when set
	KernelFile string `mapstructure:"kernel_file"`

	// BuildOptions are passed to the OpenCL compiler
	BuildOptions string `mapstructure:"build_options"`

	Profiling bool `mapstructure:"profiling"`
}

// Navigation contains the viewport controller parameters
type Navigation struct {
	// Alpha is the per-frame smoothing factor, in (0, 1]
	Alpha float64 `mapstructure:"alpha"`

	BaseExtentX float64 `mapstructure:"base_extent_x"`
	BaseExtentY float64 `mapstructure:"base_extent_y"`

	// Initial view
	CenterX float64 `mapstructure:"center_x"`
	CenterY float64 `mapstructure:"center_y"`
	Zoom    float64 `mapstructure:"zoom"`
}

// Server contains tile server parameters
type Server struct {
	Addr          string `mapstructure:"addr"`
	CacheDir      string `mapstructure:"cache_dir"`
	TileSize      int    `mapstructure:"tile_size"`
	MaxIterations uint32 `mapstructure:"max_iterations"`
	Workers       int    `mapstructure:"workers"`
}

// Log configures the zap logger
type Log struct {
	Format string `mapstructure:"format"`
	Level  string `mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Window: Window{
			Width:  800,
			Height: 800,
			Title:  "Mandelbrot",
		},
		Render: Render{
			MaxIterations: 1000,
		},
		Navigation: Navigation{
			Alpha:       0.1,
			BaseExtentX: 3.5,
			BaseExtentY: 2.0,
			CenterX:     -0.75,
			CenterY:     0.0,
			Zoom:        1.0,
		},
		Server: Server{
			Addr:          ":8090",
			CacheDir:      ".tile_cache",
			TileSize:      256,
			MaxIterations: 500,
			Workers:       2,
		},
		Log: Log{
			Format: "text",
			Level:  "info",
		},
	}
}

// SetDefaults registers every key with its default so environment
// variables are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("window.width", d.Window.Width)
	v.SetDefault("window.height", d.Window.Height)
	v.SetDefault("window.title", d.Window.Title)
	v.SetDefault("render.max_iterations", d.Render.MaxIterations)
	v.SetDefault("render.kernel_file", d.Render.KernelFile)
	v.SetDefault("render.build_options", d.Render.BuildOptions)
	v.SetDefault("render.profiling", d.Render.Profiling)
	v.SetDefault("navigation.alpha", d.Navigation.Alpha)
	v.SetDefault("navigation.base_extent_x", d.Navigation.BaseExtentX)
	v.SetDefault("navigation.base_extent_y", d.Navigation.BaseExtentY)
	v.SetDefault("navigation.center_x", d.Navigation.CenterX)
	v.SetDefault("navigation.center_y", d.Navigation.CenterY)
	v.SetDefault("navigation.zoom", d.Navigation.Zoom)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.cache_dir", d.Server.CacheDir)
	v.SetDefault("server.tile_size", d.Server.TileSize)
	v.SetDefault("server.max_iterations", d.Server.MaxIterations)
	v.SetDefault("server.workers", d.Server.Workers)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.level", d.Log.Level)
}

// Load decodes the configuration held by v on top of the defaults.
func Load(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the pipeline or the camera cannot work with.
func (c *Config) Validate() error {
	var errs []error
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		errs = append(errs, fmt.Errorf("window size must be positive, got %dx%d", c.Window.Width, c.Window.Height))
	}
	if c.Render.MaxIterations == 0 {
		errs = append(errs, errors.New("render.max_iterations must be positive"))
	}
	if c.Navigation.Alpha <= 0 || c.Navigation.Alpha > 1 {
		errs = append(errs, fmt.Errorf("navigation.alpha must be in (0, 1], got %g", c.Navigation.Alpha))
	}
	if c.Navigation.BaseExtentX <= 0 || c.Navigation.BaseExtentY <= 0 {
		errs = append(errs, errors.New("navigation base extents must be positive"))
	}
	if c.Navigation.Zoom <= 0 {
		errs = append(errs, fmt.Errorf("navigation.zoom must be positive, got %g", c.Navigation.Zoom))
	}
	if c.Server.TileSize <= 0 {
		errs = append(errs, errors.New("server.tile_size must be positive"))
	}
	if c.Server.MaxIterations == 0 {
		errs = append(errs, errors.New("server.max_iterations must be positive"))
	}
	if c.Server.Workers < 0 {
		errs = append(errs, errors.New("server.workers must not be negative"))
	}
	return errors.Join(errs...)
}
