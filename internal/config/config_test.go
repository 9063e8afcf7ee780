package config

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetEnvPrefix("MANDELVIEW_TEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg, err := Load(newViper(t))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFromYAML(t *testing.T) {
	v := newViper(t)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
window:
  width: 1024
  height: 512
render:
  max_iterations: 250
  build_options: -cl-mad-enable
navigation:
  alpha: 0.25
  zoom: 4
server:
  cache_dir: /tmp/tiles
`)))

	cfg, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, 1024, cfg.Window.Width)
	require.Equal(t, 512, cfg.Window.Height)
	require.Equal(t, uint32(250), cfg.Render.MaxIterations)
	require.Equal(t, "-cl-mad-enable", cfg.Render.BuildOptions)
	require.Equal(t, 0.25, cfg.Navigation.Alpha)
	require.Equal(t, 4.0, cfg.Navigation.Zoom)
	require.Equal(t, 3.5, cfg.Navigation.BaseExtentX)
	require.Equal(t, "/tmp/tiles", cfg.Server.CacheDir)
	require.Equal(t, "Mandelbrot", cfg.Window.Title)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MANDELVIEW_TEST_RENDER_MAX_ITERATIONS", "64")
	t.Setenv("MANDELVIEW_TEST_NAVIGATION_CENTER_X", "0.25")

	cfg, err := Load(newViper(t))
	require.NoError(t, err)
	require.Equal(t, uint32(64), cfg.Render.MaxIterations)
	require.Equal(t, 0.25, cfg.Navigation.CenterX)
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		mutate func(*Config)
		want   string
	}{
		"zero_width":      {func(c *Config) { c.Window.Width = 0 }, "window size"},
		"zero_iterations": {func(c *Config) { c.Render.MaxIterations = 0 }, "render.max_iterations"},
		"alpha_zero":      {func(c *Config) { c.Navigation.Alpha = 0 }, "navigation.alpha"},
		"alpha_above_one": {func(c *Config) { c.Navigation.Alpha = 1.5 }, "navigation.alpha"},
		"negative_extent": {func(c *Config) { c.Navigation.BaseExtentY = -2 }, "base extents"},
		"zero_zoom":       {func(c *Config) { c.Navigation.Zoom = 0 }, "navigation.zoom"},
		"zero_tile_size":  {func(c *Config) { c.Server.TileSize = 0 }, "server.tile_size"},
		"negative_worker": {func(c *Config) { c.Server.Workers = -1 }, "server.workers"},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			test.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), test.want)
		})
	}

	cfg := DefaultConfig()
	cfg.Navigation.Alpha = 1
	require.NoError(t, cfg.Validate())
}
