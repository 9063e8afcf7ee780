package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mandelview/internal/config"
)

// addViewFlags declares the image size and view flags shared by run and
// render.
func addViewFlags(cmd *cobra.Command) {
	defaultConfig := config.DefaultConfig()
	flags := cmd.Flags()

	flags.Int("width", defaultConfig.Window.Width, "the image width in pixels")
	flags.Int("height", defaultConfig.Window.Height, "the image height in pixels")
	flags.Float64("center-x", defaultConfig.Navigation.CenterX, "the real part of the view center")
	flags.Float64("center-y", defaultConfig.Navigation.CenterY, "the imaginary part of the view center")
	flags.Float64("zoom", defaultConfig.Navigation.Zoom, "the zoom factor of the view")
	flags.Float64("base-extent-x", defaultConfig.Navigation.BaseExtentX, "the width of the complex plane shown at zoom 1")
	flags.Float64("base-extent-y", defaultConfig.Navigation.BaseExtentY, "the height of the complex plane shown at zoom 1")
}

// bindViewFlagsFunc binds the view flags of one command. Binding happens in
// PreRun because run and render share keys and the last binding wins.
func bindViewFlagsFunc(v *viper.Viper) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, _ []string) {
		flags := cmd.Flags()
		mustBindPFlag(v, "window.width", flags.Lookup("width"))
		mustBindPFlag(v, "window.height", flags.Lookup("height"))
		mustBindPFlag(v, "navigation.center_x", flags.Lookup("center-x"))
		mustBindPFlag(v, "navigation.center_y", flags.Lookup("center-y"))
		mustBindPFlag(v, "navigation.zoom", flags.Lookup("zoom"))
		mustBindPFlag(v, "navigation.base_extent_x", flags.Lookup("base-extent-x"))
		mustBindPFlag(v, "navigation.base_extent_y", flags.Lookup("base-extent-y"))
	}
}
