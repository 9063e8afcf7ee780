package main

import (
	"fmt"
	"image/png"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"mandelview/internal/camera"
	"mandelview/internal/config"
	"mandelview/internal/fractal"
)

func newRenderCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render one view to a PNG file",
		Args:  cobra.NoArgs,
	}

	addViewFlags(cmd)
	cmd.Flags().StringP("output", "o", "mandelbrot.png", "the PNG file to write")
	cmd.PreRun = bindViewFlagsFunc(v)

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := setup(cmd, v)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		pipeline, err := openPipeline(cfg, log)
		if err != nil {
			return err
		}
		defer pipeline.Release()

		output, _ := cmd.Flags().GetString("output")
		return renderView(cfg, pipeline, output, log)
	}

	return cmd
}

// viewRequest describes the configured view at rest.
func viewRequest(cfg *config.Config) fractal.ComputeRequest {
	nav := cfg.Navigation
	home := camera.Viewport{CenterX: nav.CenterX, CenterY: nav.CenterY, Zoom: nav.Zoom}
	cam := camera.NewCamera(home, cfg.Window.Width, cfg.Window.Height,
		camera.WithBaseExtent(nav.BaseExtentX, nav.BaseExtentY),
	)
	return cam.Request(cfg.Render.MaxIterations)
}

func renderView(cfg *config.Config, pipeline fractal.Pipeline, output string, log *zap.Logger) error {
	req := viewRequest(cfg)

	start := time.Now()
	buf, err := pipeline.Render(req)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	elapsed := time.Since(start)

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	if err := png.Encode(f, buf.Image()); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", output, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	log.Info("rendered",
		zap.String("output", output),
		zap.Uint32("width", req.Width),
		zap.Uint32("height", req.Height),
		zap.Float64("center_x", req.CenterX),
		zap.Float64("center_y", req.CenterY),
		zap.Float64("scale_x", req.ScaleX),
		zap.Duration("elapsed", elapsed),
	)
	return nil
}
