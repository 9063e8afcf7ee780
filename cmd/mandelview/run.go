package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mandelview/internal/app"
	"mandelview/internal/config"
	"mandelview/internal/metrics"
)

func newRunCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Open the interactive viewer",
		Long: `Open the interactive viewer.

Left click zooms in on the point under the cursor, right click zooms out.
R returns to the initial view, P saves the current frame as PNG and Escape
quits.`,
		Args: cobra.NoArgs,
	}

	defaultConfig := config.DefaultConfig()
	addViewFlags(cmd)
	flags := cmd.Flags()
	flags.Float64("alpha", defaultConfig.Navigation.Alpha, "the fraction of the remaining distance to the target covered each frame")
	flags.String("title", defaultConfig.Window.Title, "the window title")
	flags.String("snapshot-dir", ".", "the directory P key snapshots are written to")

	bindView := bindViewFlagsFunc(v)
	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		bindView(cmd, args)
		mustBindPFlag(v, "navigation.alpha", cmd.Flags().Lookup("alpha"))
		mustBindPFlag(v, "window.title", cmd.Flags().Lookup("title"))
	}

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

		snapshotDir, _ := cmd.Flags().GetString("snapshot-dir")
		viewer, err := app.New(cfg, pipeline, metrics.New(nil),
			app.WithLogger(log),
			app.WithSnapshotDir(snapshotDir),
		)
		if err != nil {
			return err
		}
		defer viewer.Cleanup()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return viewer.Run(ctx)
	}

	return cmd
}
