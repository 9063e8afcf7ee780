package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mandelview/internal/config"
	"mandelview/internal/fractal"
	"mandelview/internal/metrics"
	"mandelview/internal/tileserver"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve rendered tiles over HTTP",
		Long: `Serve rendered tiles over HTTP.

Tiles are addressed as /tile/{zoom}/{x}/{y}.png, where the zoom 0 tile covers
the whole set. Rendered tiles are cached on disk and their neighbours are
prefetched in the background.`,
		Args: cobra.NoArgs,
	}

	defaultConfig := config.DefaultConfig()
	flags := cmd.Flags()

	flags.String("addr", defaultConfig.Server.Addr, "the host:port address to serve tiles on")
	mustBindPFlag(v, "server.addr", flags.Lookup("addr"))

	flags.String("cache-dir", defaultConfig.Server.CacheDir, "the directory rendered tiles are cached in")
	mustBindPFlag(v, "server.cache_dir", flags.Lookup("cache-dir"))

	flags.Int("tile-size", defaultConfig.Server.TileSize, "the edge length of a tile in pixels")
	mustBindPFlag(v, "server.tile_size", flags.Lookup("tile-size"))

	flags.Uint32("tile-max-iterations", defaultConfig.Server.MaxIterations, "the iteration budget per tile pixel")
	mustBindPFlag(v, "server.max_iterations", flags.Lookup("tile-max-iterations"))

	flags.Int("workers", defaultConfig.Server.Workers, "the number of prefetch workers")
	mustBindPFlag(v, "server.workers", flags.Lookup("workers"))

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

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg, pipeline, log)
	}

	return cmd
}

func serve(ctx context.Context, cfg *config.Config, pipeline fractal.Pipeline, log *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	cache, err := tileserver.NewTileCache(pipeline, cfg.Server.CacheDir, cfg.Server.Workers,
		tileserver.WithTileSize(cfg.Server.TileSize),
		tileserver.WithMaxIterations(cfg.Server.MaxIterations),
		tileserver.WithLogger(log),
		tileserver.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	defer cache.Close()

	srv := tileserver.NewServer(cache, cfg.Server.Addr,
		tileserver.WithGatherer(reg),
		tileserver.WithServerLogger(log),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("tile server shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
