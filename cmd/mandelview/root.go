package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"mandelview/internal/compute"
	"mandelview/internal/config"
	"mandelview/internal/fractal"
	"mandelview/internal/logger"
)

// renderPipeline is a pipeline whose device resources the command owns.
type renderPipeline interface {
	fractal.Pipeline
	Release()
}

// newPipeline creates the OpenCL pipeline. Tests replace it.
var newPipeline = func(cfg *config.Config, log *zap.Logger) (renderPipeline, error) {
	opts := []compute.Option{compute.WithLogger(log)}
	if cfg.Render.KernelFile != "" {
		src, err := os.ReadFile(cfg.Render.KernelFile)
		if err != nil {
			return nil, fmt.Errorf("reading kernel file: %w", err)
		}
		opts = append(opts, compute.WithKernelSource(string(src)))
	}
	if cfg.Render.BuildOptions != "" {
		opts = append(opts, compute.WithBuildOptions(cfg.Render.BuildOptions))
	}
	if cfg.Render.Profiling {
		opts = append(opts, compute.WithProfiling())
	}

	p, err := compute.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating compute pipeline: %w", err)
	}
	return p, nil
}

// newRootCommand lets every subcommand read its settings from CLI flags,
// environment variables prefixed with MANDELVIEW, or config.yaml (in that
// order).
func newRootCommand() *cobra.Command {
	v := viper.New()
	v.SetConfigName("config")
	v.SetEnvPrefix("MANDELVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	configPaths := []string{"/etc/mandelview", "$HOME/.mandelview", "."}
	for _, path := range configPaths {
		v.AddConfigPath(path)
	}
	config.SetDefaults(v)

	cmd := &cobra.Command{
		Use:   "mandelview",
		Short: "Explore the Mandelbrot set on the GPU",
		Long: `Explore the Mandelbrot set on the GPU.

The escape-time image is computed in double precision by an OpenCL kernel.
"run" opens an interactive window, "render" writes a single PNG and "serve"
publishes tiles over HTTP.`,
		SilenceUsage: true,
	}

	defaultConfig := config.DefaultConfig()
	flags := cmd.PersistentFlags()

	flags.String("config", "", "path of the config file (default: config.yaml in /etc/mandelview, $HOME/.mandelview or .)")
	flags.String("log-format", defaultConfig.Log.Format, "the log format to output logs in: 'text' or 'json'")
	flags.String("log-level", defaultConfig.Log.Level, "the log level to use: 'none', 'debug', 'info', 'warn' or 'error'")
	flags.Uint32("max-iterations", defaultConfig.Render.MaxIterations, "the iteration budget per pixel")
	flags.String("kernel-file", defaultConfig.Render.KernelFile, "an OpenCL C source file replacing the built-in kernel")
	flags.String("build-options", defaultConfig.Render.BuildOptions, "options passed to the OpenCL kernel compiler, e.g. '-cl-mad-enable'")
	flags.Bool("profiling", defaultConfig.Render.Profiling, "enable command queue profiling")

	mustBindPFlag(v, "log.format", flags.Lookup("log-format"))
	mustBindPFlag(v, "log.level", flags.Lookup("log-level"))
	mustBindPFlag(v, "render.max_iterations", flags.Lookup("max-iterations"))
	mustBindPFlag(v, "render.kernel_file", flags.Lookup("kernel-file"))
	mustBindPFlag(v, "render.build_options", flags.Lookup("build-options"))
	mustBindPFlag(v, "render.profiling", flags.Lookup("profiling"))

	cmd.AddCommand(newRunCommand(v))
	cmd.AddCommand(newRenderCommand(v))
	cmd.AddCommand(newServeCommand(v))

	return cmd
}

// mustBindPFlag attempts to bind a key to a pflag and panics if the binding
// fails.
func mustBindPFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic("failed to bind pflag: " + err.Error())
	}
}

// readConfig loads the config file, if any, and decodes the configuration.
func readConfig(cmd *cobra.Command, v *viper.Viper) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		// only a file given explicitly has to exist
		if path != "" || !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	return config.Load(v)
}

// setup reads the configuration and builds the logger every subcommand
// starts from.
func setup(cmd *cobra.Command, v *viper.Viper) (*config.Config, *zap.Logger, error) {
	cfg, err := readConfig(cmd, v)
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.NewLogger(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// openPipeline creates the pipeline and logs setup failures, which end the
// command.
func openPipeline(cfg *config.Config, log *zap.Logger) (renderPipeline, error) {
	p, err := newPipeline(cfg, log)
	if err != nil {
		log.Error("compute pipeline setup failed",
			zap.Bool("setup", fractal.IsSetupError(err)),
			zap.Error(err),
		)
		return nil, err
	}
	return p, nil
}
