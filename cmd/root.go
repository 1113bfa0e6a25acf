// Package cmd provides the isomorph command-line interface.
//
// Configuration is resolved from several sources, highest priority first:
//  1. Command-line flags (--port, --shell, ...)
//  2. ISOMORPH_<SECTION>_<OPTION> environment variables
//  3. The configuration file: --config, else ISOMORPH_CONFIG_FILE, else
//     .isomorph.yml in the working directory
//  4. Built-in defaults
package cmd

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/isomorph/internal/config"
	"github.com/conneroisu/isomorph/internal/logging"
	"github.com/conneroisu/isomorph/internal/metrics"
	"github.com/conneroisu/isomorph/internal/renderer"
	"github.com/conneroisu/isomorph/internal/site"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "isomorph",
	Short: "Render one component tree as a static page, a server page and a hydrated client",
	Long: `isomorph renders a component tree into an HTML shell.

The same tree is rendered three ways:
  isomorph build     write the static document into the output directory
  isomorph serve     render the document on every request
  isomorph hydrate   adopt delivered markup and report mismatches

Configuration is read from .isomorph.yml, ISOMORPH_* environment variables
and flags.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .isomorph.yml, can also use ISOMORPH_CONFIG_FILE)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
}

// initConfig points viper at the configuration file and the environment.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("ISOMORPH_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".isomorph")
	}

	viper.SetEnvPrefix("ISOMORPH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// A missing file is fine; Load reports a broken one through validation.
	_ = viper.ReadInConfig()
}

var logBindings = map[string]string{
	"log-level":  "log.level",
	"log-format": "log.format",
}

// app bundles what every command needs once configuration is loaded.
type app struct {
	cfg      *config.Config
	logger   logging.Logger
	recorder *metrics.Recorder
}

// setup binds the command's flags, loads the configuration and creates the
// logger. Validation warnings are logged, errors returned.
func setup(cmd *cobra.Command, bindings ...map[string]string) (*app, error) {
	for _, b := range append([]map[string]string{logBindings}, bindings...) {
		if err := bindFlags(cmd, b); err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logCfg := cfg.Logging()
	logCfg.Output = cmd.ErrOrStderr()
	logger := logging.New(logCfg)

	ctx := contextOf(cmd)
	if used := viper.ConfigFileUsed(); used != "" {
		logger.Debug(ctx, "Using config file", "path", used)
	}
	result := config.ValidateConfigWithDetails(cfg)
	for i := range result.Warnings {
		w := &result.Warnings[i]
		logger.Warn(ctx, w, w.Message, "field", w.Field)
	}

	return &app{cfg: cfg, logger: logger, recorder: metrics.New()}, nil
}

// renderer returns a renderer configured from the loaded settings.
func (rt *app) renderer() *renderer.Renderer {
	return renderer.New(
		renderer.WithEnvironment(rt.cfg.RenderEnvironment(hostValues())),
		renderer.WithMaxDepth(rt.cfg.Render.MaxDepth),
		renderer.WithReserved(rt.cfg.Shell.Marker),
		renderer.WithLogger(rt.logger),
		renderer.WithRecorder(rt.recorder),
	)
}

// hostValues are the values components may read through the context
// capability.
func hostValues() map[string]any {
	return map[string]any{site.NameKey: "isomorph"}
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
