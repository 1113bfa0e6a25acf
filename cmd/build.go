package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/isomorph/internal/build"
	"github.com/conneroisu/isomorph/internal/site"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Render the site into the shell and write the static document",
	Long: `Render the site tree once in static mode, inject it into the shell
and write the result into the output directory. The output directory is
cleared first; a broken shell leaves the previous build untouched.

Examples:
  isomorph build
  isomorph build --shell web/index.html --output-dir public
  isomorph build --manifest`,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
	addBuildFlags(buildCmd)
}

func runBuild(cmd *cobra.Command, _ []string) error {
	rt, err := setup(cmd, buildBindings)
	if err != nil {
		return err
	}
	res, err := rt.build(contextOf(cmd))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Built %s (%d bytes, sha256 %s)\n", res.OutputPath, res.Bytes, res.Hash[:12])
	return nil
}

// build runs one build of the site with the loaded configuration.
func (rt *app) build(ctx context.Context) (*build.Result, error) {
	orchestrator := build.NewOrchestrator(
		build.WithRenderer(rt.renderer()),
		build.WithLogger(rt.logger),
		build.WithRecorder(rt.recorder),
	)
	return orchestrator.Run(ctx, build.Options{
		ShellPath:  rt.cfg.Build.Shell,
		Marker:     rt.cfg.Shell.Marker,
		Factory:    site.Page,
		OutputDir:  rt.cfg.Build.OutputDir,
		OutputFile: rt.cfg.Build.OutputFile,
		Manifest:   rt.cfg.Build.Manifest,
	})
}
