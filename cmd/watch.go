package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/isomorph/internal/errors"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Build, then rebuild whenever the shell changes",
	Long: `Run a build and keep rebuilding when the shell template changes.
A failed rebuild is reported and the previous document stays in place.

Examples:
  isomorph watch
  isomorph watch --shell web/index.html --output-dir public`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	addBuildFlags(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	rt, err := setup(cmd, buildBindings)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	handler := errors.NewErrorHandler(rt.logger)
	rebuild := func(ctx context.Context) {
		res, err := rt.build(ctx)
		if err != nil {
			handler.Handle(ctx, err)
			return
		}
		fmt.Fprintf(out, "Built %s (%d bytes, sha256 %s)\n", res.OutputPath, res.Bytes, res.Hash[:12])
	}

	fw, err := rt.watchShell(rebuild)
	if err != nil {
		return err
	}
	rebuild(ctx)
	rt.logger.Info(ctx, "Watching shell", "path", rt.cfg.Build.Shell)

	return fw.Run(ctx)
}
