package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/isomorph/internal/server"
	"github.com/conneroisu/isomorph/internal/shell"
	"github.com/conneroisu/isomorph/internal/site"
	"github.com/conneroisu/isomorph/internal/watcher"
	"github.com/conneroisu/isomorph/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Render the site on every request",
	Long: `Start the HTTP server. GET / renders the site tree in interactive mode
and injects it into the shell; other paths are served from the static
directory. In development the shell is watched and connected browsers
reload when it changes.

Examples:
  isomorph serve
  isomorph serve --port 3000 --environment production
  isomorph serve --static-dir public`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addServerFlags(serveCmd)
	addShellFlags(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	rt, err := setup(cmd, serverBindings, buildBindings)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shells, cached, err := rt.shellSource(ctx)
	if err != nil {
		return err
	}

	srv := server.New(rt.cfg,
		server.NewRequestRenderer(shells, site.Page, rt.renderer()),
		server.WithLogger(rt.logger),
		server.WithRecorder(rt.recorder),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rt.logger.Info(ctx, "Serving", "addr", "http://"+rt.cfg.Addr(),
			"environment", rt.cfg.Server.Environment, "live_reload", rt.cfg.LiveReloadEnabled())
		return srv.ListenAndServe(ctx)
	})
	if cached != nil || rt.cfg.LiveReloadEnabled() {
		if _, statErr := os.Stat(rt.cfg.Build.Shell); statErr == nil {
			fw, err := rt.watchShell(func(ctx context.Context) {
				if cached != nil {
					cached.Invalidate()
				}
				if n := srv.Reload("shell changed"); n > 0 {
					rt.logger.Info(ctx, "Reloaded browsers", "clients", n)
				}
			})
			if err != nil {
				return err
			}
			g.Go(func() error { return fw.Run(ctx) })
		}
	}
	return g.Wait()
}

// shellSource picks how requests obtain the shell. A missing shell file
// falls back to the embedded default shell.
func (rt *app) shellSource(ctx context.Context) (shell.Source, *shell.CachedSource, error) {
	path, marker := rt.cfg.Build.Shell, rt.cfg.Shell.Marker
	if _, err := os.Stat(path); err != nil {
		rt.logger.Info(ctx, "Shell not found, serving the embedded default", "path", path)
		src, err := shell.NewStaticSource(web.DefaultShell, marker)
		if err != nil {
			return nil, nil, err
		}
		return src, nil, nil
	}
	if rt.cfg.Shell.Cache {
		cached := shell.NewCachedSource(path, marker)
		return cached, cached, nil
	}
	return shell.NewFileSource(path, marker), nil, nil
}

// watchShell returns a watcher calling onChange after the shell file
// changes.
func (rt *app) watchShell(onChange func(ctx context.Context)) (*watcher.FileWatcher, error) {
	fw, err := watcher.NewFileWatcher(watcher.DefaultDelay, watcher.WithLogger(rt.logger))
	if err != nil {
		return nil, err
	}
	fw.AddFilter(watcher.NoTempFilter)
	fw.AddHandler(func(ctx context.Context, _ []watcher.ChangeEvent) error {
		onChange(ctx)
		return nil
	})
	if err := fw.WatchFile(rt.cfg.Build.Shell); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return fw, nil
}
