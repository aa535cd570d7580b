package cli

import (
	"context"
	"net"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/rezls/internal/api"
	"github.com/matzehuels/rezls/internal/workspace"
	"github.com/matzehuels/rezls/pkg/validate"
)

type serveOpts struct {
	addr         string
	paths        []string
	noWatch      bool
	maxBodyBytes int64
}

// serveCommand creates the serve command, which holds a workspace in memory
// and exposes it over HTTP until interrupted.
func (c *CLI) serveCommand() *cobra.Command {
	opts := serveOpts{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve validation, completion and resolution over HTTP",
		Long: `Serve scans the search paths once, then answers editor requests over
HTTP/JSON. Manifests are rescanned when they change on disk unless
--no-watch is given or watch.enabled is false.`,
		Example: `  rezls serve
  rezls serve --addr :7878 --path ./packages`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address (default server.addr)")
	cmd.Flags().StringSliceVarP(&opts.paths, "path", "p", nil, "package search path (repeatable)")
	cmd.Flags().BoolVar(&opts.noWatch, "no-watch", false, "do not rescan when manifests change")
	cmd.Flags().Int64Var(&opts.maxBodyBytes, "max-body", api.DefaultMaxBodyBytes, "maximum request body size in bytes")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, opts serveOpts) error {
	ws, err := c.newWorkspace(ctx, opts.paths, workspace.PublisherFunc(c.publish))
	if err != nil {
		return err
	}
	defer ws.Close()

	prog := newProgress(c.Logger)
	snap, err := ws.Reload(ctx)
	if err != nil {
		return err
	}
	prog.done("Scanned " + plural(snap.Len(), "package version"))
	for _, w := range snap.Warnings() {
		c.Logger.Warn(w.Message, "code", w.Code, "path", w.Path)
	}

	addr := opts.addr
	if addr == "" {
		addr = c.cfg.Server.Addr
	}
	server := api.New(ws, api.Options{Logger: c.Logger, MaxBodyBytes: opts.maxBodyBytes})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx, addr, func(a net.Addr) {
			c.Logger.Info("listening", "addr", a.String(), "search_paths", ws.SearchPaths())
		})
	})
	if c.cfg.Watch.Enabled && !opts.noWatch {
		g.Go(func() error {
			return ws.Watch(gctx, c.cfg.Watch.Debounce)
		})
	}
	err = g.Wait()
	if ctx.Err() != nil {
		c.Logger.Info("shutting down")
		return nil
	}
	return err
}

// publish logs published diagnostics. Editors poll them over HTTP.
func (c *CLI) publish(uri string, version int, diags []validate.Diagnostic) {
	counts := validate.Counts(diags)
	c.Logger.Debug("diagnostics",
		"uri", uri,
		"version", version,
		"errors", counts[validate.SeverityError],
		"warnings", counts[validate.SeverityWarning])
}
