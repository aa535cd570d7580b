package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	rerrors "github.com/matzehuels/rezls/pkg/errors"
	"github.com/matzehuels/rezls/pkg/io"
	"github.com/matzehuels/rezls/pkg/pipeline"
)

type resolveOpts struct {
	paths    []string
	output   string
	graph    string
	detailed bool
	refresh  bool
	noCache  bool
	timeout  time.Duration
	asJSON   bool
}

// resolveCommand creates the resolve command.
func (c *CLI) resolveCommand() *cobra.Command {
	opts := resolveOpts{}

	cmd := &cobra.Command{
		Use:   "resolve <requirement>...",
		Short: "Resolve requirements against the search paths",
		Long: `Resolve selects one version of every package the requirements pull in,
highest versions first, and prints the result.

--output writes the resolution as a resolved-context (.rxt) file. --graph
renders the dependency graph; the format follows the file extension (.dot,
.svg, .png or .pdf).`,
		Example: `  rezls resolve maya-2024 python-3
  rezls resolve maya-2024 -o maya.rxt --graph maya.svg
  rezls resolve "foo-1+<2" --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runResolve(cmd.Context(), args, opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.paths, "path", "p", nil, "package search path (repeatable)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write the resolved context to this .rxt file")
	cmd.Flags().StringVar(&opts.graph, "graph", "", "render the dependency graph to this file")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "show variants, sources and requirement labels in the graph")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "ignore cached resolutions")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the resolution cache entirely")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "resolve time limit (default resolve.timeout)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the resolved context as JSON")

	return cmd
}

func (c *CLI) runResolve(ctx context.Context, roots []string, opts resolveOpts) error {
	var formats []string
	graphFormat := ""
	if opts.graph != "" {
		var err error
		if graphFormat, err = formatOf(opts.graph); err != nil {
			return err
		}
		formats = append(formats, graphFormat)
	}

	runner, err := c.newRunner(ctx, opts.noCache)
	if err != nil {
		return err
	}
	defer runner.Close()

	timeout := opts.timeout
	if timeout == 0 {
		timeout = c.cfg.Resolve.Timeout
	}

	spinner := newSpinnerWithContext(ctx, "Resolving "+strings.Join(roots, " ")+"...")
	spinner.Start()
	result, err := runner.Execute(ctx, pipeline.Options{
		Roots:       roots,
		SearchPaths: c.searchPaths(opts.paths),
		Formats:     formats,
		Detailed:    opts.detailed,
		Refresh:     opts.refresh,
		Timeout:     timeout,
		TTL:         c.cfg.Cache.ResolveTTL,
		Logger:      c.Logger,
	})
	spinner.Stop()
	if err != nil {
		return err
	}

	if opts.output != "" {
		if err := io.Export(result.Context, opts.output); err != nil {
			return rerrors.Wrap(rerrors.ErrCodeIO, err, "write %s", opts.output)
		}
	}
	if graphFormat != "" {
		if err := os.WriteFile(opts.graph, result.Artifacts[graphFormat], 0o644); err != nil {
			return rerrors.Wrap(rerrors.ErrCodeIO, err, "write %s", opts.graph)
		}
	}

	if opts.asJSON {
		return io.Write(result.Context, stdout)
	}

	printSuccess("Resolved %s", strings.Join(roots, " "))
	for _, p := range result.Context.Packages {
		printKeyValue(p.Name, p.Version)
	}
	printStats(result.Stats.Packages, result.Stats.Steps, result.CacheInfo.ResolveHit)
	for _, f := range []string{opts.output, opts.graph} {
		if f != "" {
			printFile(f)
		}
	}
	return nil
}

// formatOf maps a graph file's extension to a render format.
func formatOf(path string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "" || ext == pipeline.FormatRXT {
		return "", rerrors.New(rerrors.ErrCodeInvalidInput, "cannot infer graph format from %q (use .dot, .svg, .png or .pdf)", path)
	}
	formats, err := parseFormats(ext)
	if err != nil {
		return "", err
	}
	return formats[0], nil
}
