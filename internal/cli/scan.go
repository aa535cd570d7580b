package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/matzehuels/rezls/pkg/discovery"
	"github.com/matzehuels/rezls/pkg/repo"
)

type scanOpts struct {
	paths  []string
	asJSON bool
}

// scanSummary is the --json form of a scan.
type scanSummary struct {
	SearchPaths []string       `json:"search_paths"`
	Digest      string         `json:"digest"`
	Names       int            `json:"names"`
	Packages    int            `json:"packages"`
	Warnings    []repo.Warning `json:"warnings"`
}

// scanCommand creates the scan command.
func (c *CLI) scanCommand() *cobra.Command {
	opts := scanOpts{}

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the package search paths",
		Long: `Scan walks every search path, parses each package.py it finds and
reports the packages and any scan warnings, such as unreadable manifests or
versions shadowed by a higher-priority path.`,
		Example: `  rezls scan
  rezls scan -p ./packages -p ./release --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runScan(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.paths, "path", "p", nil, "package search path (repeatable)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the summary as JSON")

	return cmd
}

func (c *CLI) runScan(ctx context.Context, opts scanOpts) error {
	paths := c.searchPaths(opts.paths)
	scanner := discovery.NewScanner(paths, discovery.WithLogger(c.Logger))

	spinner := newSpinnerWithContext(ctx, "Scanning packages...")
	spinner.Start()
	snap, err := scanner.Scan(ctx, 1)
	spinner.Stop()
	if err != nil {
		return err
	}

	if opts.asJSON {
		return printJSON(scanSummary{
			SearchPaths: snap.SearchPaths(),
			Digest:      snap.Digest(),
			Names:       len(snap.Names()),
			Packages:    snap.Len(),
			Warnings:    nonNilWarnings(snap.Warnings()),
		})
	}

	printSuccess("Found %s in %s", plural(snap.Len(), "package version"), plural(len(snap.Names()), "name"))
	for _, p := range snap.SearchPaths() {
		printDetail("%s", p)
	}
	warnings := snap.Warnings()
	for _, w := range warnings {
		printWarning("%s", w.String())
	}
	if len(warnings) > 0 {
		printNextStep("Check manifests", appName+" validate --all")
	}
	return nil
}

func nonNilWarnings(w []repo.Warning) []repo.Warning {
	if w == nil {
		return []repo.Warning{}
	}
	return w
}
