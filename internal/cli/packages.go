package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/rezls/pkg/discovery"
	rerrors "github.com/matzehuels/rezls/pkg/errors"
	"github.com/matzehuels/rezls/pkg/query"
)

type packagesOpts struct {
	paths  []string
	purl   bool
	browse bool
	asJSON bool
}

// packageEntry is one row of the package listing.
type packageEntry struct {
	Name     string   `json:"name"`
	Latest   string   `json:"latest"`
	Versions []string `json:"versions"`
	PURL     string   `json:"purl,omitempty"`
}

// packagesCommand creates the packages command.
func (c *CLI) packagesCommand() *cobra.Command {
	opts := packagesOpts{}

	cmd := &cobra.Command{
		Use:     "packages [query]",
		Aliases: []string{"ls"},
		Short:   "List the packages on the search paths",
		Long: `Packages lists every package family with its versions, highest first.
A query keeps the names containing it, case-insensitively, with prefix
matches first.`,
		Example: `  rezls packages
  rezls packages py --purl
  rezls packages --browse`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := ""
			if len(args) == 1 {
				q = args[0]
			}
			return c.runPackages(cmd.Context(), q, opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.paths, "path", "p", nil, "package search path (repeatable)")
	cmd.Flags().BoolVar(&opts.purl, "purl", false, "include the package URL of the latest version")
	cmd.Flags().BoolVar(&opts.browse, "browse", false, "pick a package interactively and show its details")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the listing as JSON")
	cmd.MarkFlagsMutuallyExclusive("browse", "json")

	return cmd
}

func (c *CLI) runPackages(ctx context.Context, q string, opts packagesOpts) error {
	snap, err := discovery.NewScanner(c.searchPaths(opts.paths), discovery.WithLogger(c.Logger)).Scan(ctx, 1)
	if err != nil {
		return err
	}
	names := snap.Names()
	if q != "" {
		names = snap.Search(q)
	}

	entries := make([]packageEntry, 0, len(names))
	for _, name := range names {
		latest, ok := snap.Latest(name)
		if !ok {
			continue
		}
		e := packageEntry{Name: name, Latest: latest.Version.String()}
		for _, v := range snap.Versions(name) {
			e.Versions = append(e.Versions, v.String())
		}
		if opts.purl || opts.browse {
			e.PURL = query.PackageURL(latest)
		}
		entries = append(entries, e)
	}

	if opts.asJSON {
		return printJSON(entries)
	}
	if len(entries) == 0 {
		if q != "" {
			return rerrors.New(rerrors.ErrCodePackageNotFound, "no packages match %q", q)
		}
		printInfo("No packages found")
		return nil
	}
	if opts.browse {
		selected, err := browsePackages(entries)
		if err != nil || selected == nil {
			return err
		}
		printTitle(selected.Name)
		printKeyValue("Latest", selected.Latest)
		printKeyValue("Versions", strings.Join(selected.Versions, ", "))
		printKeyValue("PURL", selected.PURL)
		if d, ok := snap.Latest(selected.Name); ok {
			printFile(d.SourcePath)
		}
		return nil
	}
	for _, e := range entries {
		value := e.Latest
		if n := len(e.Versions); n > 1 {
			value += StyleDim.Render(" (" + plural(n, "version") + ")")
		}
		if e.PURL != "" {
			value += "  " + StyleDim.Render(e.PURL)
		}
		printKeyValue(e.Name, value)
	}
	return nil
}
