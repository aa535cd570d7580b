package cli

import (
	"context"
	"os"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	rerrors "github.com/matzehuels/rezls/pkg/errors"
	"github.com/matzehuels/rezls/pkg/validate"
)

// manifestGlob matches manifests under a search path.
const manifestGlob = "*/*/package.py"

type validateOpts struct {
	all    bool
	paths  []string
	strict bool
	asJSON bool
}

// fileReport is the --json form of one validated file.
type fileReport struct {
	Path        string                `json:"path"`
	Kind        string                `json:"kind"`
	Diagnostics []validate.Diagnostic `json:"diagnostics"`
}

// validateCommand creates the validate command.
func (c *CLI) validateCommand() *cobra.Command {
	opts := validateOpts{}

	cmd := &cobra.Command{
		Use:   "validate [file|glob]...",
		Short: "Check manifests and resolved-context files",
		Long: `Validate reports syntax, structure and requirement problems in
package.py manifests and .rxt resolved-context files. Arguments may be
doublestar globs such as "packages/**/package.py". With --all every manifest
on the search paths is checked.

The command fails when any error is found, or any warning with --strict.`,
		Example: `  rezls validate packages/maya/2024.1/package.py
  rezls validate "packages/**/package.py" --json
  rezls validate --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !opts.all {
				return rerrors.New(rerrors.ErrCodeInvalidInput, "no files given (use --all to check the search paths)")
			}
			return c.runValidate(cmd.Context(), args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.all, "all", false, "validate every manifest on the search paths")
	cmd.Flags().StringSliceVarP(&opts.paths, "path", "p", nil, "package search path for --all (repeatable)")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "fail on warnings too")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print diagnostics as JSON")

	return cmd
}

func (c *CLI) runValidate(ctx context.Context, args []string, opts validateOpts) error {
	files, err := expandFiles(args)
	if err != nil {
		return err
	}
	if opts.all {
		for _, root := range c.searchPaths(opts.paths) {
			found, err := doublestar.Glob(os.DirFS(root), manifestGlob)
			if err != nil {
				return rerrors.Wrap(rerrors.ErrCodeInvalidPath, err, "list manifests in %s", root)
			}
			for _, f := range found {
				files = append(files, filepath.Join(root, filepath.FromSlash(f)))
			}
		}
	}
	if len(files) == 0 {
		printInfo("No files to validate")
		return nil
	}

	v := validate.New(c.cfg.ValidationOptions())
	var reports []fileReport
	var errs, warns int
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return rerrors.Wrap(rerrors.ErrCodeInvalidPath, err, "resolve %s", path)
		}
		text, err := os.ReadFile(abs)
		if err != nil {
			return rerrors.Wrap(rerrors.ErrCodeIO, err, "read %s", path)
		}
		r := v.Document(abs, text)
		counts := validate.Counts(r.Diagnostics)
		errs += counts[validate.SeverityError]
		warns += counts[validate.SeverityWarning]
		reports = append(reports, fileReport{Path: path, Kind: r.Kind.String(), Diagnostics: nonNilDiags(r.Diagnostics)})
		c.Logger.Debug("validated", "path", path, "diagnostics", len(r.Diagnostics))
	}

	if opts.asJSON {
		if err := printJSON(reports); err != nil {
			return err
		}
	} else {
		for _, r := range reports {
			for _, d := range r.Diagnostics {
				printDiagnostic(r.Path, d)
			}
		}
	}

	if errs > 0 || (opts.strict && warns > 0) {
		return rerrors.New(rerrors.ErrCodeValidation, "%s, %s in %s",
			plural(errs, "error"), plural(warns, "warning"), plural(len(files), "file"))
	}
	if !opts.asJSON {
		printSuccess("Checked %s: %s", plural(len(files), "file"), plural(warns, "warning"))
	}
	return nil
}

// expandFiles expands glob arguments. Plain paths pass through unchanged
// so a missing file is reported when it is read.
func expandFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		pattern := filepath.ToSlash(arg)
		if !hasMeta(pattern) {
			files = append(files, arg)
			continue
		}
		if !doublestar.ValidatePattern(pattern) {
			return nil, rerrors.New(rerrors.ErrCodeInvalidInput, "invalid pattern %q", arg)
		}
		matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
		if err != nil {
			return nil, rerrors.Wrap(rerrors.ErrCodeInvalidInput, err, "expand %q", arg)
		}
		files = append(files, matches...)
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}

func hasMeta(pattern string) bool {
	for _, r := range pattern {
		switch r {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}

func nonNilDiags(d []validate.Diagnostic) []validate.Diagnostic {
	if d == nil {
		return []validate.Diagnostic{}
	}
	return d
}
