package workspace

import (
	"context"
	"strings"

	rerrors "github.com/matzehuels/rezls/pkg/errors"
	"github.com/matzehuels/rezls/pkg/validate"
)

// Commands an editor can execute.
const (
	CommandReload              = "rez.reload"
	CommandRebuildDependencies = "rez.rebuildDependencies"
	CommandRestart             = "rez.restart"
)

// Commands returns the supported command names.
func Commands() []string {
	return []string{CommandReload, CommandRebuildDependencies, CommandRestart}
}

// ExecuteCommand runs a named command.
//
// rez.reload rescans and rez.restart also drops the caches; both return
// [Stats]. rez.rebuildDependencies resolves afresh and returns a
// [ResolveResult]: its argument is either the URI of an open manifest,
// whose requirements (with its first variant) become the roots, or the
// root requirements themselves.
func (w *Workspace) ExecuteCommand(ctx context.Context, name string, args []string) (any, error) {
	switch name {
	case CommandReload:
		if _, err := w.Reload(ctx); err != nil {
			return nil, err
		}
		return w.Stats(), nil
	case CommandRestart:
		if _, err := w.Restart(ctx); err != nil {
			return nil, err
		}
		return w.Stats(), nil
	case CommandRebuildDependencies:
		roots, err := w.rootsOf(ctx, args)
		if err != nil {
			return nil, err
		}
		return w.Resolve(ctx, roots, ResolveOptions{Refresh: true})
	}
	return nil, rerrors.New(rerrors.ErrCodeUnsupported, "unknown command %q", name)
}

func (w *Workspace) rootsOf(ctx context.Context, args []string) ([]string, error) {
	if len(args) != 1 || !isDocument(args[0]) {
		return args, nil
	}
	d, ok := w.Document(args[0])
	if !ok {
		return nil, rerrors.New(rerrors.ErrCodeDocumentNotFound, "document %s is not open", args[0])
	}
	r, err := w.Validate(ctx, d.URI, d.Text)
	if err != nil {
		return nil, err
	}
	if r.Descriptor == nil {
		return nil, rerrors.New(rerrors.ErrCodeValidation, "%s has no usable name and version", d.URI)
	}
	if validate.HasErrors(r.Diagnostics) {
		w.logger.Debug("rebuilding dependencies of a manifest with errors", "uri", d.URI)
	}
	reqs := r.Descriptor.VariantRequires(0)
	roots := make([]string, len(reqs))
	for i, req := range reqs {
		roots[i] = req.String()
	}
	return roots, nil
}

func isDocument(arg string) bool {
	return strings.Contains(arg, "://") || strings.HasPrefix(arg, "/")
}
