package resolve

import (
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/matzehuels/rezls/pkg/dag"
	"github.com/matzehuels/rezls/pkg/dag/transform"
	"github.com/matzehuels/rezls/pkg/manifest"
	"github.com/matzehuels/rezls/pkg/repo"
	"github.com/matzehuels/rezls/pkg/version"
)

// Constraint is a requirement together with where it came from.
type Constraint struct {
	Requirement version.Requirement
	// From is the ID of the package declaring the requirement, or "" for a
	// root requirement.
	From string
	// Chain lists the package IDs from a root requirement down to From.
	Chain []string
}

// String formats the constraint as "req (required by chain)".
func (c Constraint) String() string {
	if c.From == "" {
		return c.Requirement.String() + " (root)"
	}
	return c.Requirement.String() + " (required by " + strings.Join(c.Chain, " > ") + ")"
}

// Choice is one selected package.
type Choice struct {
	Descriptor *manifest.Descriptor
	// Variant is the chosen variant index, or -1 for a package without
	// variants.
	Variant int
}

// Name returns the package name.
func (c Choice) Name() string { return c.Descriptor.Name }

// Requires returns the requirements in force for the choice.
func (c Choice) Requires() []version.Requirement {
	return c.Descriptor.VariantRequires(c.Variant)
}

// Resolution is a consistent selection: for every chosen package, each of
// its requirements is satisfied by the choice made for that name.
type Resolution struct {
	Roots []version.Requirement
	// Generation and Digest identify the snapshot resolved against.
	Generation uint64
	Digest     string
	// Packages lists the choices dependencies first, ties broken by name.
	Packages []Choice
	// Graph holds one node per choice and one edge per positive
	// requirement between chosen packages.
	Graph    *dag.DAG
	Steps    int
	Duration time.Duration
}

// Lookup returns the choice for name.
func (r *Resolution) Lookup(name string) (Choice, bool) {
	for _, c := range r.Packages {
		if c.Name() == name {
			return c, true
		}
	}
	return Choice{}, false
}

// IDs returns "name-version" for every choice, in order.
func (r *Resolution) IDs() []string {
	out := make([]string, len(r.Packages))
	for i, c := range r.Packages {
		out[i] = c.Descriptor.ID()
	}
	return out
}

// RootStrings returns the root requirements as text.
func (r *Resolution) RootStrings() []string { return requirementStrings(r.Roots) }

func newResolution(roots []version.Requirement, snap *repo.Snapshot, st *state, steps int, d time.Duration) *Resolution {
	g := dag.New(dag.Metadata{dag.MetaRoots: requirementStrings(roots)})
	names := slices.Sorted(maps.Keys(st.chosen))
	for _, name := range names {
		ch := st.chosen[name]
		_ = g.AddNode(dag.Node{ID: name, Meta: dag.Metadata{
			dag.MetaVersion: ch.desc.Version.String(),
			dag.MetaVariant: ch.variant,
			dag.MetaSource:  ch.desc.SourcePath,
		}})
	}
	for _, name := range names {
		ch := st.chosen[name]
		for _, req := range ch.desc.VariantRequires(ch.variant) {
			if !req.Positive() {
				continue
			}
			_ = g.AddEdge(dag.Edge{From: name, To: req.Name, Meta: dag.Metadata{dag.MetaRequirement: req.String()}})
		}
	}
	transform.AssignLayers(g)

	// Cycles were rejected during the search, so the order always exists.
	order, _ := g.TopologicalOrder()
	pkgs := make([]Choice, len(order))
	for i, name := range order {
		ch := st.chosen[name]
		pkgs[i] = Choice{Descriptor: ch.desc, Variant: ch.variant}
	}

	return &Resolution{
		Roots:      slices.Clone(roots),
		Generation: snap.Generation(),
		Digest:     snap.Digest(),
		Packages:   pkgs,
		Graph:      g,
		Steps:      steps,
		Duration:   d,
	}
}
