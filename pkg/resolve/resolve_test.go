package resolve

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"
	"time"

	rerrors "github.com/matzehuels/rezls/pkg/errors"
	"github.com/matzehuels/rezls/pkg/manifest"
	"github.com/matzehuels/rezls/pkg/repo"
	"github.com/matzehuels/rezls/pkg/version"
)

// spec is "name-version: req, req" with optional "| req, req" variants.
func snapshot(t *testing.T, specs ...string) *repo.Snapshot {
	t.Helper()
	b := repo.NewBuilder(nil)
	for _, s := range specs {
		head, rest, _ := strings.Cut(s, ":")
		i := strings.Index(head, "-")
		d := &manifest.Descriptor{
			Name:       head[:i],
			Version:    version.MustParse(head[i+1:]),
			SourcePath: "/repo/" + head[:i] + "/" + head[i+1:] + "/package.py",
		}
		parts := strings.Split(rest, "|")
		d.Requires = reqs(parts[0])
		for _, v := range parts[1:] {
			d.Variants = append(d.Variants, reqs(v))
		}
		if _, ok := b.Add(d); !ok {
			t.Fatalf("duplicate %s", head)
		}
	}
	return b.Build(1)
}

func reqs(s string) []version.Requirement {
	var out []version.Requirement
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, version.MustParseRequirement(f))
		}
	}
	return out
}

func resolve(t *testing.T, snap *repo.Snapshot, roots ...string) (*Resolution, error) {
	t.Helper()
	return New(Options{}).ResolveStrings(context.Background(), roots, snap)
}

func TestScenarioA(t *testing.T) {
	snap := snapshot(t, "foo-1.0.0:", "foo-2.0.0:")
	res, err := resolve(t, snap, "foo-1+<2")
	if err != nil {
		t.Fatal(err)
	}
	if got := res.IDs(); !slices.Equal(got, []string{"foo-1.0.0"}) {
		t.Errorf("IDs() = %v", got)
	}
}

func TestScenarioB(t *testing.T) {
	snap := snapshot(t,
		"foo-1.0: baz>=1.0",
		"bar-1.0: baz<1.0",
		"baz-0.9:", "baz-1.0:", "baz-1.5:",
	)
	_, err := resolve(t, snap, "foo", "bar")

	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want *ConflictError", err)
	}
	if !rerrors.Is(err, rerrors.ErrCodeConflict) {
		t.Error("conflict does not carry CONFLICT code")
	}
	if ce.Name != "baz" {
		t.Errorf("conflict on %q, want baz", ce.Name)
	}
	var got []string
	for _, c := range ce.Requirements {
		got = append(got, c.Requirement.String())
	}
	slices.Sort(got)
	if !slices.Equal(got, []string{"baz-1.0+", "baz<1.0"}) {
		t.Errorf("conflict requirements = %v", got)
	}
	for _, want := range []string{"baz-1.0+", "baz<1.0", "foo-1.0", "bar-1.0"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestResolveCases(t *testing.T) {
	tests := []struct {
		name  string
		specs []string
		roots []string
		want  []string
	}{
		{
			name:  "transitive, dependencies first",
			specs: []string{"maya-2024.0: python-3", "python-3.10:", "python-3.9:", "python-2.7:"},
			roots: []string{"maya"},
			want:  []string{"python-3.10", "maya-2024.0"},
		},
		{
			name:  "backtrack to older version",
			specs: []string{"foo-2: bar-2", "foo-1: bar-1", "bar-1:", "bar-2:"},
			roots: []string{"foo", "bar<2"},
			want:  []string{"bar-1", "foo-1"},
		},
		{
			name:  "shared dependency satisfies both",
			specs: []string{"a-1: c-1+", "b-1: c<3", "c-1:", "c-2:", "c-3:"},
			roots: []string{"a", "b"},
			want:  []string{"c-2", "a-1", "b-1"},
		},
		{
			name:  "weak requirement not selected alone",
			specs: []string{"foo-1:", "foo-2:"},
			roots: []string{"~foo-1"},
			want:  []string{},
		},
		{
			name:  "weak requirement constrains selection",
			specs: []string{"bar-1: foo", "foo-1:", "foo-2:"},
			roots: []string{"~foo-1", "bar"},
			want:  []string{"foo-1", "bar-1"},
		},
		{
			name:  "conflict requirement excludes range",
			specs: []string{"bar-1: foo", "foo-1:", "foo-2:"},
			roots: []string{"!foo-2", "bar"},
			want:  []string{"foo-1", "bar-1"},
		},
		{
			name:  "empty roots",
			specs: []string{"foo-1:"},
			roots: nil,
			want:  []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := resolve(t, snapshot(t, tt.specs...), tt.roots...)
			if err != nil {
				t.Fatal(err)
			}
			if got := res.IDs(); !slices.Equal(got, tt.want) {
				t.Errorf("IDs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVariants(t *testing.T) {
	snap := snapshot(t,
		"tool-1: | python-2 | python-3",
		"python-2.7:", "python-3.11:",
	)
	res, err := resolve(t, snap, "tool", "python-3")
	if err != nil {
		t.Fatal(err)
	}
	c, ok := res.Lookup("tool")
	if !ok || c.Variant != 1 {
		t.Errorf("tool variant = %d, want 1", c.Variant)
	}
	if py, _ := res.Lookup("python"); py.Descriptor.Version.String() != "3.11" {
		t.Errorf("python = %s", py.Descriptor.ID())
	}
	if res.Graph.EdgeCount() != 1 {
		t.Errorf("graph edges = %d, want tool>python", res.Graph.EdgeCount())
	}
}

func TestMissingPackage(t *testing.T) {
	_, err := resolve(t, snapshot(t, "foo-1: ghost-2"), "foo")
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want *ConflictError", err)
	}
	if ce.Name != "ghost" || len(ce.Requirements) != 1 || ce.Requirements[0].From != "foo-1" {
		t.Errorf("conflict = %+v", ce)
	}
}

func TestCycle(t *testing.T) {
	snap := snapshot(t, "a-1: b", "b-1: c", "c-1: a")
	_, err := resolve(t, snap, "a")
	var cyc *CycleError
	if !errors.As(err, &cyc) {
		t.Fatalf("error = %v, want *CycleError", err)
	}
	if !slices.Equal(cyc.Cycle, []string{"a-1", "b-1", "c-1", "a-1"}) {
		t.Errorf("Cycle = %v", cyc.Cycle)
	}
	if !rerrors.Is(err, rerrors.ErrCodeCycle) {
		t.Error("cycle does not carry CYCLE code")
	}
}

func TestTimeout(t *testing.T) {
	snap := snapshot(t, "foo-1:")
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := New(Options{}).ResolveStrings(ctx, []string{"foo"}, snap)
	if !rerrors.Is(err, rerrors.ErrCodeTimeout) {
		t.Errorf("error = %v, want TIMEOUT", err)
	}
	if !rerrors.Retriable(err) {
		t.Error("timeout not retriable")
	}
}

func TestInvalidRoot(t *testing.T) {
	_, err := resolve(t, snapshot(t), "-foo")
	var pe *version.ParseError
	if !errors.As(err, &pe) {
		t.Errorf("error = %v, want *version.ParseError", err)
	}
}

// randomRepo builds a repository where every package version requires a
// few ranges on later packages, so it is acyclic.
func randomRepo(t *testing.T, seed uint64) *repo.Snapshot {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, seed))
	names := []string{"a", "b", "c", "d", "e", "f"}
	ops := []string{"-%d", ">=%d", "<%d", "-%d+<%d"}
	var specs []string
	for i, name := range names {
		for v := 1; v <= 3; v++ {
			var rs []string
			for j := i + 1; j < len(names); j++ {
				if rng.IntN(3) != 0 {
					continue
				}
				op := ops[rng.IntN(len(ops))]
				lo := 1 + rng.IntN(3)
				var r string
				if strings.Count(op, "%d") == 2 {
					r = names[j] + fmt.Sprintf(op, lo, lo+1)
				} else {
					r = names[j] + fmt.Sprintf(op, lo)
				}
				rs = append(rs, r)
			}
			specs = append(specs, fmt.Sprintf("%s-%d: %s", name, v, strings.Join(rs, ",")))
		}
	}
	return snapshot(t, specs...)
}

func TestSoundnessAndDeterminism(t *testing.T) {
	roots := [][]string{{"a"}, {"a", "b"}, {"c", "a-1"}, {"b", "d<3", "f"}}
	for seed := uint64(1); seed <= 25; seed++ {
		snap := randomRepo(t, seed)
		for _, rs := range roots {
			first, err1 := resolve(t, snap, rs...)
			reversed := slices.Clone(rs)
			slices.Reverse(reversed)
			second, err2 := resolve(t, snap, reversed...)

			if (err1 == nil) != (err2 == nil) {
				t.Fatalf("seed %d roots %v: outcome depends on root order: %v vs %v", seed, rs, err1, err2)
			}
			if err1 != nil {
				var ce *ConflictError
				if !errors.As(err1, &ce) {
					t.Fatalf("seed %d roots %v: unexpected error %v", seed, rs, err1)
				}
				checkMinimal(t, snap, ce)
				if err1.Error() != err2.Error() {
					t.Errorf("seed %d roots %v: conflict depends on root order: %v vs %v", seed, rs, err1, err2)
				}
				continue
			}

			checkSound(t, first)
			if !slices.Equal(first.IDs(), second.IDs()) {
				t.Fatalf("seed %d roots %v: %v, reversed %v", seed, rs, first.IDs(), second.IDs())
			}
			again, _ := resolve(t, snap, rs...)
			if !slices.Equal(first.IDs(), again.IDs()) {
				t.Fatalf("seed %d roots %v: %v then %v", seed, rs, first.IDs(), again.IDs())
			}
		}
	}
}

func checkSound(t *testing.T, res *Resolution) {
	t.Helper()
	for _, root := range res.Roots {
		checkSatisfied(t, res, root, "root")
	}
	for _, c := range res.Packages {
		for _, r := range c.Requires() {
			checkSatisfied(t, res, r, c.Descriptor.ID())
		}
	}
}

func checkSatisfied(t *testing.T, res *Resolution, r version.Requirement, from string) {
	t.Helper()
	c, ok := res.Lookup(r.Name)
	switch {
	case !ok && r.Positive():
		t.Errorf("%s requires %s, which was not selected", from, r)
	case ok && !r.Allows(c.Descriptor.Version):
		t.Errorf("%s requires %s, selected %s", from, r, c.Descriptor.ID())
	}
}

// checkMinimal asserts that the reported requirements cannot hold together
// and that dropping any one of them lifts the conflict.
func checkMinimal(t *testing.T, snap *repo.Snapshot, ce *ConflictError) {
	t.Helper()
	if len(ce.Requirements) == 0 {
		t.Fatalf("conflict %v lists no requirements", ce)
	}
	if ce.Name == "" {
		if resolvable(snap, ce.Requirements) {
			t.Errorf("conflict %v: the roots resolve together", ce)
		}
		for i := range ce.Requirements {
			rest := slices.Delete(slices.Clone(ce.Requirements), i, i+1)
			if !resolvable(snap, rest) {
				t.Errorf("conflict %v is not minimal: dropping %s still fails", ce, ce.Requirements[i])
			}
		}
		return
	}
	versions := snap.Versions(ce.Name)
	for _, v := range versions {
		if allowsAll(ce.Requirements, v) {
			t.Fatalf("conflict %v is satisfied by %s-%s", ce, ce.Name, v)
		}
	}
	if !unsatisfiable(ce.Requirements, versions) {
		t.Fatalf("conflict %v does not force %s", ce, ce.Name)
	}
	for i := range ce.Requirements {
		rest := slices.Delete(slices.Clone(ce.Requirements), i, i+1)
		if unsatisfiable(rest, versions) {
			t.Errorf("conflict %v is not minimal: dropping %s keeps it unsatisfiable", ce, ce.Requirements[i])
		}
	}
}

func resolvable(snap *repo.Snapshot, cs []Constraint) bool {
	roots := make([]version.Requirement, len(cs))
	for i, c := range cs {
		roots[i] = c.Requirement
	}
	_, err := New(Options{}).Resolve(context.Background(), roots, snap)
	return err == nil
}

func TestConflictAfterEarlierChoice(t *testing.T) {
	// Choosing z-2 for x clashes with y's z-1, which is not the conflict:
	// z-1 itself needs w-1 while y needs w-2.
	snap := snapshot(t,
		"x-1: z",
		"y-1: z-1, w-2",
		"z-1: w-1",
		"z-2: w-2",
		"w-1:", "w-2:",
	)
	for _, roots := range [][]string{{"x", "y"}, {"y", "x"}} {
		_, err := resolve(t, snap, roots...)
		var ce *ConflictError
		if !errors.As(err, &ce) {
			t.Fatalf("roots %v: error = %v, want *ConflictError", roots, err)
		}
		checkMinimal(t, snap, ce)
		if ce.Name != "w" {
			t.Errorf("roots %v: conflict on %q, want w", roots, ce.Name)
		}
		for _, want := range []string{"z-1", "y-1"} {
			if !strings.Contains(err.Error(), want) {
				t.Errorf("roots %v: error %q does not mention %s", roots, err, want)
			}
		}
	}
}

func TestRootOrderIrrelevant(t *testing.T) {
	// Either a-2 with b-1 or a-1 with b-2 works; the pick must not depend
	// on which root is listed first.
	snap := snapshot(t,
		"a-2: c-1", "a-1: c-2",
		"b-2: c-2", "b-1: c-1",
		"c-1:", "c-2:",
	)
	first, err := resolve(t, snap, "a", "b")
	if err != nil {
		t.Fatal(err)
	}
	second, err := resolve(t, snap, "b", "a")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(first.IDs(), second.IDs()) {
		t.Errorf("[a b] -> %v, [b a] -> %v", first.IDs(), second.IDs())
	}
	if want := []string{"c-1", "a-2", "b-1"}; !slices.Equal(first.IDs(), want) {
		t.Errorf("IDs() = %v, want %v", first.IDs(), want)
	}
	if got := second.RootStrings(); !slices.Equal(got, []string{"b", "a"}) {
		t.Errorf("RootStrings() = %v, want caller order", got)
	}
}

func TestCanonical(t *testing.T) {
	got := requirementStrings(canonical(reqs("foo, ~bar-1, baz, !qux, bar")))
	want := []string{"!qux", "~bar-1", "bar", "baz", "foo"}
	if !slices.Equal(got, want) {
		t.Errorf("canonical() = %v, want %v", got, want)
	}
}

func TestRootConflict(t *testing.T) {
	snap := snapshot(t,
		"foo-1.0: baz>=1.0",
		"bar-1.0: baz<1.0",
		"baz-0.9:", "baz-1.0:",
		"other-1:",
	)
	ce := rootConflict(context.Background(), reqs("bar, foo, other"), snap)
	if ce.Name != "" {
		t.Errorf("Name = %q, want none", ce.Name)
	}
	checkMinimal(t, snap, ce)
	var got []string
	for _, c := range ce.Requirements {
		got = append(got, c.String())
	}
	if !slices.Equal(got, []string{"bar (root)", "foo (root)"}) {
		t.Errorf("requirements = %v", got)
	}
	if !strings.HasPrefix(ce.Error(), "requirements cannot be resolved together: ") {
		t.Errorf("Error() = %q", ce.Error())
	}
}

func TestMinimize(t *testing.T) {
	versions := []version.Version{version.MustParse("1"), version.MustParse("2"), version.MustParse("3")}
	c := func(s string) Constraint { return Constraint{Requirement: version.MustParseRequirement(s)} }
	got := minimize([]Constraint{c("x>=1"), c("x>=2"), c("x<2"), c("x-1+")}, versions)
	var texts []string
	for _, g := range got {
		texts = append(texts, g.Requirement.String())
	}
	if !slices.Equal(texts, []string{"x-2+", "x<2"}) {
		t.Errorf("minimize() = %v", texts)
	}
}
