package repo

import (
	"slices"
	"testing"

	"github.com/matzehuels/rezls/pkg/manifest"
	"github.com/matzehuels/rezls/pkg/version"
)

func desc(name, ver string) *manifest.Descriptor {
	return &manifest.Descriptor{Name: name, Version: version.MustParse(ver), SourcePath: "/repo/" + name + "/" + ver}
}

func build(t *testing.T, ds ...*manifest.Descriptor) *Snapshot {
	t.Helper()
	b := NewBuilder([]string{"/repo"})
	for _, d := range ds {
		if _, ok := b.Add(d); !ok {
			t.Fatalf("duplicate %s", d.ID())
		}
	}
	return b.Build(7)
}

func TestSnapshotOrdering(t *testing.T) {
	s := build(t, desc("foo", "1.0.0"), desc("foo", "2.0.0"), desc("foo", "1.10"), desc("bar", "1"))

	if s.Generation() != 7 {
		t.Errorf("Generation() = %d", s.Generation())
	}
	if got := s.Names(); !slices.Equal(got, []string{"bar", "foo"}) {
		t.Errorf("Names() = %v", got)
	}
	var vs []string
	for _, v := range s.Versions("foo") {
		vs = append(vs, v.String())
	}
	if !slices.Equal(vs, []string{"2.0.0", "1.10", "1.0.0"}) {
		t.Errorf("Versions(foo) = %v", vs)
	}
	if s.Len() != 4 {
		t.Errorf("Len() = %d", s.Len())
	}
}

func TestSnapshotLookup(t *testing.T) {
	s := build(t, desc("foo", "1.0.0"), desc("foo", "2.0.0"), desc("foo", "1.5"))

	d, ok := s.Lookup("foo", version.MustParse("1.5"))
	if !ok || d.Version.String() != "1.5" {
		t.Errorf("Lookup(1.5) = %v, %v", d, ok)
	}
	if _, ok := s.Lookup("foo", version.MustParse("1.5.0")); ok {
		t.Error("Lookup(1.5.0) matched 1.5")
	}
	if _, ok := s.Lookup("nope", version.MustParse("1")); ok {
		t.Error("Lookup on unknown name succeeded")
	}

	latest, _ := s.Latest("foo")
	if latest.Version.String() != "2.0.0" {
		t.Errorf("Latest = %s", latest.ID())
	}

	best, ok := s.Best(version.MustParseRequirement("foo-1+<2"))
	if !ok || best.Version.String() != "1.5" {
		t.Errorf("Best(foo-1+<2) = %v", best)
	}
	if got := s.Matching(version.MustParseRequirement("foo<2")); len(got) != 2 {
		t.Errorf("Matching(foo<2) = %d descriptors", len(got))
	}
}

func TestBuilderDuplicates(t *testing.T) {
	b := NewBuilder(nil)
	first := desc("foo", "1.0")
	if _, ok := b.Add(first); !ok {
		t.Fatal("first add rejected")
	}
	prev, ok := b.Add(desc("foo", "1-0"))
	if ok || prev != first {
		t.Errorf("Add(1-0) = %v, %v; want first descriptor kept", prev, ok)
	}
	b.Warn(Warning{Code: "D002", Path: "/b/foo/1-0", Message: "duplicate"})
	s := b.Build(1)
	if s.Len() != 1 || len(s.Warnings()) != 1 {
		t.Errorf("Len() = %d, warnings = %v", s.Len(), s.Warnings())
	}
}

func TestSearch(t *testing.T) {
	s := build(t, desc("python", "3"), desc("pyside", "6"), desc("numpy", "1"), desc("maya", "2024"))
	got := s.Search("py")
	if !slices.Equal(got, []string{"pyside", "python", "numpy"}) {
		t.Errorf("Search(py) = %v", got)
	}
}

func TestEmpty(t *testing.T) {
	s := Empty()
	if s.Generation() != 0 || s.Len() != 0 || s.Has("x") {
		t.Errorf("Empty() = %+v", s)
	}
}

func TestDigest(t *testing.T) {
	a := build(t, desc("foo", "1"), desc("bar", "2"))
	b := build(t, desc("bar", "2"), desc("foo", "1"))
	if a.Digest() == "" || a.Digest() != b.Digest() {
		t.Errorf("Digest() differs for identical content: %q vs %q", a.Digest(), b.Digest())
	}

	withReq := desc("foo", "1")
	withReq.Requires = []version.Requirement{version.MustParseRequirement("bar-2")}
	c := build(t, withReq, desc("bar", "2"))
	if c.Digest() == a.Digest() {
		t.Error("Digest() ignores requirements")
	}
}
