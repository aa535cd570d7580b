package io

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/matzehuels/rezls/pkg/dag"
	rerrors "github.com/matzehuels/rezls/pkg/errors"
	"github.com/matzehuels/rezls/pkg/resolve"
	"github.com/matzehuels/rezls/pkg/version"
)

// SerializeVersion is written to every context file.
const SerializeVersion = "4.0"

// Context is a decoded resolved-context file.
type Context struct {
	SerializeVersion string    `json:"serialize_version"`
	Requests         []string  `json:"requests"`
	Packages         []Package `json:"resolved_packages"`
	Graph            *Graph    `json:"graph,omitempty"`
}

// Package is one resolved package.
type Package struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	Variant    *int   `json:"variant,omitempty"`
	SourcePath string `json:"source_path,omitempty"`
}

// ID returns "name-version".
func (p Package) ID() string { return p.Name + "-" + p.Version }

// Graph is the serialized dependency graph.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Node is a serialized graph node; Row is omitted for row 0.
type Node struct {
	ID  string `json:"id"`
	Row *int   `json:"row,omitempty"`
}

// Edge is a serialized requirement edge.
type Edge struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Requirement string `json:"requirement,omitempty"`
}

// FromResolution captures res as a context.
func FromResolution(res *resolve.Resolution) *Context {
	c := &Context{
		SerializeVersion: SerializeVersion,
		Requests:         res.RootStrings(),
		Packages:         make([]Package, len(res.Packages)),
	}
	for i, ch := range res.Packages {
		p := Package{
			Name:       ch.Name(),
			Version:    ch.Descriptor.Version.String(),
			SourcePath: ch.Descriptor.SourcePath,
		}
		if ch.Variant >= 0 {
			v := ch.Variant
			p.Variant = &v
		}
		c.Packages[i] = p
	}
	if res.Graph != nil {
		c.Graph = fromDAG(res.Graph)
	}
	return c
}

func fromDAG(g *dag.DAG) *Graph {
	out := &Graph{
		Nodes: make([]Node, 0, g.NodeCount()),
		Edges: make([]Edge, 0, g.EdgeCount()),
	}
	for _, n := range g.Nodes() {
		nd := Node{ID: n.ID}
		if n.Row != 0 {
			row := n.Row
			nd.Row = &row
		}
		out.Nodes = append(out.Nodes, nd)
	}
	for _, e := range g.Edges() {
		out.Edges = append(out.Edges, Edge{From: e.From, To: e.To, Requirement: e.Requirement()})
	}
	return out
}

// DAG rebuilds the dependency graph. Without a stored graph it returns one
// node per package and no edges.
func (c *Context) DAG() (*dag.DAG, error) {
	g := dag.New(dag.Metadata{dag.MetaRoots: c.Requests})
	byName := make(map[string]Package, len(c.Packages))
	for _, p := range c.Packages {
		byName[p.Name] = p
		meta := dag.Metadata{dag.MetaVersion: p.Version, dag.MetaSource: p.SourcePath}
		if p.Variant != nil {
			meta[dag.MetaVariant] = *p.Variant
		}
		if err := g.AddNode(dag.Node{ID: p.Name, Meta: meta}); err != nil {
			return nil, fmt.Errorf("node %s: %w", p.Name, err)
		}
	}
	if c.Graph == nil {
		return g, nil
	}

	rows := make(map[string]int)
	for _, n := range c.Graph.Nodes {
		if _, ok := byName[n.ID]; !ok {
			return nil, fmt.Errorf("node %s: %w", n.ID, dag.ErrUnknownSourceNode)
		}
		if n.Row != nil {
			rows[n.ID] = *n.Row
		}
	}
	g.SetRows(rows)
	for _, e := range c.Graph.Edges {
		meta := dag.Metadata{}
		if e.Requirement != "" {
			meta[dag.MetaRequirement] = e.Requirement
		}
		if err := g.AddEdge(dag.Edge{From: e.From, To: e.To, Meta: meta}); err != nil {
			return nil, fmt.Errorf("edge %s->%s: %w", e.From, e.To, err)
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Validate checks the required keys and the package list.
func (c *Context) Validate() error {
	if c.SerializeVersion == "" {
		return rerrors.New(rerrors.ErrCodeValidation, "missing serialize_version")
	}
	if c.Requests == nil {
		return rerrors.New(rerrors.ErrCodeValidation, "missing requests")
	}
	if c.Packages == nil {
		return rerrors.New(rerrors.ErrCodeValidation, "missing resolved_packages")
	}
	seen := make(map[string]bool, len(c.Packages))
	for i, p := range c.Packages {
		if !version.IsValidName(p.Name) {
			return rerrors.New(rerrors.ErrCodeValidation, "resolved_packages[%d]: invalid package name %q", i, p.Name)
		}
		if _, err := version.Parse(p.Version); err != nil {
			return rerrors.Wrap(rerrors.ErrCodeValidation, err, "resolved_packages[%d]: invalid version", i)
		}
		if seen[p.Name] {
			return rerrors.New(rerrors.ErrCodeValidation, "resolved_packages[%d]: duplicate package %s", i, p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// Write encodes c as indented JSON.
func Write(c *Context, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// Read decodes and validates a context.
func Read(r io.Reader) (*Context, error) {
	var c Context
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return nil, rerrors.Wrap(rerrors.ErrCodeParse, err, "decode resolved context")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Export writes c to path, replacing any existing file atomically.
func Export(c *Context, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".rxt-*")
	if err != nil {
		return rerrors.Wrap(rerrors.ErrCodeIO, err, "create %s", path)
	}
	defer os.Remove(tmp.Name())
	if err := Write(c, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return rerrors.Wrap(rerrors.ErrCodeIO, err, "write %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return rerrors.Wrap(rerrors.ErrCodeIO, err, "write %s", path)
	}
	return nil
}

// Import reads the context file at path.
func Import(path string) (*Context, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, rerrors.Wrap(rerrors.ErrCodeIO, err, "open %s", path)
	}
	defer f.Close()
	return Read(f)
}
