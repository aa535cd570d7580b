package dag

import (
	"errors"
	"maps"
	"slices"
)

var (
	// ErrInvalidNodeID is returned by [DAG.AddNode] when the node ID is
	// empty. All nodes must have non-empty identifiers.
	ErrInvalidNodeID = errors.New("node ID must not be empty")

	// ErrDuplicateNodeID is returned by [DAG.AddNode] when a node with the
	// same ID already exists in the graph. Node IDs must be unique.
	ErrDuplicateNodeID = errors.New("duplicate node ID")

	// ErrUnknownSourceNode is returned by [DAG.AddEdge] when the From node
	// does not exist.
	ErrUnknownSourceNode = errors.New("unknown source node")

	// ErrUnknownTargetNode is returned by [DAG.AddEdge] when the To node
	// does not exist in the graph.
	ErrUnknownTargetNode = errors.New("unknown target node")

	// ErrInvalidEdgeEndpoint is returned by [DAG.Validate] when an edge
	// references a node that doesn't exist. This indicates graph corruption.
	ErrInvalidEdgeEndpoint = errors.New("invalid edge endpoint")

	// ErrGraphHasCycle is returned by [DAG.Validate] and
	// [DAG.TopologicalOrder] when a cycle is detected.
	ErrGraphHasCycle = errors.New("graph contains a cycle")
)

// Metadata keys set by the resolver.
const (
	MetaVersion     = "version"
	MetaVariant     = "variant"
	MetaSource      = "source"
	MetaRequirement = "requirement"
	MetaRoots       = "roots"
)

// Metadata stores arbitrary key-value pairs attached to nodes, edges or the
// graph. Metadata maps are never nil after they are added to a DAG.
type Metadata map[string]any

// Node is a package in a resolved graph, identified by package name. Row is
// its depth below the roots, assigned by transform.AssignLayers.
type Node struct {
	ID   string
	Row  int
	Meta Metadata
}

// Version returns the node's version metadata, or "".
func (n Node) Version() string {
	s, _ := n.Meta[MetaVersion].(string)
	return s
}

// Label returns "name-version", or the bare name without a version.
func (n Node) Label() string {
	if v := n.Version(); v != "" {
		return n.ID + "-" + v
	}
	return n.ID
}

// Edge is a requirement from one package on another.
type Edge struct {
	From string
	To   string
	Meta Metadata
}

// Requirement returns the edge's requirement text, or "".
func (e Edge) Requirement() string {
	s, _ := e.Meta[MetaRequirement].(string)
	return s
}

// DAG is a directed acyclic graph of packages.
//
// The zero value is not usable - use New to create a valid DAG instance.
// DAG is not safe for concurrent mutation; a finished graph may be read
// from several goroutines.
type DAG struct {
	nodes    map[string]*Node
	edges    []Edge
	outgoing map[string][]string
	incoming map[string][]string
	meta     Metadata
}

// New creates an empty DAG with optional graph-level metadata.
func New(meta Metadata) *DAG {
	if meta == nil {
		meta = Metadata{}
	}
	return &DAG{
		nodes:    make(map[string]*Node),
		outgoing: make(map[string][]string),
		incoming: make(map[string][]string),
		meta:     meta,
	}
}

// Meta returns the graph-level metadata map.
func (d *DAG) Meta() Metadata { return d.meta }

// AddNode adds a node to the graph.
func (d *DAG) AddNode(n Node) error {
	if n.ID == "" {
		return ErrInvalidNodeID
	}
	if _, exists := d.nodes[n.ID]; exists {
		return ErrDuplicateNodeID
	}
	if n.Meta == nil {
		n.Meta = Metadata{}
	}
	node := &n
	d.nodes[node.ID] = node
	return nil
}

// SetRows updates the row assignments for nodes. Nodes not present in rows
// keep their current row.
func (d *DAG) SetRows(rows map[string]int) {
	for id, r := range rows {
		if n, ok := d.nodes[id]; ok {
			n.Row = r
		}
	}
}

// AddEdge adds a directed edge between two existing nodes. Adding an edge
// that already exists is a no-op, so a package requiring another through
// several fields yields one edge.
func (d *DAG) AddEdge(e Edge) error {
	if _, ok := d.nodes[e.From]; !ok {
		return ErrUnknownSourceNode
	}
	if _, ok := d.nodes[e.To]; !ok {
		return ErrUnknownTargetNode
	}
	if slices.Contains(d.outgoing[e.From], e.To) {
		return nil
	}
	if e.Meta == nil {
		e.Meta = Metadata{}
	}
	d.edges = append(d.edges, e)
	d.outgoing[e.From] = append(d.outgoing[e.From], e.To)
	d.incoming[e.To] = append(d.incoming[e.To], e.From)
	return nil
}

// RemoveEdge removes the edge from→to if it exists.
func (d *DAG) RemoveEdge(from, to string) {
	d.edges = slices.DeleteFunc(d.edges, func(e Edge) bool { return e.From == from && e.To == to })
	d.outgoing[from] = slices.DeleteFunc(d.outgoing[from], func(s string) bool { return s == to })
	d.incoming[to] = slices.DeleteFunc(d.incoming[to], func(s string) bool { return s == from })
}

// Nodes returns all nodes sorted by ID. The returned slice contains
// pointers to the actual node structs, so modifications affect the graph.
func (d *DAG) Nodes() []*Node {
	nodes := make([]*Node, 0, len(d.nodes))
	for _, id := range slices.Sorted(maps.Keys(d.nodes)) {
		nodes = append(nodes, d.nodes[id])
	}
	return nodes
}

// Edges returns a copy of all edges in insertion order.
func (d *DAG) Edges() []Edge { return slices.Clone(d.edges) }

// NodeCount returns the number of nodes in the graph.
func (d *DAG) NodeCount() int { return len(d.nodes) }

// EdgeCount returns the number of edges in the graph.
func (d *DAG) EdgeCount() int { return len(d.edges) }

// Children returns the IDs of the packages id requires. The returned slice
// should not be modified.
func (d *DAG) Children(id string) []string { return d.outgoing[id] }

// Parents returns the IDs of the packages requiring id. The returned slice
// should not be modified.
func (d *DAG) Parents(id string) []string { return d.incoming[id] }

// OutDegree returns the number of outgoing edges from the node.
func (d *DAG) OutDegree(id string) int { return len(d.outgoing[id]) }

// InDegree returns the number of incoming edges to the node.
func (d *DAG) InDegree(id string) int { return len(d.incoming[id]) }

// Node returns the node with the given ID and true, or nil and false if not found.
func (d *DAG) Node(id string) (*Node, bool) {
	n, ok := d.nodes[id]
	return n, ok
}

// NodesInRow returns the nodes assigned to row, sorted by ID.
func (d *DAG) NodesInRow(row int) []*Node {
	var out []*Node
	for _, n := range d.Nodes() {
		if n.Row == row {
			out = append(out, n)
		}
	}
	return out
}

// RowIDs returns all row indices in sorted ascending order.
func (d *DAG) RowIDs() []int {
	rows := make(map[int]struct{})
	for _, n := range d.nodes {
		rows[n.Row] = struct{}{}
	}
	return slices.Sorted(maps.Keys(rows))
}

// Sources returns nodes with no incoming edges, sorted by ID.
func (d *DAG) Sources() []*Node {
	var sources []*Node
	for _, n := range d.Nodes() {
		if len(d.incoming[n.ID]) == 0 {
			sources = append(sources, n)
		}
	}
	return sources
}

// Sinks returns nodes with no outgoing edges, sorted by ID.
func (d *DAG) Sinks() []*Node {
	var sinks []*Node
	for _, n := range d.Nodes() {
		if len(d.outgoing[n.ID]) == 0 {
			sinks = append(sinks, n)
		}
	}
	return sinks
}

// Validate checks that every edge connects existing nodes and that the
// graph is acyclic.
func (d *DAG) Validate() error {
	for _, e := range d.edges {
		_, okS := d.nodes[e.From]
		_, okD := d.nodes[e.To]
		if !okS || !okD {
			return ErrInvalidEdgeEndpoint
		}
	}
	_, err := d.TopologicalOrder()
	return err
}

// TopologicalOrder returns node IDs with every package after the packages
// it requires: dependencies first, as an environment would be assembled.
// Ties are broken by ID so the order is a pure function of the graph.
func (d *DAG) TopologicalOrder() ([]string, error) {
	pending := make(map[string]int, len(d.nodes))
	var ready []string
	for id := range d.nodes {
		pending[id] = len(d.outgoing[id])
		if pending[id] == 0 {
			ready = append(ready, id)
		}
	}
	slices.Sort(ready)

	order := make([]string, 0, len(d.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		var freed []string
		for _, p := range d.incoming[id] {
			pending[p]--
			if pending[p] == 0 {
				freed = append(freed, p)
			}
		}
		if len(freed) > 0 {
			ready = append(ready, freed...)
			slices.Sort(ready)
		}
	}
	if len(order) != len(d.nodes) {
		return nil, ErrGraphHasCycle
	}
	return order, nil
}

// PosMap creates a position lookup map from a slice of node IDs.
func PosMap(ids []string) map[string]int {
	m := make(map[string]int, len(ids))
	for i, id := range ids {
		m[id] = i
	}
	return m
}

// NodeIDs extracts the ID from each node in a slice.
func NodeIDs(nodes []*Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}
