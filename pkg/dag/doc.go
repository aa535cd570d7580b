// Package dag provides the directed acyclic graph of a resolved package
// set.
//
// # Overview
//
// Each node is one chosen package, identified by name, with its version,
// variant and source path in [Node.Meta]. Each edge is a requirement of the
// parent package on the child, with the requirement text in [Edge.Meta].
// The resolver builds the graph; renderers and the context file writer read
// it.
//
// # Basic Usage
//
//	g := dag.New(nil)
//	g.AddNode(dag.Node{ID: "maya", Meta: dag.Metadata{dag.MetaVersion: "2024.0"}})
//	g.AddNode(dag.Node{ID: "python", Meta: dag.Metadata{dag.MetaVersion: "3.10"}})
//	g.AddEdge(dag.Edge{From: "maya", To: "python", Meta: dag.Metadata{dag.MetaRequirement: "python-3.10"}})
//
// [DAG.TopologicalOrder] lists packages dependencies first, breaking ties by
// name, which is the order a resolved environment is assembled in.
//
// # Rows
//
// [Node.Row] is the package's depth below the roots. It is assigned by
// [transform.AssignLayers] and used by renderers to rank nodes.
//
// # Concurrency
//
// DAG instances are not safe for concurrent mutation. Once built, a graph is
// only read, and may be shared between goroutines.
//
// [transform]: github.com/matzehuels/rezls/pkg/dag/transform
package dag
