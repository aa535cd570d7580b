// Package nodelink renders resolved dependency graphs as node-link diagrams.
//
// # Overview
//
// Each chosen package is a box labelled "name-version"; each positive
// requirement between chosen packages is an arrow from the requiring package
// to the required one. Root packages (no incoming edges) are drawn with a
// bold outline so the entry points of a resolution stand out.
//
// # Usage
//
//	dot := nodelink.ToDOT(res.Graph, nodelink.Options{Detailed: true})
//	svg, err := nodelink.RenderSVG(ctx, dot)
//
// [ToDOT] output is plain Graphviz source and can be saved for external
// tools. The nodes are emitted in ID order and the edges in insertion order,
// so the same graph always produces the same text.
//
// # Options
//
//   - Detailed: node labels also show the chosen variant and source path,
//     and edge labels show the requirement text.
//
// # Dependencies
//
// SVG rendering runs in process through [github.com/goccy/go-graphviz].
// PDF and PNG conversion requires librsvg (rsvg-convert).
package nodelink
