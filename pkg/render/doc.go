// Package render converts rendered graphs between output formats.
//
// The [nodelink] subpackage draws resolved dependency graphs with Graphviz
// and produces SVG. [ToPDF] and [ToPNG] convert that SVG further using the
// external rsvg-convert tool (from librsvg):
//
//	dot := nodelink.ToDOT(res.Graph, nodelink.Options{})
//	svg, err := nodelink.RenderSVG(ctx, dot)
//	pdf, err := render.ToPDF(svg)
//
// [nodelink]: github.com/matzehuels/rezls/pkg/render/nodelink
package render
