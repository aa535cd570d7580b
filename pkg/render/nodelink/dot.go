package nodelink

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/rezls/pkg/dag"
	"github.com/matzehuels/rezls/pkg/render"
)

// Options configures node-link diagram rendering.
type Options struct {
	// Detailed adds the variant and source path to node labels and the
	// requirement text to edges. When false, nodes show "name-version".
	Detailed bool
}

// ToDOT converts a resolved graph to Graphviz DOT source.
func ToDOT(g *dag.DAG, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  edge [fontsize=10];\n")
	buf.WriteString("  ranksep=0.5;\n")
	buf.WriteString("  nodesep=0.3;\n")
	if roots, ok := g.Meta()[dag.MetaRoots].([]string); ok && len(roots) > 0 {
		fmt.Fprintf(&buf, "  label=%q;\n", strings.Join(roots, " "))
		buf.WriteString("  labelloc=t;\n")
	}
	buf.WriteString("\n")

	for _, n := range g.Nodes() {
		attrs := fmtAttrs(g, *n, fmtLabel(*n, opts.Detailed))
		fmt.Fprintf(&buf, "  %q [%s];\n", n.ID, strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	for _, e := range g.Edges() {
		if opts.Detailed && e.Requirement() != "" {
			fmt.Fprintf(&buf, "  %q -> %q [label=%q];\n", e.From, e.To, e.Requirement())
			continue
		}
		fmt.Fprintf(&buf, "  %q -> %q;\n", e.From, e.To)
	}

	buf.WriteString("}\n")
	return buf.String()
}

func fmtLabel(n dag.Node, detailed bool) string {
	label := n.Label()
	if !detailed {
		return label
	}
	var parts []string
	if v, ok := n.Meta[dag.MetaVariant].(int); ok && v >= 0 {
		parts = append(parts, fmt.Sprintf("variant: %d", v))
	}
	if src, ok := n.Meta[dag.MetaSource].(string); ok && src != "" {
		parts = append(parts, src)
	}
	if len(parts) == 0 {
		return label
	}
	return label + "\n" + strings.Join(parts, "\n")
}

func fmtAttrs(g *dag.DAG, n dag.Node, label string) []string {
	attrs := []string{fmt.Sprintf("label=%q", label)}
	if g.InDegree(n.ID) == 0 {
		attrs = append(attrs, "penwidth=2")
	}
	return attrs
}

// RenderSVG renders DOT source to SVG using Graphviz.
// The result can be converted further with [render.ToPDF] or [render.ToPNG].
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox rewrites the root element so the drawing scales with its
// container instead of using Graphviz's point-based size.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	tag := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(tag))
}

// RenderPDF renders DOT source as PDF via SVG.
//
// Requires librsvg: brew install librsvg (macOS), apt install librsvg2-bin (Linux).
func RenderPDF(ctx context.Context, dot string) ([]byte, error) {
	svg, err := RenderSVG(ctx, dot)
	if err != nil {
		return nil, err
	}
	return render.ToPDF(svg)
}

// RenderPNG renders DOT source as PNG via SVG at the given scale.
func RenderPNG(ctx context.Context, dot string, scale float64) ([]byte, error) {
	svg, err := RenderSVG(ctx, dot)
	if err != nil {
		return nil, err
	}
	return render.ToPNG(svg, scale)
}
