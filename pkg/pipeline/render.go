package pipeline

import (
	"bytes"
	"context"
	"fmt"

	"github.com/matzehuels/rezls/pkg/io"
	"github.com/matzehuels/rezls/pkg/render/nodelink"
	"github.com/matzehuels/rezls/pkg/resolve"
)

// Render generates output artifacts in the requested formats.
func Render(ctx context.Context, c *io.Context, res *resolve.Resolution, opts Options) (map[string][]byte, error) {
	artifacts := make(map[string][]byte, len(opts.Formats))
	dot := nodelink.ToDOT(res.Graph, nodelink.Options{Detailed: opts.Detailed})

	for _, format := range opts.Formats {
		var data []byte
		var err error

		switch format {
		case FormatRXT:
			var buf bytes.Buffer
			err = io.Write(c, &buf)
			data = buf.Bytes()
		case FormatDOT:
			data = []byte(dot)
		case FormatSVG:
			data, err = nodelink.RenderSVG(ctx, dot)
		case FormatPNG:
			data, err = nodelink.RenderPNG(ctx, dot, 2.0)
		case FormatPDF:
			data, err = nodelink.RenderPDF(ctx, dot)
		default:
			return nil, fmt.Errorf("unsupported format: %s", format)
		}

		if err != nil {
			return nil, fmt.Errorf("render %s: %w", format, err)
		}
		artifacts[format] = data
	}
	return artifacts, nil
}
