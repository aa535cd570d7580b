// Package io reads and writes resolved-context (.rxt) files.
//
// # Overview
//
// A resolved context records the outcome of one resolution so that other
// tools can reuse it without resolving again. It is a JSON object with three
// required keys and an optional dependency graph:
//
//	{
//	  "serialize_version": "4.0",
//	  "requests": ["maya-2024", "python-3"],
//	  "resolved_packages": [
//	    {"name": "python", "version": "3.10", "source_path": "/pkgs/python/3.10/package.py"},
//	    {"name": "maya", "version": "2024.0", "variant": 0}
//	  ],
//	  "graph": {
//	    "nodes": [{"id": "maya"}, {"id": "python"}],
//	    "edges": [{"from": "maya", "to": "python", "requirement": "python-3"}]
//	  }
//	}
//
// resolved_packages is in resolution order, dependencies first. variant is
// omitted for packages without variants.
//
// # Reading and writing
//
// [FromResolution] captures a resolution; [Write] and [Export] encode it;
// [Read] and [Import] decode one. Decoding checks what the validator checks
// for open .rxt documents: the required keys are present, every package has
// a valid name and version, and no name appears twice. The graph, when
// present, must only reference listed packages.
//
//	ctx := io.FromResolution(res)
//	if err := io.Export(ctx, "env.rxt"); err != nil {
//	    return err
//	}
package io
