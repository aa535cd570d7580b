// Package pkg provides the core libraries of rezls, a language server for
// rez package repositories.
//
// # Overview
//
// rezls reads package.py manifests from a list of search paths, builds an
// immutable snapshot of every package version it finds, and answers
// questions about that snapshot: which diagnostics a manifest has, what the
// requirement under the cursor refers to, and which versions a set of root
// requirements resolves to.
//
// # Architecture
//
// The typical data flow:
//
//	search paths
//	     ↓
//	[discovery] scans name/version/package.py trees in parallel
//	     ↓
//	[manifest] parses each file into a Descriptor
//	     ↓
//	[repo] freezes the descriptors into a generation-numbered Snapshot
//	     ↓
//	[resolve] selects one version per package for the roots
//	     ↓
//	[io] / [render] write resolved contexts (.rxt) and graphs
//
// # Main Packages
//
// [version] - Versions, version ranges and requirement strings such as
// "foo-1.2+<2", "!bar" and "~baz-3".
//
// [manifest] - A tolerant parser for the declarative subset of package.py
// that keeps byte spans for every value, so diagnostics and queries can point
// at source text.
//
// [validate] - Structural and semantic checks for manifests and
// resolved-context files, producing editor diagnostics with quick fixes.
//
// [query] - Completion, hover, definition, references and symbols over a
// document and a snapshot.
//
// [resolve] - A backtracking resolver with conflict and cycle reporting and
// a bounded run time.
//
// [cache] - Generic in-memory tiers plus file, Redis and null byte stores
// for resolutions shared between processes.
//
// [pipeline] - One-shot scan, resolve and render runs for the CLI and the
// HTTP surface.
//
// # Quick Start
//
//	runner := pipeline.NewRunner(nil, nil, nil)
//	result, err := runner.Execute(ctx, pipeline.Options{
//	    Roots:       []string{"maya-2024"},
//	    SearchPaths: discovery.SearchPathsFromEnv(),
//	    Formats:     []string{pipeline.FormatRXT},
//	})
//
// [discovery]: github.com/matzehuels/rezls/pkg/discovery
// [manifest]: github.com/matzehuels/rezls/pkg/manifest
// [repo]: github.com/matzehuels/rezls/pkg/repo
// [resolve]: github.com/matzehuels/rezls/pkg/resolve
// [io]: github.com/matzehuels/rezls/pkg/io
// [render]: github.com/matzehuels/rezls/pkg/render
// [version]: github.com/matzehuels/rezls/pkg/version
// [validate]: github.com/matzehuels/rezls/pkg/validate
// [query]: github.com/matzehuels/rezls/pkg/query
// [cache]: github.com/matzehuels/rezls/pkg/cache
// [pipeline]: github.com/matzehuels/rezls/pkg/pipeline
package pkg
