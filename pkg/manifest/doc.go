// Package manifest parses package.py manifests into package descriptors.
//
// Manifests are declarative files written as assignment statements:
//
//	name = "foo"
//	version = "1.2.0"
//	requires = [
//	    "python-3.7+",
//	    "bar-1+<2",
//	]
//
//	def commands():
//	    env.PATH.append("{root}/bin")
//
// Nothing is executed. A single structural pass splits the source into
// top-level statements, tracking quotes and brackets so values may span
// lines. Right-hand sides that are literals (strings, numbers, booleans,
// None, lists, tuples and dicts) are decoded; anything else is kept as an
// opaque expression. Blocks such as def, class and if are skipped with their
// indented bodies; top-level function names are recorded.
//
// # Recognized fields
//
// name, version, description, authors, requires, build_requires,
// private_build_requires, tools, variants, uuid and build_command are
// decoded into a [Descriptor]. Every other top-level key is preserved in
// [Descriptor.Metadata] as raw source text.
//
// # Errors
//
// [Parse] never fails: structural problems (unterminated strings, unbalanced
// brackets) are collected in [File.Errors] and parsing resumes at the next
// top-level statement. [Load] builds a descriptor from whatever parsed; it
// returns an error only when name or version are missing or unusable, and
// reports other field problems as warnings. All offsets are byte offsets
// into the source.
package manifest
