package manifest

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	rerrors "github.com/matzehuels/rezls/pkg/errors"
	"github.com/matzehuels/rezls/pkg/version"
)

// FileName is the manifest file expected in every name/version directory.
const FileName = "package.py"

// Recognized field names.
const (
	FieldName                 = "name"
	FieldVersion              = "version"
	FieldDescription          = "description"
	FieldAuthors              = "authors"
	FieldRequires             = "requires"
	FieldBuildRequires        = "build_requires"
	FieldPrivateBuildRequires = "private_build_requires"
	FieldTools                = "tools"
	FieldVariants             = "variants"
	FieldUUID                 = "uuid"
	FieldBuildCommand         = "build_command"
)

// FieldDocs documents the recognized fields.
var FieldDocs = map[string]string{
	FieldName:                 "Package name. Must match [A-Za-z_][A-Za-z0-9_]*.",
	FieldVersion:              "Package version, tokens separated by '.' or '-'.",
	FieldDescription:          "Free-form summary of the package.",
	FieldAuthors:              "List of package authors.",
	FieldRequires:             "Runtime requirements, e.g. \"python-3.7+\" or \"~maya-2024\".",
	FieldBuildRequires:        "Requirements needed to build this package and its dependents.",
	FieldPrivateBuildRequires: "Requirements needed only to build this package.",
	FieldTools:                "Executables the package puts on PATH.",
	FieldVariants:             "Alternative requirement lists; one variant is chosen at resolve time.",
	FieldUUID:                 "Stable identifier of the package family.",
	FieldBuildCommand:         "Command used to build the package, or False for no build step.",
}

var recognized = func() []string {
	out := make([]string, 0, len(FieldDocs))
	for k := range FieldDocs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}()

// RecognizedFields returns the recognized field names in sorted order.
func RecognizedFields() []string { return append([]string(nil), recognized...) }

// IsRecognized reports whether key is a recognized field.
func IsRecognized(key string) bool {
	_, ok := FieldDocs[key]
	return ok
}

// IsRequirementField reports whether key holds a list of requirements.
func IsRequirementField(key string) bool {
	switch key {
	case FieldRequires, FieldBuildRequires, FieldPrivateBuildRequires, FieldVariants:
		return true
	}
	return false
}

// Descriptor is the decoded metadata of one package version.
type Descriptor struct {
	Name                 string
	Version              version.Version
	Description          string
	Authors              []string
	Requires             []version.Requirement
	BuildRequires        []version.Requirement
	PrivateBuildRequires []version.Requirement
	Tools                []string
	Variants             [][]version.Requirement
	UUID                 string
	BuildCommand         string
	// Metadata holds unrecognized top-level keys as raw source text.
	Metadata map[string]string
	// Functions lists top-level def names such as "commands".
	Functions  []string
	SourcePath string
	// Refs locates every requirement string that parsed.
	Refs []RequirementRef
}

// ID returns "name-version".
func (d *Descriptor) ID() string { return d.Name + "-" + d.Version.String() }

// VariantRequires returns the requirements in force when variant i is
// chosen: Requires followed by the variant's own list. i < 0 selects none.
func (d *Descriptor) VariantRequires(i int) []version.Requirement {
	out := append([]version.Requirement(nil), d.Requires...)
	if i >= 0 && i < len(d.Variants) {
		out = append(out, d.Variants[i]...)
	}
	return out
}

// RequirementRef locates a requirement literal in the manifest source.
type RequirementRef struct {
	Field string
	// Variant is the variant index, or -1 outside variants.
	Variant     int
	Requirement version.Requirement
	// Span covers the string contents, without quotes.
	Span  Span
	Range TextRange
}

// ReadFile loads the manifest at path.
func ReadFile(path string) (*Descriptor, []*ParseError, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, rerrors.Wrap(rerrors.ErrCodeIO, err, "read manifest %s", path)
	}
	return Load(src, path)
}

// Load parses src and builds its descriptor. Warnings lists structural and
// field-level problems; err is a [*ParseError] only when name or version are
// missing or unusable, in which case the descriptor is nil.
func Load(src []byte, path string) (*Descriptor, []*ParseError, error) {
	return Parse(src).Descriptor(path)
}

// ParseDescriptor is [Load] without the warnings.
func ParseDescriptor(src []byte, path string) (*Descriptor, error) {
	d, _, err := Load(src, path)
	return d, err
}

// Descriptor builds the descriptor from the parsed assignments. The last
// assignment to a key wins.
func (f *File) Descriptor(path string) (*Descriptor, []*ParseError, error) {
	warnings := append([]*ParseError(nil), f.Errors...)

	name, err := f.requiredString(FieldName)
	if err != nil {
		return nil, warnings, err
	}
	nameVal, _ := f.Lookup(FieldName)
	if !version.IsValidName(name) {
		return nil, warnings, &ParseError{
			Field:  FieldName,
			Offset: nameVal.Value.ContentStart,
			End:    nameVal.Value.ContentStart + len(name),
			Reason: fmt.Sprintf("invalid package name %q", name),
		}
	}

	vtext, err := f.requiredString(FieldVersion)
	if err != nil {
		return nil, warnings, err
	}
	verVal, _ := f.Lookup(FieldVersion)
	ver, verr := version.Parse(vtext)
	if verr != nil {
		pe := &ParseError{Field: FieldVersion, Offset: verVal.Value.ContentStart, Reason: "invalid version", Err: verr}
		var ve *version.ParseError
		if errors.As(verr, &ve) && f.verbatim(verVal.Value) {
			pe.Offset += ve.Offset
		}
		pe.End = pe.Offset + 1
		return nil, warnings, pe
	}

	d := &Descriptor{Name: name, Version: ver, SourcePath: path, Metadata: map[string]string{}}
	for _, fn := range f.Functions {
		d.Functions = append(d.Functions, fn.Name)
	}

	warn := func(a Assignment, reason string) {
		warnings = append(warnings, &ParseError{Field: a.Key, Offset: a.Value.Span.Start, End: a.Value.Span.End, Reason: reason})
	}

	for _, key := range f.keys() {
		a, _ := f.Lookup(key)
		if a.Err != nil {
			if !a.Err.Structural && key != FieldName && key != FieldVersion {
				warnings = append(warnings, a.Err)
			}
			continue
		}
		v := a.Value
		switch key {
		case FieldName, FieldVersion:
		case FieldDescription:
			if v.Kind != KindString {
				warn(a, "expected a string")
				continue
			}
			d.Description = strings.TrimSpace(v.Str)
		case FieldUUID:
			if v.Kind != KindString {
				warn(a, "expected a string")
				continue
			}
			d.UUID = v.Str
		case FieldAuthors, FieldTools:
			ss, ok := v.Strings()
			if !ok {
				warn(a, "expected a list of strings")
				continue
			}
			if key == FieldAuthors {
				d.Authors = ss
			} else {
				d.Tools = ss
			}
		case FieldBuildCommand:
			switch {
			case v.Kind == KindString:
				d.BuildCommand = v.Str
			case v.Kind == KindBool && !v.Bool:
			case v.IsSequence():
				ss, ok := v.Strings()
				if !ok {
					warn(a, "expected a string, a list of strings or False")
					continue
				}
				d.BuildCommand = strings.Join(ss, " ")
			default:
				warn(a, "expected a string, a list of strings or False")
			}
		case FieldRequires, FieldBuildRequires, FieldPrivateBuildRequires:
			if !v.IsSequence() {
				warn(a, "expected a list of requirement strings")
				continue
			}
			reqs, ws := f.requirements(d, key, -1, v)
			warnings = append(warnings, ws...)
			switch key {
			case FieldRequires:
				d.Requires = reqs
			case FieldBuildRequires:
				d.BuildRequires = reqs
			default:
				d.PrivateBuildRequires = reqs
			}
		case FieldVariants:
			if !v.IsSequence() {
				warn(a, "expected a list of requirement lists")
				continue
			}
			for i, item := range v.Items {
				if !item.IsSequence() {
					warnings = append(warnings, &ParseError{Field: key, Offset: item.Span.Start, End: item.Span.End, Reason: "expected a list of requirement strings"})
					d.Variants = append(d.Variants, nil)
					continue
				}
				reqs, ws := f.requirements(d, key, i, item)
				warnings = append(warnings, ws...)
				d.Variants = append(d.Variants, reqs)
			}
		default:
			d.Metadata[key] = v.Raw(f.Source)
		}
	}
	return d, warnings, nil
}

// requiredString returns the string value of a required field.
func (f *File) requiredString(key string) (string, error) {
	a, ok := f.Lookup(key)
	if !ok {
		return "", &ParseError{Field: key, Reason: "missing required field"}
	}
	if a.Err != nil {
		return "", a.Err
	}
	if a.Value.Kind != KindString {
		return "", &ParseError{Field: key, Offset: a.Value.Span.Start, End: a.Value.Span.End, Reason: fmt.Sprintf("expected a string, got %s", a.Value.Kind)}
	}
	return a.Value.Str, nil
}

// requirements decodes a list of requirement strings. Malformed entries are
// skipped and reported.
func (f *File) requirements(d *Descriptor, field string, variant int, v Value) ([]version.Requirement, []*ParseError) {
	var (
		out  []version.Requirement
		errs []*ParseError
	)
	for _, item := range v.Items {
		if item.Kind != KindString {
			errs = append(errs, &ParseError{Field: field, Offset: item.Span.Start, End: item.Span.End, Reason: "expected a requirement string"})
			continue
		}
		req, err := version.ParseRequirement(item.Str)
		if err != nil {
			pe := &ParseError{Field: field, Offset: item.ContentStart, End: item.Span.End, Reason: "invalid requirement", Err: err}
			var ve *version.ParseError
			if errors.As(err, &ve) && f.verbatim(item) {
				pe.Offset = item.ContentStart + ve.Offset
				pe.End = pe.Offset + max(len(ve.Text), 1)
			}
			errs = append(errs, pe)
			continue
		}
		out = append(out, req)
		span := Span{item.ContentStart, item.ContentStart + len(item.Str)}
		d.Refs = append(d.Refs, RequirementRef{
			Field:       field,
			Variant:     variant,
			Requirement: req,
			Span:        span,
			Range:       f.Lines.Range(span),
		})
	}
	return out, errs
}

// keys returns the distinct assigned keys in first-appearance order.
func (f *File) keys() []string {
	seen := make(map[string]bool, len(f.Assignments))
	var out []string
	for _, a := range f.Assignments {
		if !seen[a.Key] {
			seen[a.Key] = true
			out = append(out, a.Key)
		}
	}
	return out
}

// verbatim reports whether a string value's decoded text appears unchanged
// in the source, so offsets into it map directly onto the source.
func (f *File) verbatim(v Value) bool {
	end := v.ContentStart + len(v.Str)
	return v.Kind == KindString && end <= len(f.Source) && string(f.Source[v.ContentStart:end]) == v.Str
}
