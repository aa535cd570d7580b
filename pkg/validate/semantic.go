package validate

import (
	"errors"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/matzehuels/rezls/pkg/manifest"
	"github.com/matzehuels/rezls/pkg/version"
)

var (
	requiredFields    = []string{manifest.FieldName, manifest.FieldVersion}
	recommendedFields = []string{manifest.FieldDescription, manifest.FieldAuthors}
	reservedNames     = []string{"build", "install", "package", "test"}
	deprecatedFields  = map[string]string{
		"config": "use private_build_requires or package config overrides instead",
	}

	// versionStyle is the conventional numeric version shape.
	versionStyle = regexp.MustCompile(`^[0-9]+(\.[0-9]+)*([a-zA-Z][a-zA-Z0-9]*)?$`)
)

// Semantic checks the recognized fields of a parsed manifest. path, when it
// follows the name/version/package.py layout, is checked against the
// declared name and version.
func Semantic(f *manifest.File, path string, opts Options) []Diagnostic {
	s := &semantic{b: newBuilder(f.Lines), f: f}
	s.duplicates()
	s.required(path)

	for _, key := range assignedKeys(f) {
		a, _ := f.Lookup(key)
		if reason, ok := deprecatedFields[key]; ok {
			s.b.add(SeverityWarning, CodeDeprecatedField, a.KeySpan, "Field %q is deprecated: %s", key, reason)
		}
		if !manifest.IsRecognized(key) {
			continue
		}
		if a.Err != nil {
			s.b.add(SeverityError, CodeTypeMismatch, manifest.Span{Start: a.Err.Offset, End: a.Err.End}, "Missing value for %q", key)
			continue
		}
		if a.Value.Kind == manifest.KindExpr && key != manifest.FieldName && key != manifest.FieldVersion {
			s.b.add(SeverityInformation, CodeComputedValue, a.Value.Span, "Value of %q is computed and cannot be checked", key)
			continue
		}
		switch key {
		case manifest.FieldName:
			s.name(a)
		case manifest.FieldVersion:
			s.version(a, opts)
		case manifest.FieldDescription:
			s.expectString(a)
		case manifest.FieldUUID:
			if s.expectString(a) {
				if _, err := uuid.Parse(a.Value.Str); err != nil {
					s.b.add(SeverityWarning, CodeInvalidUUID, a.Value.Span, "Invalid uuid %q", a.Value.Str)
				}
			}
		case manifest.FieldAuthors:
			s.stringList(a)
		case manifest.FieldTools:
			s.tools(a)
		case manifest.FieldBuildCommand:
			s.buildCommand(a)
		case manifest.FieldRequires, manifest.FieldBuildRequires, manifest.FieldPrivateBuildRequires:
			if !a.Value.IsSequence() {
				s.mismatch(a.Key, a.Value, "a list of requirement strings")
				continue
			}
			s.requirements(key, a.Value)
		case manifest.FieldVariants:
			s.variants(a)
		}
	}

	if opts.RecommendedFields {
		for _, key := range recommendedFields {
			if _, ok := f.Lookup(key); !ok {
				s.b.add(SeverityInformation, CodeRecommended, s.firstLine(), "Recommended field %q is missing", key)
			}
		}
	}
	s.location(path)
	return s.b.diags
}

type semantic struct {
	b *builder
	f *manifest.File
}

// duplicates reports every reassignment of a key.
func (s *semantic) duplicates() {
	first := make(map[string]manifest.Assignment)
	for _, a := range s.f.Assignments {
		prev, ok := first[a.Key]
		if !ok {
			first[a.Key] = a
			continue
		}
		line := s.f.Lines.Position(prev.KeySpan.Start).Line + 1
		s.b.add(SeverityWarning, CodeDuplicateField, a.KeySpan, "Duplicate field %q (first assigned on line %d); the last assignment wins", a.Key, line)
	}
}

func (s *semantic) required(path string) {
	for _, key := range requiredFields {
		if _, ok := s.f.Lookup(key); ok {
			continue
		}
		d := s.b.add(SeverityError, CodeMissingField, s.firstLine(), "Missing required field %q", key)
		d.Fix = s.insertField(key, path)
	}
}

// insertField suggests an assignment for a missing required field, placed
// after the name assignment when there is one.
func (s *semantic) insertField(key, path string) *Fix {
	at := 0
	if a, ok := s.f.Lookup(manifest.FieldName); ok && key != manifest.FieldName {
		line := s.f.Lines.Position(a.Span.End).Line
		at = s.f.Lines.LineStart(line + 1)
		if at == len(s.f.Source) && (at == 0 || s.f.Source[at-1] != '\n') {
			return &Fix{Title: "Add " + key + " field", Edits: []TextEdit{s.b.insert(at, "\n"+key+" = "+quote(placeholder(key, path)))}}
		}
	}
	return &Fix{
		Title: "Add " + key + " field",
		Edits: []TextEdit{s.b.insert(at, key+" = "+quote(placeholder(key, path))+"\n")},
	}
}

func placeholder(key, path string) string {
	name, ver := layout(path)
	switch key {
	case manifest.FieldName:
		if name != "" {
			return name
		}
		return "my_package"
	default:
		if ver != "" {
			return ver
		}
		return "1.0.0"
	}
}

func quote(s string) string { return `"` + s + `"` }

func (s *semantic) name(a manifest.Assignment) {
	if a.Value.Kind != manifest.KindString {
		s.mismatch(a.Key, a.Value, "a string literal")
		return
	}
	name := a.Value.Str
	span := s.content(a.Value)
	if !version.IsValidName(name) {
		s.b.add(SeverityError, CodeInvalidName, span, "Invalid package name %q: names must match [A-Za-z_][A-Za-z0-9_]*", name)
		return
	}
	if slices.Contains(reservedNames, name) {
		s.b.add(SeverityWarning, CodeReservedName, span, "Package name %q is a reserved word", name)
	}
}

func (s *semantic) version(a manifest.Assignment, opts Options) {
	if a.Value.Kind != manifest.KindString {
		s.mismatch(a.Key, a.Value, "a string literal")
		return
	}
	_, err := version.Parse(a.Value.Str)
	if err != nil {
		s.b.add(SeverityError, CodeInvalidVersion, s.errorSpan(a.Value, err), "Invalid version %q: %s", a.Value.Str, reason(err))
		return
	}
	if opts.Style && !versionStyle.MatchString(a.Value.Str) {
		s.b.add(SeverityHint, CodeVersionStyle, s.content(a.Value), "Version %q does not follow the numeric major.minor.patch style", a.Value.Str)
	}
}

func (s *semantic) expectString(a manifest.Assignment) bool {
	if a.Value.Kind != manifest.KindString {
		s.mismatch(a.Key, a.Value, "a string")
		return false
	}
	return true
}

func (s *semantic) stringList(a manifest.Assignment) bool {
	if _, ok := a.Value.Strings(); !ok {
		s.mismatch(a.Key, a.Value, "a list of strings")
		return false
	}
	return true
}

func (s *semantic) tools(a manifest.Assignment) {
	if !s.stringList(a) {
		return
	}
	for _, it := range a.Value.Items {
		if it.Str == "" || strings.ContainsAny(it.Str, " \t/\\") {
			s.b.add(SeverityError, CodeInvalidTool, it.Span, "Invalid tool name %q", it.Str)
		}
	}
}

func (s *semantic) buildCommand(a manifest.Assignment) {
	v := a.Value
	switch {
	case v.Kind == manifest.KindString, v.Kind == manifest.KindBool && !v.Bool:
	case v.IsSequence():
		s.stringList(a)
	default:
		s.mismatch(a.Key, v, "a string, a list of strings or False")
	}
}

func (s *semantic) variants(a manifest.Assignment) {
	if !a.Value.IsSequence() {
		s.mismatch(a.Key, a.Value, "a list of requirement lists")
		return
	}
	for _, item := range a.Value.Items {
		if !item.IsSequence() {
			s.mismatch(a.Key, item, "a list of requirement strings")
			continue
		}
		s.requirements(a.Key, item)
	}
}

// requirements checks one list of requirement strings.
func (s *semantic) requirements(field string, list manifest.Value) {
	seen := make(map[string]bool)
	for _, it := range list.Items {
		if it.Kind != manifest.KindString {
			s.mismatch(field, it, "a requirement string")
			continue
		}
		req, err := version.ParseRequirement(it.Str)
		if err != nil {
			s.b.add(SeverityError, CodeInvalidRequire, s.errorSpan(it, err), "Invalid requirement %q: %s", it.Str, reason(err))
			continue
		}
		key := req.Name
		if req.Conflict {
			key = "!" + key
		}
		if seen[key] {
			s.b.add(SeverityWarning, CodeDuplicateReq, s.content(it), "Duplicate requirement on %q in %s", req.Name, field)
		}
		seen[key] = true
	}
}

// location compares the declared name and version with a
// name/version/package.py path. The check applies only when the parent
// directory looks like a version (starts with a digit).
func (s *semantic) location(path string) {
	dirName, dirVersion := layout(path)
	if dirVersion == "" {
		return
	}
	if a, ok := s.f.Lookup(manifest.FieldName); ok && a.Value.Kind == manifest.KindString && a.Value.Str != dirName {
		s.b.add(SeverityWarning, CodeLocation, s.content(a.Value), "Package name %q does not match directory %q", a.Value.Str, dirName)
	}
	if a, ok := s.f.Lookup(manifest.FieldVersion); ok && a.Value.Kind == manifest.KindString && a.Value.Str != dirVersion {
		s.b.add(SeverityWarning, CodeLocation, s.content(a.Value), "Version %q does not match directory %q", a.Value.Str, dirVersion)
	}
}

// layout extracts name and version directories from a manifest path, or
// empty strings when the path does not follow the repository layout.
func layout(path string) (name, ver string) {
	if path == "" || filepath.Base(path) != manifest.FileName {
		return "", ""
	}
	verDir := filepath.Dir(path)
	ver = filepath.Base(verDir)
	if ver == "" || ver[0] < '0' || ver[0] > '9' {
		return "", ""
	}
	if _, err := version.Parse(ver); err != nil {
		return "", ""
	}
	return filepath.Base(filepath.Dir(verDir)), ver
}

func (s *semantic) mismatch(field string, v manifest.Value, want string) {
	s.b.add(SeverityError, CodeTypeMismatch, v.Span, "Field %q expects %s, got %s", field, want, v.Kind)
}

// content returns the span inside the quotes of a string value.
func (s *semantic) content(v manifest.Value) manifest.Span {
	if verbatim(s.f.Source, v) {
		return manifest.Span{Start: v.ContentStart, End: v.ContentStart + len(v.Str)}
	}
	return v.Span
}

// errorSpan narrows a version parse error to the offending text when the
// string has no escapes.
func (s *semantic) errorSpan(v manifest.Value, err error) manifest.Span {
	var pe *version.ParseError
	if !errors.As(err, &pe) || !verbatim(s.f.Source, v) {
		return v.Span
	}
	start := v.ContentStart + pe.Offset
	return manifest.Span{Start: start, End: start + max(len(pe.Text), 1)}
}

func (s *semantic) firstLine() manifest.Span {
	return manifest.Span{Start: 0, End: len(s.f.Lines.Line(0))}
}

func verbatim(src []byte, v manifest.Value) bool {
	end := v.ContentStart + len(v.Str)
	return v.Kind == manifest.KindString && end <= len(src) && string(src[v.ContentStart:end]) == v.Str
}

func reason(err error) string {
	var pe *version.ParseError
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return err.Error()
}

// assignedKeys returns the distinct keys of f in first-assignment order.
func assignedKeys(f *manifest.File) []string {
	seen := make(map[string]bool)
	var out []string
	for _, a := range f.Assignments {
		if !seen[a.Key] {
			seen[a.Key] = true
			out = append(out, a.Key)
		}
	}
	return out
}
