package validate

import (
	"testing"
)

func TestContext(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []Code
	}{
		{
			name: "valid",
			src: `{
  "serialize_version": "1",
  "requests": ["foo-1+"],
  "resolved_packages": [
    {"name": "foo", "version": "1.0.0"},
    {"name": "bar", "version": "2", "variant": 0}
  ]
}
`,
		},
		{"invalid json", `{"serialize_version": "1",`, []Code{CodeContextJSON}},
		{"not an object", `[1, 2]`, []Code{CodeContextJSON}},
		{"empty", ``, []Code{CodeContextJSON}},
		{"missing keys", `{"serialize_version": "1"}`, []Code{CodeContextKey, CodeContextKey}},
		{
			name: "bad package",
			src:  `{"serialize_version": "1", "requests": [], "resolved_packages": [{"name": "foo-bar", "version": "1"}, {"name": "baz", "version": "1..2"}]}`,
			want: []Code{CodeContextPackage, CodeContextPackage},
		},
		{
			name: "wrong entry type",
			src:  `{"serialize_version": "1", "requests": [], "resolved_packages": [{"name": 3}]}`,
			want: []Code{CodeContextPackage},
		},
		{
			name: "packages not a list",
			src:  `{"serialize_version": "1", "requests": [], "resolved_packages": {"a": 1}}`,
			want: []Code{CodeContextPackage},
		},
		{
			name: "duplicate",
			src:  `{"serialize_version": "1", "requests": [], "resolved_packages": [{"name": "foo", "version": "1"}, {"name": "foo", "version": "2"}]}`,
			want: []Code{CodeContextDuplicate},
		},
		{"trailing data", `{"serialize_version": "1", "requests": [], "resolved_packages": []} x`, []Code{CodeContextJSON}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := codes(Context([]byte(tt.src)))
			if len(got) != len(tt.want) {
				t.Fatalf("codes = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("codes = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestContextPackageSpan(t *testing.T) {
	src := `{"serialize_version": "1", "requests": [], "resolved_packages": [{"name": "ok", "version": "1"}, {"name": "-x", "version": "1"}]}`
	diags := Context([]byte(src))
	if len(diags) != 1 {
		t.Fatalf("diagnostics = %v", diags)
	}
	want := `{"name": "-x", "version": "1"}`
	if got := src[diags[0].Span.Start:diags[0].Span.End]; got != want {
		t.Errorf("span text = %q, want %q", got, want)
	}
}

func TestDocumentContext(t *testing.T) {
	r := New(DefaultOptions()).Document("file:///tmp/env.rxt", []byte(`{}`))
	if r.Kind != KindContext || len(r.Diagnostics) != 3 {
		t.Errorf("report = %+v", r)
	}
	if r.File != nil {
		t.Error("context documents are not parsed as manifests")
	}
}
