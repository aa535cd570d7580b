package buildinfo

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	s := String()
	for _, want := range []string{"version: " + Version, "commit: " + Commit, "go: go"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
	if !strings.HasPrefix(Template(), "{{.Name}} version ") {
		t.Errorf("Template() = %q", Template())
	}
	if Get().Version != Version {
		t.Errorf("Get() = %+v", Get())
	}
}
