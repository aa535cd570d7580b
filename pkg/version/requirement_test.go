package version

import (
	"errors"
	"testing"
)

func TestParseRequirement(t *testing.T) {
	tests := []struct {
		input    string
		name     string
		rng      string
		weak     bool
		conflict bool
		canon    string
	}{
		{"python", "python", "", false, false, "python"},
		{"python-3.7", "python", "3.7", false, false, "python-3.7"},
		{"python-3.7+", "python", "3.7+", false, false, "python-3.7+"},
		{"foo-1+<2", "foo", "1+<2", false, false, "foo-1+<2"},
		{"foo==1.0", "foo", "==1.0", false, false, "foo==1.0"},
		{"foo>=1<2", "foo", "1+<2", false, false, "foo-1+<2"},
		{"foo<2", "foo", "<2", false, false, "foo<2"},
		{"~python==3.9", "python", "==3.9", true, false, "~python==3.9"},
		{"!python-4.0+", "python", "4.0+", false, true, "!python-4.0+"},
		{"maya2024_utils-1", "maya2024_utils", "1", false, false, "maya2024_utils-1"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			r, err := ParseRequirement(tt.input)
			if err != nil {
				t.Fatalf("ParseRequirement(%q) error: %v", tt.input, err)
			}
			if r.Name != tt.name {
				t.Errorf("Name = %q, want %q", r.Name, tt.name)
			}
			if r.Range.String() != tt.rng {
				t.Errorf("Range = %q, want %q", r.Range.String(), tt.rng)
			}
			if r.Weak != tt.weak || r.Conflict != tt.conflict {
				t.Errorf("Weak/Conflict = %v/%v, want %v/%v", r.Weak, r.Conflict, tt.weak, tt.conflict)
			}
			if r.String() != tt.canon {
				t.Errorf("String() = %q, want %q", r.String(), tt.canon)
			}
		})
	}
}

func TestParseRequirementErrors(t *testing.T) {
	tests := []struct {
		input  string
		offset int
		text   string
	}{
		{"", 0, ""},
		{"1foo", 0, "1"},
		{"~", 1, ""},
		{"foo-", 3, "-"},
		{"foo bar", 3, " "},
		{"foo-1..2", 5, ".."},
		{"foo.bar", 3, "."},
		{"foo==", 5, ""},
		{"foo-1+<2x!", 9, "!"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := ParseRequirement(tt.input)
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("ParseRequirement(%q) error = %v, want *ParseError", tt.input, err)
			}
			if pe.Offset != tt.offset || pe.Text != tt.text {
				t.Errorf("error at %d %q, want %d %q (%v)", pe.Offset, pe.Text, tt.offset, tt.text, pe)
			}
			if pe.Input != tt.input {
				t.Errorf("Input = %q, want %q", pe.Input, tt.input)
			}
		})
	}
}

func TestRequirementAllows(t *testing.T) {
	conflict := MustParseRequirement("!python-4+")
	if conflict.Allows(MustParse("4.1")) {
		t.Error("conflict requirement should reject versions in its range")
	}
	if !conflict.Allows(MustParse("3.9")) {
		t.Error("conflict requirement should allow versions outside its range")
	}
	if conflict.Positive() {
		t.Error("conflict requirement is not positive")
	}

	weak := MustParseRequirement("~python-3")
	if !weak.Allows(MustParse("3.9")) || weak.Allows(MustParse("2.7")) {
		t.Error("weak requirement should behave like its range")
	}
}

func TestIsValidName(t *testing.T) {
	for _, name := range []string{"foo", "_foo", "Foo9", "a_b"} {
		if !IsValidName(name) {
			t.Errorf("IsValidName(%q) = false", name)
		}
	}
	for _, name := range []string{"", "9foo", "foo-bar", "foo.bar"} {
		if IsValidName(name) {
			t.Errorf("IsValidName(%q) = true", name)
		}
	}
}
