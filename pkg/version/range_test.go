package version

import (
	"errors"
	"testing"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		input   string
		matches []string
		rejects []string
		canon   string
	}{
		{"", []string{"0", "1.0", "99"}, nil, ""},
		{"==1.0", []string{"1.0"}, []string{"1.0.0", "1.1"}, "==1.0"},
		{">=1.0", []string{"1.0", "1.0.0", "2"}, []string{"0.9"}, "1.0+"},
		{">1.0", []string{"1.0.0", "2"}, []string{"1.0", "0.9"}, ">1.0"},
		{"<=2", []string{"1", "2"}, []string{"2.0", "3"}, "<=2"},
		{"<2", []string{"1", "1.9.9"}, []string{"2", "2.0"}, "<2"},
		{"1+<2", []string{"1", "1.0.0", "1.99"}, []string{"0.9", "2", "2.0.0"}, "1+<2"},
		{"1+<=2", []string{"1", "2"}, []string{"2.0"}, "1+<=2"},
		{"1+", []string{"1", "5"}, []string{"0.9"}, "1+"},
		{">=1<2", []string{"1.5"}, []string{"2"}, "1+<2"},
		{">1<=2", []string{"1.5", "2"}, []string{"1", "2.1"}, ">1<=2"},
		{"1.2", []string{"1.2", "1.2.0", "1.2.9.beta"}, []string{"1.20", "1.3", "1"}, "1.2"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			r, err := ParseRange(tt.input)
			if err != nil {
				t.Fatalf("ParseRange(%q) error: %v", tt.input, err)
			}
			for _, s := range tt.matches {
				if !r.Matches(MustParse(s)) {
					t.Errorf("range %q should match %s", tt.input, s)
				}
			}
			for _, s := range tt.rejects {
				if r.Matches(MustParse(s)) {
					t.Errorf("range %q should not match %s", tt.input, s)
				}
			}
			if r.String() != tt.canon {
				t.Errorf("String() = %q, want %q", r.String(), tt.canon)
			}
			again, err := ParseRange(r.String())
			if err != nil {
				t.Fatalf("canonical form %q does not parse: %v", r.String(), err)
			}
			if again.String() != r.String() {
				t.Errorf("canonical form is not stable: %q -> %q", r.String(), again.String())
			}
		})
	}
}

func TestParseRangeErrors(t *testing.T) {
	tests := []struct {
		input  string
		offset int
	}{
		{"=1", 0},
		{"==", 2},
		{">=", 2},
		{"1+>2", 2},
		{"1+<2<3", 4},
		{"<2>1", 2},
		{"1..2", 1},
		{"+<2", 0},
		{"1<2", 1},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := ParseRange(tt.input)
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("ParseRange(%q) error = %v, want *ParseError", tt.input, err)
			}
			if pe.Offset != tt.offset {
				t.Errorf("Offset = %d, want %d (%v)", pe.Offset, tt.offset, pe)
			}
		})
	}
}

func TestRangeConvexity(t *testing.T) {
	sorted := make([]Version, len(orderFixtures))
	for i, s := range orderFixtures {
		sorted[i] = MustParse(s)
	}
	Sort(sorted)

	ranges := []string{
		"", "==1.0", ">=1.0", ">1.0", "<=2", "<2", "1+<2", "1+<=2.1.0", "1", "1.0",
		"2.1", ">1a<10", "alpha+", "<1.0.0", ">=01<1",
	}
	for _, rs := range ranges {
		r, err := ParseRange(rs)
		if err != nil {
			t.Fatalf("ParseRange(%q) error: %v", rs, err)
		}
		state := 0 // 0 before the run, 1 inside, 2 after
		for _, v := range sorted {
			m := r.Matches(v)
			switch {
			case m && state == 0:
				state = 1
			case !m && state == 1:
				state = 2
			case m && state == 2:
				t.Errorf("range %q is not convex: %s matches after the run ended", rs, v)
			}
		}
	}
}

func TestRangeFilter(t *testing.T) {
	vs := []Version{MustParse("2.0.0"), MustParse("1.0.0")}
	got := MustParseRequirement("foo-1+<2").Range.Filter(vs)
	if len(got) != 1 || got[0].String() != "1.0.0" {
		t.Errorf("Filter() = %v, want [1.0.0]", got)
	}
}
