package errors

import (
	"path/filepath"
	"testing"
)

func TestValidatePackageName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "python", false},
		{"valid with underscore", "my_package", false},
		{"valid with dash", "my-package", false},

		{"empty", "", true},
		{"too long", string(make([]byte, 300)), true},
		{"path traversal", "foo/../bar", true},
		{"slash", "foo/bar", true},
		{"backslash", "foo\\bar", true},
		{"control char", "foo\x01bar", true},
		{"newline", "foo\nbar", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePackageName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePackageName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateRezPackageName(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"python", false},
		{"_private", false},
		{"maya2024", false},
		{"my_package", false},
		{"my-package", true},
		{"2fast", true},
		{"foo.bar", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			err := ValidateRezPackageName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRezPackageName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeInvalidPackage) {
				t.Errorf("error code = %v, want %v", GetCode(err), ErrCodeInvalidPackage)
			}
		})
	}
}

func TestValidateSearchPath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"absolute", "/opt/rez/packages", false},
		{"relative", "packages", false},
		{"empty", "", true},
		{"blank", "   ", true},
		{"null byte", "/opt\x00/rez", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSearchPath(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSearchPath(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestDocumentPath(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		want    string
		wantErr bool
	}{
		{"file uri", "file:///opt/pkgs/foo/1.0.0/package.py", filepath.FromSlash("/opt/pkgs/foo/1.0.0/package.py"), false},
		{"escaped file uri", "file:///opt/my%20pkgs/package.py", filepath.FromSlash("/opt/my pkgs/package.py"), false},
		{"absolute path", "/opt/pkgs/foo/package.py", filepath.FromSlash("/opt/pkgs/foo/package.py"), false},
		{"relative path", "foo/package.py", "", true},
		{"http uri", "http://example.com/package.py", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DocumentPath(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DocumentPath(%q) error = %v, wantErr %v", tt.uri, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("DocumentPath(%q) = %q, want %q", tt.uri, got, tt.want)
			}
		})
	}
}
