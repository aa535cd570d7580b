package errors

import (
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

// maxNameLength bounds package names accepted from clients.
const maxNameLength = 256

// ValidatePackageName validates a package name for safety and correctness.
// It rejects names that could be used for path traversal when the name is
// joined onto a search path:
//   - No empty names
//   - No control characters
//   - No path traversal sequences (.., /, \)
//   - Maximum length of 256 characters
//
// Use [ValidateRezPackageName] for the stricter identifier rule manifests follow.
func ValidatePackageName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidPackage, "package name cannot be empty")
	}

	if len(name) > maxNameLength {
		return New(ErrCodeInvalidPackage, "package name too long (max %d characters)", maxNameLength)
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidPackage, "package name contains invalid control characters")
		}
	}

	for _, pattern := range []string{"..", "/", "\\"} {
		if strings.Contains(name, pattern) {
			return New(ErrCodeInvalidPackage, "package name contains invalid characters: %q", pattern)
		}
	}

	return nil
}

// rezPackageNameRegex is the identifier pattern package names must follow.
var rezPackageNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateRezPackageName validates a package name against the identifier
// pattern used by manifests and requirement strings.
func ValidateRezPackageName(name string) error {
	if err := ValidatePackageName(name); err != nil {
		return err
	}
	if !rezPackageNameRegex.MatchString(name) {
		return New(ErrCodeInvalidPackage, "invalid package name %q: must match [A-Za-z_][A-Za-z0-9_]*", name)
	}
	return nil
}

// ValidateSearchPath validates a configured package search path.
// The path must be non-empty and free of control characters; it does not
// need to exist (missing paths are reported by discovery, not rejected here).
func ValidateSearchPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return New(ErrCodeInvalidPath, "search path cannot be empty")
	}
	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "search path contains invalid characters")
		}
	}
	return nil
}

// DocumentPath converts a document identifier sent by an editor into a
// filesystem path. Both file:// URIs and absolute paths are accepted.
func DocumentPath(uri string) (string, error) {
	if uri == "" {
		return "", New(ErrCodeInvalidURI, "document URI cannot be empty")
	}
	if strings.ContainsRune(uri, '\x00') {
		return "", New(ErrCodeInvalidURI, "document URI contains invalid characters")
	}
	if !strings.Contains(uri, "://") {
		if !filepath.IsAbs(uri) {
			return "", New(ErrCodeInvalidURI, "document path must be absolute: %q", uri)
		}
		return filepath.Clean(uri), nil
	}

	u, err := url.Parse(uri)
	if err != nil {
		return "", Wrap(ErrCodeInvalidURI, err, "parse document URI %q", uri)
	}
	if u.Scheme != "file" {
		return "", New(ErrCodeInvalidURI, "unsupported URI scheme %q", u.Scheme)
	}
	return filepath.Clean(filepath.FromSlash(u.Path)), nil
}
