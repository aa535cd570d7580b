package query

import (
	"fmt"
	"path/filepath"

	packageurl "github.com/package-url/packageurl-go"

	"github.com/matzehuels/rezls/pkg/manifest"
)

// PURLType and PURLNamespace identify packages of this ecosystem in
// package URLs, e.g. pkg:generic/rez/maya@2024.0.
var PURLType = packageurl.TypeGeneric

const PURLNamespace = "rez"

// PackageURL returns the package URL of d. When the source path follows
// root/name/version/package.py, root is recorded as the repository_url
// qualifier.
func PackageURL(d *manifest.Descriptor) string {
	var qualifiers packageurl.Qualifiers
	if root := repositoryRoot(d); root != "" {
		qualifiers = packageurl.QualifiersFromMap(map[string]string{"repository_url": "file://" + filepath.ToSlash(root)})
	}
	return packageurl.NewPackageURL(PURLType, PURLNamespace, d.Name, d.Version.String(), qualifiers, "").ToString()
}

// ParsePackageURL returns the name and version of a package URL. The
// version is "" when the URL names the whole package.
func ParsePackageURL(purl string) (name, version string, err error) {
	p, err := packageurl.FromString(purl)
	if err != nil {
		return "", "", err
	}
	if p.Type != PURLType || p.Namespace != PURLNamespace {
		return "", "", fmt.Errorf("not a %s/%s package URL: %s", PURLType, PURLNamespace, purl)
	}
	return p.Name, p.Version, nil
}

func repositoryRoot(d *manifest.Descriptor) string {
	if d.SourcePath == "" || filepath.Base(d.SourcePath) != manifest.FileName {
		return ""
	}
	versionDir := filepath.Dir(d.SourcePath)
	nameDir := filepath.Dir(versionDir)
	if filepath.Base(versionDir) != d.Version.String() || filepath.Base(nameDir) != d.Name {
		return ""
	}
	return filepath.Dir(nameDir)
}
