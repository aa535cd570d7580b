package discovery

import (
	"os"
	"path/filepath"
	"slices"
)

// Environment variables naming search paths.
const (
	EnvPackagesPath        = "REZ_PACKAGES_PATH"
	EnvLocalPackagesPath   = "REZ_LOCAL_PACKAGES_PATH"
	EnvReleasePackagesPath = "REZ_RELEASE_PACKAGES_PATH"
)

// SearchPathsFromEnv returns the search paths configured by the
// environment: the local packages path first, then every entry of
// REZ_PACKAGES_PATH, then the release packages path. Without
// REZ_PACKAGES_PATH the main list defaults to ~/packages.
func SearchPathsFromEnv() []string {
	home, _ := os.UserHomeDir()
	return searchPaths(os.Getenv, home)
}

func searchPaths(getenv func(string) string, home string) []string {
	var main []string
	for _, p := range filepath.SplitList(getenv(EnvPackagesPath)) {
		if p != "" {
			main = append(main, p)
		}
	}
	if len(main) == 0 && home != "" {
		main = []string{filepath.Join(home, "packages")}
	}

	var out []string
	add := func(p string) {
		if p != "" && !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	add(getenv(EnvLocalPackagesPath))
	for _, p := range main {
		add(p)
	}
	add(getenv(EnvReleasePackagesPath))
	return out
}
