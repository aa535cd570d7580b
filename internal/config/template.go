package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	rerrors "github.com/matzehuels/rezls/pkg/errors"
)

// ErrExists is returned by [WriteFile] when the target exists and force is
// not set.
var ErrExists = errors.New("config file already exists")

const header = `# rezls configuration.
#
# Every key can be overridden by an environment variable named after it,
# e.g. REZLS_RESOLVE_TIMEOUT=30s or REZLS_CACHE_BACKEND=null.
# An empty packages_path uses REZ_LOCAL_PACKAGES_PATH, REZ_PACKAGES_PATH
# and REZ_RELEASE_PACKAGES_PATH.

`

// Encode writes c as TOML, durations in Go syntax ("500ms").
func Encode(w io.Writer, c *Config) error {
	paths := c.PackagesPath
	if paths == nil {
		paths = []string{}
	}
	doc := map[string]any{
		"packages_path": paths,
		"validation": map[string]any{
			"recommended_fields": c.Validation.RecommendedFields,
			"style":              c.Validation.Style,
			"max_diagnostics":    c.Validation.MaxDiagnostics,
			"max_line_length":    c.Validation.MaxLineLength,
			"debounce":           duration(c.Validation.Debounce),
		},
		"cache": map[string]any{
			"descriptor_ttl": duration(c.Cache.DescriptorTTL),
			"resolve_ttl":    duration(c.Cache.ResolveTTL),
			"document_ttl":   duration(c.Cache.DocumentTTL),
			"backend":        c.Cache.Backend,
			"dir":            c.Cache.Dir,
			"redis_url":      c.Cache.RedisURL,
		},
		"resolve": map[string]any{
			"timeout": duration(c.Resolve.Timeout),
		},
		"watch": map[string]any{
			"enabled":  c.Watch.Enabled,
			"debounce": duration(c.Watch.Debounce),
		},
		"server": map[string]any{
			"addr": c.Server.Addr,
		},
		"log": map[string]any{
			"level": c.Log.Level,
		},
	}
	return toml.NewEncoder(w).Encode(doc)
}

// Template returns the commented default config file.
func Template() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(header)
	if err := Encode(&buf, DefaultConfig()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile writes the default template to path, creating its directory.
func WriteFile(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrExists, path)
		}
	}
	data, err := Template()
	if err != nil {
		return rerrors.Wrap(rerrors.ErrCodeConfig, err, "encode template")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return rerrors.Wrap(rerrors.ErrCodeIO, err, "create config directory")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return rerrors.Wrap(rerrors.ErrCodeIO, err, "write %s", path)
	}
	return nil
}

func duration(d time.Duration) string { return d.String() }
