package config

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	rerrors "github.com/matzehuels/rezls/pkg/errors"
)

func noEnv(string) string { return "" }

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if cfg.Cache.Backend != BackendFile {
		t.Errorf("Cache.Backend = %q", cfg.Cache.Backend)
	}
	if cfg.Resolve.Timeout != 10*time.Second {
		t.Errorf("Resolve.Timeout = %v", cfg.Resolve.Timeout)
	}
	if !cfg.Watch.Enabled {
		t.Error("watching should be enabled by default")
	}
	opts := cfg.ValidationOptions()
	if !opts.RecommendedFields || opts.MaxDiagnostics != 100 || opts.MaxLineLength != 100 {
		t.Errorf("ValidationOptions() = %+v", opts)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, path, err := Load(context.Background(), LoadOptions{Dir: t.TempDir(), Getenv: noEnv})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if path != "" {
		t.Errorf("path = %q, want none", path)
	}
	want := DefaultConfig()
	if cfg.Validation != want.Validation || cfg.Cache != want.Cache || cfg.Watch != want.Watch {
		t.Errorf("Load() = %+v, want %+v", cfg, want)
	}
	if len(cfg.PackagesPath) != 0 {
		t.Errorf("PackagesPath = %v", cfg.PackagesPath)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	body := `packages_path = ["/studio/packages", "/site/packages"]

[validation]
style = true
debounce = "1s"

[resolve]
timeout = "45s"

[cache]
backend = "null"
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, path, err := Load(context.Background(), LoadOptions{Dir: dir, Getenv: noEnv})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if path != filepath.Join(dir, "config.toml") {
		t.Errorf("path = %q", path)
	}
	if !slices.Equal(cfg.PackagesPath, []string{"/studio/packages", "/site/packages"}) {
		t.Errorf("PackagesPath = %v", cfg.PackagesPath)
	}
	if !cfg.Validation.Style || cfg.Validation.Debounce != time.Second {
		t.Errorf("Validation = %+v", cfg.Validation)
	}
	if cfg.Resolve.Timeout != 45*time.Second {
		t.Errorf("Resolve.Timeout = %v", cfg.Resolve.Timeout)
	}
	if cfg.Cache.Backend != BackendNull {
		t.Errorf("Cache.Backend = %q", cfg.Cache.Backend)
	}
	// Unset keys keep their defaults.
	if !cfg.Validation.RecommendedFields || cfg.Server.Addr != DefaultConfig().Server.Addr {
		t.Errorf("defaults lost: %+v", cfg)
	}
	if got := cfg.SearchPaths(); !slices.Equal(got, cfg.PackagesPath) {
		t.Errorf("SearchPaths() = %v", got)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[resolve]\ntimeout = \"45s\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	paths := strings.Join([]string{"/a", "/b"}, string(os.PathListSeparator))

	cfg, _, err := Load(context.Background(), LoadOptions{Dir: dir, Getenv: env(map[string]string{
		"REZLS_RESOLVE_TIMEOUT": "2s",
		"REZLS_WATCH_ENABLED":   "false",
		"REZLS_PACKAGES_PATH":   paths,
		"REZLS_LOG_LEVEL":       "debug",
	})})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Resolve.Timeout != 2*time.Second {
		t.Errorf("Resolve.Timeout = %v, want env to win over file", cfg.Resolve.Timeout)
	}
	if cfg.Watch.Enabled {
		t.Error("Watch.Enabled = true")
	}
	if !slices.Equal(cfg.PackagesPath, []string{"/a", "/b"}) {
		t.Errorf("PackagesPath = %v", cfg.PackagesPath)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		file string
	}{
		{name: "unknown backend", body: "[cache]\nbackend = \"mongo\"\n"},
		{name: "redis without url", body: "[cache]\nbackend = \"redis\"\n"},
		{name: "negative timeout", body: "[resolve]\ntimeout = \"-1s\"\n"},
		{name: "malformed toml", body: "[cache\n"},
		{name: "missing explicit file", file: "/nonexistent/rezls.toml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := LoadOptions{Getenv: noEnv, File: tt.file}
			if tt.file == "" {
				opts.File = filepath.Join(t.TempDir(), "config.toml")
				if err := os.WriteFile(opts.File, []byte(tt.body), 0o644); err != nil {
					t.Fatal(err)
				}
			}
			_, _, err := Load(context.Background(), opts)
			if err == nil {
				t.Fatal("Load succeeded")
			}
			if !rerrors.Is(err, rerrors.ErrCodeConfig) {
				t.Errorf("error code = %q, want CONFIG", rerrors.GetCode(err))
			}
		})
	}
}

func TestLoadCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := Load(ctx, LoadOptions{Getenv: noEnv}); !errors.Is(err, context.Canceled) {
		t.Errorf("Load() error = %v", err)
	}
}

func TestTemplateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rezls", "config.toml")
	if err := WriteFile(path, false); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := WriteFile(path, false); !errors.Is(err, ErrExists) {
		t.Errorf("second WriteFile = %v, want ErrExists", err)
	}
	if err := WriteFile(path, true); err != nil {
		t.Errorf("forced WriteFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("# rezls configuration.")) {
		t.Errorf("template lacks header:\n%s", data)
	}

	cfg, _, err := Load(context.Background(), LoadOptions{File: path, Getenv: noEnv})
	if err != nil {
		t.Fatalf("Load(template): %v", err)
	}
	want := DefaultConfig()
	if cfg.Validation != want.Validation || cfg.Cache != want.Cache || cfg.Resolve != want.Resolve ||
		cfg.Watch != want.Watch || cfg.Server != want.Server || cfg.Log != want.Log {
		t.Errorf("template loads as %+v, want %+v", cfg, want)
	}
}
