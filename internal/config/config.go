// Package config loads rezls settings from defaults, an optional TOML file
// and REZLS_* environment variables, in increasing priority.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/matzehuels/rezls/pkg/discovery"
	rerrors "github.com/matzehuels/rezls/pkg/errors"
	"github.com/matzehuels/rezls/pkg/validate"
)

const (
	// AppName is the application name used for directories.
	AppName = "rezls"
	// FileName is the config file name (without extension).
	FileName = "config"
	// FileExt is the config file extension.
	FileExt = "toml"
	// EnvPrefix prefixes environment overrides, e.g. REZLS_RESOLVE_TIMEOUT.
	EnvPrefix = "REZLS"
)

// Cache backends.
const (
	BackendNull  = "null"
	BackendFile  = "file"
	BackendRedis = "redis"
)

type (
	// Config is the complete rezls configuration.
	Config struct {
		// PackagesPath lists the search paths in priority order. Empty means
		// the REZ_* environment decides.
		PackagesPath []string         `mapstructure:"packages_path"`
		Validation   ValidationConfig `mapstructure:"validation"`
		Cache        CacheConfig      `mapstructure:"cache"`
		Resolve      ResolveConfig    `mapstructure:"resolve"`
		Watch        WatchConfig      `mapstructure:"watch"`
		Server       ServerConfig     `mapstructure:"server"`
		Log          LogConfig        `mapstructure:"log"`
	}

	// ValidationConfig toggles optional diagnostics.
	ValidationConfig struct {
		RecommendedFields bool          `mapstructure:"recommended_fields"`
		Style             bool          `mapstructure:"style"`
		MaxDiagnostics    int           `mapstructure:"max_diagnostics"`
		MaxLineLength     int           `mapstructure:"max_line_length"`
		Debounce          time.Duration `mapstructure:"debounce"`
	}

	// CacheConfig sizes the in-memory tiers and selects the persistent
	// resolution store.
	CacheConfig struct {
		DescriptorTTL time.Duration `mapstructure:"descriptor_ttl"`
		ResolveTTL    time.Duration `mapstructure:"resolve_ttl"`
		DocumentTTL   time.Duration `mapstructure:"document_ttl"`
		Backend       string        `mapstructure:"backend"`
		Dir           string        `mapstructure:"dir"`
		RedisURL      string        `mapstructure:"redis_url"`
	}

	// ResolveConfig bounds resolver runs.
	ResolveConfig struct {
		Timeout time.Duration `mapstructure:"timeout"`
	}

	// WatchConfig controls the manifest watcher.
	WatchConfig struct {
		Enabled  bool          `mapstructure:"enabled"`
		Debounce time.Duration `mapstructure:"debounce"`
	}

	// ServerConfig configures the HTTP surface.
	ServerConfig struct {
		Addr string `mapstructure:"addr"`
	}

	// LogConfig configures logging.
	LogConfig struct {
		Level string `mapstructure:"level"`
	}

	// LoadOptions selects where configuration is read from.
	LoadOptions struct {
		// File is an explicit config file. It must exist.
		File string
		// Dir overrides the config directory searched for config.toml.
		Dir string
		// Getenv replaces os.Getenv, mainly for tests.
		Getenv func(string) string
	}
)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	v := validate.DefaultOptions()
	return &Config{
		Validation: ValidationConfig{
			RecommendedFields: true,
			MaxDiagnostics:    v.MaxDiagnostics,
			MaxLineLength:     v.MaxLineLength,
			Debounce:          300 * time.Millisecond,
		},
		Cache: CacheConfig{
			DescriptorTTL: time.Hour,
			ResolveTTL:    10 * time.Minute,
			DocumentTTL:   5 * time.Minute,
			Backend:       BackendFile,
		},
		Resolve: ResolveConfig{Timeout: 10 * time.Second},
		Watch:   WatchConfig{Enabled: true, Debounce: 500 * time.Millisecond},
		Server:  ServerConfig{Addr: "127.0.0.1:7878"},
		Log:     LogConfig{Level: "info"},
	}
}

// Dir returns the config directory, $XDG_CONFIG_HOME/rezls or
// ~/.config/rezls.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home directory: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, AppName), nil
}

// Path returns the default config file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName+"."+FileExt), nil
}

// CacheDir returns the default persistent cache directory,
// $XDG_CACHE_HOME/rezls or ~/.cache/rezls.
func CacheDir() (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home directory: %w", err)
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, AppName), nil
}

// Load reads the configuration. It returns the config and the file it was
// read from, or "" when only defaults and the environment applied.
func Load(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	resolved, err := readFile(v, opts)
	if err != nil {
		return nil, "", err
	}
	bindEnv(v, getenv)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", rerrors.Wrap(rerrors.ErrCodeConfig, err, "parse configuration")
	}
	cfg.PackagesPath = splitPaths(cfg.PackagesPath)
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, resolved, nil
}

func readFile(v *viper.Viper, opts LoadOptions) (string, error) {
	v.SetConfigType(FileExt)
	if opts.File != "" {
		if _, err := os.Stat(opts.File); err != nil {
			return "", rerrors.Wrap(rerrors.ErrCodeConfig, err, "config file not found: %s", opts.File)
		}
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return "", rerrors.Wrap(rerrors.ErrCodeConfig, err, "read %s", opts.File)
		}
		return opts.File, nil
	}

	dir := opts.Dir
	if dir == "" {
		d, err := Dir()
		if err != nil {
			return "", nil
		}
		dir = d
	}
	path := filepath.Join(dir, FileName+"."+FileExt)
	if _, err := os.Stat(path); err != nil {
		// No config file: defaults and environment only.
		return "", nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return "", rerrors.Wrap(rerrors.ErrCodeConfig, err, "read %s", path)
	}
	return path, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("packages_path", append([]string{}, d.PackagesPath...))
	v.SetDefault("validation.recommended_fields", d.Validation.RecommendedFields)
	v.SetDefault("validation.style", d.Validation.Style)
	v.SetDefault("validation.max_diagnostics", d.Validation.MaxDiagnostics)
	v.SetDefault("validation.max_line_length", d.Validation.MaxLineLength)
	v.SetDefault("validation.debounce", d.Validation.Debounce)
	v.SetDefault("cache.descriptor_ttl", d.Cache.DescriptorTTL)
	v.SetDefault("cache.resolve_ttl", d.Cache.ResolveTTL)
	v.SetDefault("cache.document_ttl", d.Cache.DocumentTTL)
	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.redis_url", d.Cache.RedisURL)
	v.SetDefault("resolve.timeout", d.Resolve.Timeout)
	v.SetDefault("watch.enabled", d.Watch.Enabled)
	v.SetDefault("watch.debounce", d.Watch.Debounce)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("log.level", d.Log.Level)
}

// bindEnv copies REZLS_* values from getenv for every known key.
func bindEnv(v *viper.Viper, getenv func(string) string) {
	for _, key := range v.AllKeys() {
		name := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if val := getenv(name); val != "" {
			v.Set(key, val)
		}
	}
}

// splitPaths expands entries holding an OS path list, as environment
// values do.
func splitPaths(paths []string) []string {
	var out []string
	for _, p := range paths {
		for _, q := range filepath.SplitList(p) {
			if q = strings.TrimSpace(q); q != "" {
				out = append(out, q)
			}
		}
	}
	return out
}

// Validate checks values viper cannot type-check.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case BackendNull, BackendFile:
	case BackendRedis:
		if c.Cache.RedisURL == "" {
			return rerrors.New(rerrors.ErrCodeConfig, "cache.redis_url is required for the redis backend")
		}
	default:
		return rerrors.New(rerrors.ErrCodeConfig, "unknown cache.backend %q (want %s, %s or %s)",
			c.Cache.Backend, BackendNull, BackendFile, BackendRedis)
	}
	for _, d := range []struct {
		key string
		val time.Duration
	}{
		{"validation.debounce", c.Validation.Debounce},
		{"cache.descriptor_ttl", c.Cache.DescriptorTTL},
		{"cache.resolve_ttl", c.Cache.ResolveTTL},
		{"cache.document_ttl", c.Cache.DocumentTTL},
		{"resolve.timeout", c.Resolve.Timeout},
		{"watch.debounce", c.Watch.Debounce},
	} {
		if d.val < 0 {
			return rerrors.New(rerrors.ErrCodeConfig, "%s must not be negative", d.key)
		}
	}
	for _, p := range c.PackagesPath {
		if err := rerrors.ValidateSearchPath(p); err != nil {
			return rerrors.Wrap(rerrors.ErrCodeConfig, err, "packages_path")
		}
	}
	return nil
}

// SearchPaths returns the configured search paths, falling back to the
// REZ_* environment.
func (c *Config) SearchPaths() []string {
	if len(c.PackagesPath) > 0 {
		return slices.Clone(c.PackagesPath)
	}
	return discovery.SearchPathsFromEnv()
}

// ValidationOptions converts the validation section.
func (c *Config) ValidationOptions() validate.Options {
	return validate.Options{
		RecommendedFields: c.Validation.RecommendedFields,
		Style:             c.Validation.Style,
		MaxLineLength:     c.Validation.MaxLineLength,
		MaxDiagnostics:    c.Validation.MaxDiagnostics,
	}
}
