// Package cli implements the rezls command-line interface.
//
// The commands are:
//   - serve: run the workspace behind the HTTP/JSON surface
//   - scan: scan the package search paths and report what was found
//   - validate: check manifests and context files
//   - resolve: resolve requirements and write context files or graphs
//   - packages: list the packages on the search paths
//   - cache, config: manage the resolution cache and the config file
//
// All commands read the config file and REZLS_* environment overrides.
// --verbose (-v) enables debug logging.
package cli

import (
	"context"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/rezls/internal/config"
	"github.com/matzehuels/rezls/internal/workspace"
	"github.com/matzehuels/rezls/pkg/buildinfo"
	"github.com/matzehuels/rezls/pkg/cache"
	rerrors "github.com/matzehuels/rezls/pkg/errors"
	"github.com/matzehuels/rezls/pkg/pipeline"
)

const appName = config.AppName

// annotationSkipConfig marks commands that run without loading the config,
// such as those creating it.
const annotationSkipConfig = "rezls/skip-config"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configFile string
	verbose    bool
	cfg        *config.Config
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level), cfg: config.DefaultConfig()}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "rezls checks and resolves rez package repositories",
		Long: `rezls understands rez package repositories: it validates package.py
manifests and resolved-context files, resolves requirements against the
packages on the search paths, and serves completion, hover and navigation
to editors over HTTP.`,
		Version:           buildinfo.Version,
		SilenceUsage:      true,
		PersistentPreRunE: c.loadConfig,
	}
	root.SetVersionTemplate(buildinfo.Template())

	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&c.configFile, "config", "", "config file (default $XDG_CONFIG_HOME/rezls/config.toml)")

	root.AddCommand(c.serveCommand())
	root.AddCommand(c.scanCommand())
	root.AddCommand(c.validateCommand())
	root.AddCommand(c.resolveCommand())
	root.AddCommand(c.packagesCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.configCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// loadConfig reads the configuration and applies its log level unless
// --verbose was given.
func (c *CLI) loadConfig(cmd *cobra.Command, _ []string) error {
	if c.verbose {
		c.SetLogLevel(LogDebug)
	}
	if cmd.Annotations[annotationSkipConfig] == "true" {
		return nil
	}
	cfg, file, err := config.Load(cmd.Context(), config.LoadOptions{File: c.configFile})
	if err != nil {
		return err
	}
	c.cfg = cfg
	if !c.verbose {
		if level, err := log.ParseLevel(cfg.Log.Level); err == nil {
			c.SetLogLevel(level)
		} else {
			c.Logger.Warn("ignoring invalid log level", "level", cfg.Log.Level)
		}
	}
	if file != "" {
		c.Logger.Debug("loaded config", "file", file)
	}
	return nil
}

// =============================================================================
// Factories
// =============================================================================

// searchPaths returns paths when given, else the configured ones.
func (c *CLI) searchPaths(paths []string) []string {
	if len(paths) > 0 {
		return paths
	}
	return c.cfg.SearchPaths()
}

// newStore opens the persistent resolution store selected by the config.
func (c *CLI) newStore(ctx context.Context, noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	switch c.cfg.Cache.Backend {
	case config.BackendNull:
		return cache.NewNullCache(), nil
	case config.BackendRedis:
		return cache.NewRedisCache(ctx, c.cfg.Cache.RedisURL)
	}
	dir, err := c.cacheDir()
	if err != nil {
		c.Logger.Warn("resolution cache disabled", "err", err)
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}

// newRunner creates a pipeline runner for one-shot commands.
func (c *CLI) newRunner(ctx context.Context, noCache bool) (*pipeline.Runner, error) {
	store, err := c.newStore(ctx, noCache)
	if err != nil {
		return nil, err
	}
	return pipeline.NewRunner(store, nil, c.Logger), nil
}

// newWorkspace builds a workspace from the config.
func (c *CLI) newWorkspace(ctx context.Context, paths []string, publisher workspace.Publisher) (*workspace.Workspace, error) {
	store, err := c.newStore(ctx, false)
	if err != nil {
		return nil, err
	}
	return workspace.New(workspace.Options{
		SearchPaths:    c.searchPaths(paths),
		Validation:     c.cfg.ValidationOptions(),
		Debounce:       c.cfg.Validation.Debounce,
		ResolveTimeout: c.cfg.Resolve.Timeout,
		DescriptorTTL:  c.cfg.Cache.DescriptorTTL,
		DocumentTTL:    c.cfg.Cache.DocumentTTL,
		ResolveTTL:     c.cfg.Cache.ResolveTTL,
		Store:          store,
		Publisher:      publisher,
		Logger:         c.Logger,
	}), nil
}

// cacheDir returns the file cache directory: cache.dir from the config, or
// the XDG cache directory.
func (c *CLI) cacheDir() (string, error) {
	if c.cfg.Cache.Dir != "" {
		return c.cfg.Cache.Dir, nil
	}
	return config.CacheDir()
}

// =============================================================================
// Options Helpers
// =============================================================================

// parseFormats parses a comma-separated format string into a slice.
func parseFormats(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	formats := strings.Split(s, ",")
	for i, f := range formats {
		formats[i] = strings.ToLower(strings.TrimSpace(f))
	}
	if err := pipeline.ValidateFormats(formats); err != nil {
		return nil, rerrors.New(rerrors.ErrCodeInvalidInput, "%v", err)
	}
	return formats, nil
}
