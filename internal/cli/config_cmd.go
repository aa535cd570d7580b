package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/rezls/internal/config"
)

// configCommand creates the config management command.
func (c *CLI) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the rezls configuration file",
	}

	cmd.AddCommand(c.configInitCommand())
	cmd.AddCommand(c.configShowCommand())
	cmd.AddCommand(c.configPathCommand())

	return cmd
}

// configInitCommand creates the "config init" subcommand.
func (c *CLI) configInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a config file with the default settings",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationSkipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := c.configPath()
			if err != nil {
				return err
			}
			if err := config.WriteFile(path, force); err != nil {
				if errors.Is(err, config.ErrExists) {
					printWarning("Config file already exists: %s", path)
					printNextStep("Overwrite it with", appName+" config init --force")
					return nil
				}
				return err
			}
			printSuccess("Wrote default config")
			printFile(path)
			printNextStep("Show the effective settings", appName+" config show")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config file")
	return cmd
}

// configShowCommand creates the "config show" subcommand.
func (c *CLI) configShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML",
		Long: `Show prints the configuration after defaults, the config file and
REZLS_* environment variables are merged.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return config.Encode(stdout, c.cfg)
		},
	}
}

// configPathCommand creates the "config path" subcommand.
func (c *CLI) configPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "path",
		Short:       "Print the config file path",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationSkipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := c.configPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, path)
			return nil
		},
	}
}

// configPath returns --config when given, else the default location.
func (c *CLI) configPath() (string, error) {
	if c.configFile != "" {
		return c.configFile, nil
	}
	return config.Path()
}
