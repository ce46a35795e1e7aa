package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// newConfigCmd creates the config command with subcommands.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and validate configuration",
		Long: `View and validate the migrator configuration.

Configuration is layered with this priority:
  1. Command-line flags
  2. MIGRATOR_* environment variables
  3. Config file (--config, ./migrator.yaml, ~/.config/migrator/migrator.yaml)
  4. Built-in defaults

Values in the file may reference the environment as ${VAR} or ${VAR:-default}.`,
	}
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigValidateCmd())
	return cmd
}

// newConfigShowCmd creates the 'config show' subcommand.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRawConfig(viper.GetViper())
			if err != nil {
				return err
			}
			data, err := cfg.Redacted().YAML()
			if err != nil {
				return fmt.Errorf("render config: %w", err)
			}
			if path := viper.ConfigFileUsed(); path != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# source: %s\n", path)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

// newConfigValidateCmd creates the 'config validate' subcommand.
func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration for the configured workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRawConfig(viper.GetViper())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid for workflow %s, target %s\n",
				cfg.Migration.Workflow, cfg.Migration.ExportTarget)
			return nil
		},
	}
}
