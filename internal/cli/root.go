// Package cli implements the migrator command-line interface.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/9liver/confluence-markdown-migrator-sub001/internal/config"
	migerrors "github.com/9liver/confluence-markdown-migrator-sub001/internal/errors"
)

var (
	cfgFile   string
	verbose   bool
	quiet     bool
	logFormat string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "migrator",
	Short: "Migrate Confluence spaces to markdown, Wiki.js and BookStack",
	Long: `migrator moves Confluence content into markdown files or wiki platforms.

A run fetches the configured spaces, optionally verifies their integrity,
converts every page to markdown and then exports and/or imports it. With a
checkpoint path configured, an interrupted or failed run can be resumed.

Quick start:
  migrator config show                          Show the effective configuration
  migrator migrate                              Run the configured workflow
  migrator migrate --target wikijs --dry-run    Preview a Wiki.js import
  migrator migrate --resume                     Continue from the checkpoint
  migrator history                              List previous runs`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		PrintError(err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./migrator.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json (overrides logging.format)")

	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newCheckpointCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// initConfig locates the config file and enables MIGRATOR_* environment
// lookups for bound flags.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/migrator")
		viper.SetConfigType("yaml")
		viper.SetConfigName(strings.TrimSuffix(config.DefaultConfigFile, ".yaml"))
	}

	viper.SetEnvPrefix("MIGRATOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// loadConfig loads the located config file, applies flag overrides from v
// and validates the result.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := loadRawConfig(v)
	if err != nil {
		return nil, err
	}
	applyFlagOverrides(v, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadRawConfig loads the located config file without validating it, for
// commands that do not run a migration.
func loadRawConfig(v *viper.Viper) (*config.Config, error) {
	path := v.ConfigFileUsed()
	if path == "" && cfgFile != "" {
		path = cfgFile
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, migerrors.ErrConfigInvalid("config file", "could not be loaded").WithCause(err)
	}
	return cfg, nil
}
