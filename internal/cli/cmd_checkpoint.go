package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/9liver/confluence-markdown-migrator-sub001/internal/checkpoint"
	migerrors "github.com/9liver/confluence-markdown-migrator-sub001/internal/errors"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/phase"
)

// newCheckpointCmd creates the checkpoint command with subcommands.
func newCheckpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect migration checkpoints",
	}
	cmd.AddCommand(newCheckpointInspectCmd())
	return cmd
}

func newCheckpointInspectCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect [path]",
		Short: "Show what a checkpoint contains",
		Long: `Show the version, timestamp, completed phases and tree size of a
checkpoint. Without a path, migration.checkpoint_path is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, err := loadRawConfig(viper.GetViper())
				if err != nil {
					return err
				}
				path = cfg.Migration.CheckpointPath
			}
			if path == "" {
				return migerrors.ErrConfigMissing("migration.checkpoint_path")
			}

			info, err := checkpoint.NewStore().Inspect(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}

			fmt.Fprintf(out, "Checkpoint: %s\n", info.Path)
			fmt.Fprintf(out, "Version:    %s\n", info.Version)
			fmt.Fprintf(out, "Written:    %s\n", info.Timestamp.Local().Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "Phases:     %s\n", phaseList(info.Phases))
			if info.Tree != nil {
				fmt.Fprintf(out, "Tree:       %d space(s), %d page(s), %d attachment(s), depth %d\n",
					info.Tree.Spaces, info.Tree.Pages, info.Tree.Attachments, info.Tree.MaxDepth)
			} else {
				fmt.Fprintf(out, "Tree:       %s (a resumed run fetches it again)\n", info.TreeError)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func phaseList(keys []phase.Key) string {
	if len(keys) == 0 {
		return "none"
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}
