package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	migerrors "github.com/9liver/confluence-markdown-migrator-sub001/internal/errors"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/history"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/report"
)

// newHistoryCmd creates the history command
func newHistoryCmd() *cobra.Command {
	var (
		limit  int
		dbPath string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List previous migration runs",
		Long: `List previous runs recorded in migration.history_db, newest first.

Examples:
  migrator history
  migrator history --limit 5
  migrator history --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				cfg, err := loadRawConfig(viper.GetViper())
				if err != nil {
					return err
				}
				dbPath = cfg.Migration.HistoryDB
			}
			if dbPath == "" {
				return migerrors.ErrConfigMissing("migration.history_db")
			}

			store, err := history.Open(cmd.Context(), dbPath)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer func() { _ = store.Close() }()

			runs, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tFINISHED\tWORKFLOW\tTARGET\tOUTCOME\tPAGES\tERRORS\tDURATION")
			for _, r := range runs {
				outcome := r.Outcome
				if r.DryRun {
					outcome += " (dry run)"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
					shortID(r.ID),
					r.FinishedAt.Local().Format("2006-01-02 15:04"),
					r.Workflow,
					r.ExportTarget,
					outcome,
					r.Pages,
					r.TotalErrors,
					report.FormatDuration(time.Duration(r.DurationSeconds*float64(time.Second))))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to show (0 for all)")
	cmd.Flags().StringVar(&dbPath, "db", "", "history database (default: migration.history_db)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
