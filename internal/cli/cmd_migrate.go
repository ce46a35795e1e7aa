package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/9liver/confluence-markdown-migrator-sub001/internal/checkpoint"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/config"
	migerrors "github.com/9liver/confluence-markdown-migrator-sub001/internal/errors"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/history"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/lock"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/markdown"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/model"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/orchestrator"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/phase"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/progress"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/report"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/state"
)

// migrateFlags maps flag names to the viper keys they are bound to.
var migrateFlags = []string{
	"workflow", "target", "checkpoint-path", "report", "dry-run",
	"spaces", "select", "output-dir", "history-db",
}

// newMigrateCmd creates the migrate command
func newMigrateCmd() *cobra.Command {
	var resume bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run the configured migration workflow",
		Long: `Run a migration: fetch, verify, convert, then export and/or import.

Workflows:
  export_only           Confluence -> markdown files
  import_only           converted pages from a checkpoint -> wiki target(s)
                        (requires --resume)
  export_then_import    Confluence -> markdown files -> wiki target(s)
  import_from_markdown  markdown files from an earlier export -> wiki target(s)

Targets: markdown_files, wikijs, bookstack, both_wikis

With migration.checkpoint_path set, results are checkpointed after every
phase. --resume reuses completed phases from the checkpoint.

Exit status: 0 success, 1 completed with errors, 2 failed, 130 interrupted.

Examples:
  migrator migrate
  migrator migrate --workflow export_then_import --target wikijs
  migrator migrate --spaces DOCS,OPS --dry-run
  migrator migrate --resume --checkpoint-path run.checkpoint.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(viper.GetViper())
			if err != nil {
				return err
			}

			ctx, cancel := SetupSignalHandler()
			defer cancel()

			m := &migration{
				cfg:       cfg,
				resume:    resume,
				out:       cmd.OutOrStdout(),
				errOut:    cmd.ErrOrStderr(),
				newSource: newConfluenceSource,
			}
			if f, ok := m.out.(*os.File); ok {
				m.color = report.ColorEnabled(f)
			}
			return m.run(ctx)
		},
	}

	f := cmd.Flags()
	f.String("workflow", "", "workflow: export_only, import_only, export_then_import, import_from_markdown")
	f.String("target", "", "export target: markdown_files, wikijs, bookstack, both_wikis")
	f.String("checkpoint-path", "", "checkpoint file written after every phase")
	f.String("report", "", "path of the JSON report")
	f.Bool("dry-run", false, "show what import phases would do without writing")
	f.StringSlice("spaces", nil, "space keys to fetch (default: all)")
	f.StringSlice("select", nil, "page ids to import (default: all)")
	f.String("output-dir", "", "markdown export directory")
	f.String("history-db", "", "sqlite file recording runs")
	f.BoolVar(&resume, "resume", false, "resume from the checkpoint")

	for _, name := range migrateFlags {
		_ = viper.BindPFlag(name, f.Lookup(name))
	}
	return cmd
}

// applyFlagOverrides copies explicitly set flags (or their MIGRATOR_*
// environment equivalents) onto cfg.
func applyFlagOverrides(v *viper.Viper, cfg *config.Config) {
	if v.IsSet("workflow") {
		cfg.Migration.Workflow = config.Workflow(v.GetString("workflow"))
	}
	if v.IsSet("target") {
		cfg.Migration.ExportTarget = config.ExportTarget(v.GetString("target"))
	}
	if v.IsSet("checkpoint-path") {
		cfg.Migration.CheckpointPath = v.GetString("checkpoint-path")
	}
	if v.IsSet("report") {
		cfg.Migration.ReportPath = v.GetString("report")
	}
	if v.IsSet("dry-run") {
		cfg.Migration.DryRun = v.GetBool("dry-run")
	}
	if v.IsSet("spaces") {
		cfg.Confluence.SpaceKeys = v.GetStringSlice("spaces")
	}
	if v.IsSet("select") {
		cfg.Migration.SelectedPageIDs = v.GetStringSlice("select")
	}
	if v.IsSet("output-dir") {
		cfg.Export.OutputDirectory = v.GetString("output-dir")
	}
	if v.IsSet("history-db") {
		cfg.Migration.HistoryDB = v.GetString("history-db")
	}
}

// migration is one invocation of the migrate command.
type migration struct {
	cfg    *config.Config
	resume bool
	out    io.Writer
	errOut io.Writer
	color  bool

	newSource func(cfg *config.Config, logger *slog.Logger) (source, error)
}

func (m *migration) run(ctx context.Context) error {
	logger, closeLog, err := newLogger(m.errOut, m.cfg.Logging, logFormat, verbose, quiet)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	store := checkpoint.NewStore(checkpoint.WithLogger(logger))
	cpPath := m.cfg.Migration.CheckpointPath
	if cpPath != "" {
		guard := lock.NewRunGuard(cpPath)
		if err := guard.Acquire(); err != nil {
			var running *lock.AlreadyRunningError
			if errors.As(err, &running) {
				return migerrors.ErrRunInProgress(cpPath, running.PID)
			}
			return fmt.Errorf("guard checkpoint: %w", err)
		}
		defer guard.Release()
	}

	var (
		tree     *model.Tree
		existing *phase.Results
	)
	if m.resume {
		if cpPath == "" {
			return migerrors.ErrConfigMissing("migration.checkpoint_path")
		}
		tree, existing, err = store.Load(cpPath)
		if err != nil {
			return err
		}
		logger.Info("resuming from checkpoint",
			"path", cpPath,
			"phases", existing.Len(),
			"tree_restored", tree != nil)
	}

	if m.cfg.Migration.Workflow == config.WorkflowImportOnly && !hasConvertedPages(tree) {
		err := migerrors.ErrConfigInvalid("migration.workflow",
			"import_only imports pages converted by an earlier run, and no converted tree is available")
		err.Fix = "Rerun with --resume and a checkpoint written by export_only or export_then_import, or use export_then_import"
		return err
	}

	var fetch markdown.AttachmentFetcher
	if m.cfg.Migration.Workflow.NeedsSource() {
		src, err := m.newSource(m.cfg, logger)
		if err != nil {
			return migerrors.ErrSourceUnavailable("confluence").WithCause(err)
		}
		fetch = src.Download
		if tree == nil {
			tree, err = src.Fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return migerrors.ErrInterrupted().WithCause(ctx.Err())
				}
				return migerrors.ErrSourceUnavailable("confluence").WithCause(err)
			}
		}
	}

	orch := orchestrator.New(orchestrator.OptionsFromConfig(m.cfg), newCollaborators(m.cfg, fetch, logger),
		orchestrator.WithLogger(logger),
		orchestrator.WithProgress(progress.New(m.errOut, quiet)),
		orchestrator.WithCheckpointStore(store))
	rep := orch.Orchestrate(ctx, tree, existing, cpPath)

	if err := rep.RenderConsole(m.out, m.color); err != nil {
		logger.Warn("render report failed", "error", err)
	}
	reportPath := m.cfg.Migration.ReportPath
	if reportPath != "" {
		if err := rep.WriteJSON(reportPath); err != nil {
			logger.Error("write report failed", "path", reportPath, "error", err)
			reportPath = ""
		} else {
			fmt.Fprintf(m.out, "\nReport written to %s\n", reportPath)
		}
	}
	m.recordHistory(context.WithoutCancel(ctx), rep, reportPath, logger)

	return runOutcome(ctx, rep)
}

// hasConvertedPages reports whether any page of tree carries markdown.
func hasConvertedPages(tree *model.Tree) bool {
	if tree == nil {
		return false
	}
	found := false
	tree.Walk(func(_ *model.Space, p *model.Page, _ int) bool {
		found = p.Markdown != ""
		return !found
	})
	return found
}

// recordHistory stores the run summary. Failures only warn: history is a
// convenience, not part of the run.
func (m *migration) recordHistory(ctx context.Context, rep *report.Report, reportPath string, logger *slog.Logger) {
	path := m.cfg.Migration.HistoryDB
	if path == "" {
		return
	}
	store, err := history.Open(ctx, path)
	if err != nil {
		logger.Warn("open run history failed", "path", path, "error", err)
		return
	}
	defer func() { _ = store.Close() }()
	if err := store.Record(ctx, history.FromReport(rep, reportPath)); err != nil {
		logger.Warn("record run history failed", "error", err)
	}
}

// runOutcome turns the report outcome into the command's error.
func runOutcome(ctx context.Context, rep *report.Report) error {
	if ctx.Err() != nil {
		return migerrors.ErrInterrupted().WithCause(ctx.Err())
	}
	switch rep.Outcome() {
	case report.OutcomeFailed:
		err := migerrors.ErrPhaseFailed(failedPhase(rep))
		err.Why = rep.Summary.OrchestrationError
		return err
	case report.OutcomeCompletedWithErrors:
		return migerrors.ErrRunCompletedWithErrors(rep.Summary.TotalErrors)
	}
	return nil
}

func failedPhase(rep *report.Report) string {
	for _, pe := range rep.Phases {
		if pe.State == state.StatusFailed {
			return string(pe.Key)
		}
	}
	return "orchestration"
}
