// Package history records a summary of every migration run in a local
// SQLite database.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/9liver/confluence-markdown-migrator-sub001/internal/report"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// timeLayout has fixed-width fractions so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("run not found")

// Run is one recorded migration run.
type Run struct {
	ID              string    `json:"id"`
	FinishedAt      time.Time `json:"finished_at"`
	Workflow        string    `json:"workflow"`
	ExportTarget    string    `json:"export_target"`
	Outcome         string    `json:"outcome"`
	DryRun          bool      `json:"dry_run"`
	DurationSeconds float64   `json:"duration_seconds"`
	Spaces          int       `json:"spaces"`
	Pages           int       `json:"pages"`
	PhasesCompleted int       `json:"phases_completed"`
	PhasesFailed    int       `json:"phases_failed"`
	TotalErrors     int       `json:"total_errors"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	ReportPath      string    `json:"report_path,omitempty"`
}

// FromReport summarizes rep as a Run. reportPath is where the JSON report
// was written, if anywhere.
func FromReport(rep *report.Report, reportPath string) Run {
	s := rep.Summary
	return Run{
		ID:              rep.RunID,
		FinishedAt:      rep.GeneratedAt,
		Workflow:        rep.Workflow,
		ExportTarget:    s.ExportTarget,
		Outcome:         string(rep.Outcome()),
		DryRun:          s.DryRun,
		DurationSeconds: s.DurationSeconds,
		Spaces:          s.Spaces,
		Pages:           s.Pages,
		PhasesCompleted: s.PhasesCompleted,
		PhasesFailed:    s.PhasesFailed,
		TotalErrors:     s.TotalErrors,
		ErrorMessage:    s.OrchestrationError,
		ReportPath:      reportPath,
	}
}

// Store reads and writes run history.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path and applies
// pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, `
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS _migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT DEFAULT (datetime('now'))
		)
	`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := s.db.QueryContext(ctx, "SELECT version FROM _migrations")
	if err != nil {
		return fmt.Errorf("query migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan migration version: %w", err)
		}
		applied[v] = true
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate migrations: %w", err)
	}

	entries, err := schemaFS.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("read schema dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "history_") && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		var version int
		_, _ = fmt.Sscanf(strings.TrimPrefix(name, "history_"), "%d", &version)
		if applied[version] {
			continue
		}
		content, err := schemaFS.ReadFile("schema/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO _migrations (version) VALUES (?)", version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}
	return nil
}

// Record stores run, replacing any earlier record with the same id.
func (s *Store) Record(ctx context.Context, run Run) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, finished_at, workflow, export_target, outcome, dry_run,
			duration_seconds, spaces, pages, phases_completed, phases_failed,
			total_errors, error_message, report_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at = excluded.finished_at,
			workflow = excluded.workflow,
			export_target = excluded.export_target,
			outcome = excluded.outcome,
			dry_run = excluded.dry_run,
			duration_seconds = excluded.duration_seconds,
			spaces = excluded.spaces,
			pages = excluded.pages,
			phases_completed = excluded.phases_completed,
			phases_failed = excluded.phases_failed,
			total_errors = excluded.total_errors,
			error_message = excluded.error_message,
			report_path = excluded.report_path`,
		run.ID, run.FinishedAt.UTC().Format(timeLayout), run.Workflow, run.ExportTarget,
		run.Outcome, run.DryRun, run.DurationSeconds, run.Spaces, run.Pages,
		run.PhasesCompleted, run.PhasesFailed, run.TotalErrors, run.ErrorMessage, run.ReportPath)
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	return nil
}

const selectRuns = `
	SELECT id, finished_at, workflow, export_target, outcome, dry_run,
		duration_seconds, spaces, pages, phases_completed, phases_failed,
		total_errors, error_message, report_path
	FROM runs`

// List returns the most recent runs, newest first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	query := selectRuns + " ORDER BY finished_at DESC, id"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Get returns the run with id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, selectRuns+" WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run      Run
		finished string
	)
	err := sc.Scan(&run.ID, &finished, &run.Workflow, &run.ExportTarget, &run.Outcome, &run.DryRun,
		&run.DurationSeconds, &run.Spaces, &run.Pages, &run.PhasesCompleted, &run.PhasesFailed,
		&run.TotalErrors, &run.ErrorMessage, &run.ReportPath)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return run, err
		}
		return run, fmt.Errorf("scan run: %w", err)
	}
	run.FinishedAt, err = time.Parse(timeLayout, finished)
	if err != nil {
		return run, fmt.Errorf("parse finished_at of %s: %w", run.ID, err)
	}
	return run, nil
}
