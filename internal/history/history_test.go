package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/9liver/confluence-markdown-migrator-sub001/internal/report"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestRecordAndList(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"run-a", "run-b", "run-c"} {
		require.NoError(t, s.Record(ctx, Run{
			ID:         id,
			FinishedAt: base.Add(time.Duration(i) * time.Minute),
			Workflow:   "export_only",
			Outcome:    "success",
			Pages:      10 * (i + 1),
		}))
	}

	runs, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-c", runs[0].ID, "newest first")
	assert.Equal(t, "run-b", runs[1].ID)
	assert.Equal(t, 30, runs[0].Pages)
	assert.True(t, runs[0].FinishedAt.Equal(base.Add(2*time.Minute)))

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRecordReplacesSameID(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, Run{ID: "r1", Outcome: "failed", DryRun: true}))
	require.NoError(t, s.Record(ctx, Run{ID: "r1", Outcome: "success", TotalErrors: 2, ErrorMessage: "x"}))

	run, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "success", run.Outcome)
	assert.False(t, run.DryRun)
	assert.Equal(t, 2, run.TotalErrors)
	assert.False(t, run.FinishedAt.IsZero())

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRecordRequiresID(t *testing.T) {
	s, _ := openTestStore(t)
	assert.Error(t, s.Record(context.Background(), Run{Outcome: "success"}))
}

func TestGetNotFound(t *testing.T) {
	s, _ := openTestStore(t)
	_, err := s.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestReopenKeepsRuns(t *testing.T) {
	s, path := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Record(ctx, Run{ID: "keep", Outcome: "success"}))
	require.NoError(t, s.Close())

	s2, err := Open(ctx, path)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	run, err := s2.Get(ctx, "keep")
	require.NoError(t, err)
	assert.Equal(t, "success", run.Outcome)
}

func TestFromReport(t *testing.T) {
	rep := &report.Report{
		RunID:       "abc",
		Workflow:    "export_then_import",
		GeneratedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Summary: report.Summary{
			Spaces:              2,
			Pages:               40,
			ExportTarget:        "wikijs",
			DurationSeconds:     12.5,
			PhasesCompleted:     3,
			PhasesFailed:        1,
			TotalErrors:         4,
			OrchestrationFailed: true,
			OrchestrationError:  "wikijs_import failed",
		},
	}

	run := FromReport(rep, "out/report.json")
	assert.Equal(t, "abc", run.ID)
	assert.Equal(t, "failed", run.Outcome)
	assert.Equal(t, "wikijs", run.ExportTarget)
	assert.Equal(t, 40, run.Pages)
	assert.Equal(t, "wikijs_import failed", run.ErrorMessage)
	assert.Equal(t, "out/report.json", run.ReportPath)
}
