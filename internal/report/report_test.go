package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/9liver/confluence-markdown-migrator-sub001/internal/model"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/phase"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/rollback"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/state"
)

func threePageTree() *model.Tree {
	tree := model.NewTree()
	sp := &model.Space{Key: "DOC", Name: "Docs"}
	a := &model.Page{ID: "1", Title: "A", Conversion: model.ConversionResult{Status: model.ConversionSuccess}}
	sp.AddPage(a)
	a.AddChild(&model.Page{ID: "2", Title: "B", Conversion: model.ConversionResult{Status: model.ConversionPartial}})
	sp.AddPage(&model.Page{ID: "3", Title: "C", Conversion: model.ConversionResult{Status: model.ConversionFailed, Errors: []string{"boom"}}})
	tree.AddSpace(sp)
	return tree
}

func TestGenerateTotals(t *testing.T) {
	tree := threePageTree()
	results := phase.NewResults()
	conv := phase.NewConversionResult()
	for _, p := range tree.AllPages() {
		conv.RecordPage(p)
	}
	export := phase.NewExportResult("out")
	export.PagesExported = 3
	export.AddPageError("2", "B", "write failed")
	require.NoError(t, results.Set(conv))
	require.NoError(t, results.Set(export))

	st := state.New([]phase.Key{phase.KeyConversion, phase.KeyMarkdownExport})
	require.NoError(t, st.CompletePhase(phase.KeyConversion))
	require.NoError(t, st.CompletePhase(phase.KeyMarkdownExport))

	rep, err := NewGenerator(nil).Generate(Input{
		Workflow:     "export_only",
		ExportTarget: "markdown_files",
		Tree:         tree,
		Results:      results,
		Phases:       st.Phases(),
		Duration:     125 * time.Second,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Summary.Spaces)
	assert.Equal(t, 3, rep.Summary.Pages)
	assert.Equal(t, 2, rep.Summary.TotalErrors)
	assert.Equal(t, results.TotalErrors(), rep.Summary.TotalErrors)
	assert.Equal(t, 1, rep.Summary.TotalWarnings)
	assert.InDelta(t, 1.0/3.0, rep.Summary.SuccessRate, 0.0001)
	assert.Equal(t, "2m 5s", rep.Summary.DurationFormatted)
	assert.Equal(t, 2, rep.Summary.PhasesCompleted)
	assert.Len(t, rep.Errors, 2)
	assert.Equal(t, OutcomeCompletedWithErrors, rep.Outcome())

	require.Len(t, rep.Spaces, 1)
	assert.Equal(t, SpaceBreakdown{Key: "DOC", Name: "Docs", Pages: 3, Converted: 1, Partial: 1, Failed: 1}, rep.Spaces[0])
	require.Len(t, rep.Phases, 2)
	assert.Equal(t, "3 processed, 1 succeeded, 1 partial, 1 failed", rep.Phases[0].Description)
}

func TestGenerateEmptyInput(t *testing.T) {
	rep, err := NewGenerator(nil).Generate(Input{})
	require.NoError(t, err)

	assert.Equal(t, 0, rep.Summary.TotalErrors)
	assert.Equal(t, 1.0, rep.Summary.SuccessRate)
	assert.Equal(t, OutcomeSuccess, rep.Outcome())
}

func TestGenerateToleratesMalformedResult(t *testing.T) {
	results := phase.NewResults()
	var broken *phase.ExportResult
	require.NoError(t, results.Set(broken))
	good := phase.NewConversionResult()
	good.RecordPage(&model.Page{ID: "x"})
	require.NoError(t, results.Set(good))

	rep, err := NewGenerator(nil).Generate(Input{Results: results})
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Summary.TotalErrors)
	require.Len(t, rep.Phases, 2)
	assert.Equal(t, 0, rep.Phases[0].ErrorCount)
}

func TestGenerateOrchestrationFailure(t *testing.T) {
	results := phase.NewResults()
	failed, err := phase.NewFailed(phase.KeyWikiJSImport, errors.New("401 unauthorized"))
	require.NoError(t, err)
	require.NoError(t, results.Set(failed))

	st := state.New([]phase.Key{phase.KeyWikiJSImport})
	require.NoError(t, st.FailPhase(phase.KeyWikiJSImport, errors.New("401 unauthorized")))

	rb := &rollback.Summary{Attempted: true, Outcomes: []rollback.Outcome{{Component: "wikijs"}}}
	rep, err := NewGenerator(nil).Generate(Input{
		Results:  results,
		Phases:   st.Phases(),
		Err:      errors.New("phase wikijs_import failed: 401 unauthorized"),
		Rollback: rb,
	})
	require.NoError(t, err)

	assert.True(t, rep.Summary.OrchestrationFailed)
	assert.Equal(t, OutcomeFailed, rep.Outcome())
	assert.Equal(t, 1, rep.Summary.PhasesFailed)
	assert.True(t, rep.Phases[0].Failed)
	assert.Same(t, rb, rep.Rollback)
}

func TestIntegrityFromTree(t *testing.T) {
	tree := threePageTree()
	tree.Integrity = &model.IntegrityReport{Summary: model.IntegritySummary{Score: 0.75}}

	rep, err := NewGenerator(nil).Generate(Input{Tree: tree})
	require.NoError(t, err)
	assert.Same(t, tree.Integrity, rep.Integrity)
}

func TestFallback(t *testing.T) {
	rep := Fallback(Input{Workflow: "import_only", Err: errors.New("boom")}, errors.New("renderer exploded"))

	assert.True(t, rep.Fallback)
	assert.True(t, rep.Summary.ReportGenerationFailed)
	assert.True(t, rep.Summary.OrchestrationFailed)
	assert.Equal(t, "boom", rep.Summary.OrchestrationError)
	assert.Equal(t, 1, rep.Summary.TotalErrors)
	assert.Equal(t, OutcomeFailed, rep.Outcome())
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{1500 * time.Millisecond, "1.5s"},
		{12300 * time.Millisecond, "12.3s"},
		{125 * time.Second, "2m 5s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h 2m 3s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.d))
	}
}

func TestWriteJSON(t *testing.T) {
	rep, err := NewGenerator(nil).Generate(Input{Tree: threePageTree(), ExportTarget: "markdown_files"})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "reports", "report.json")
	require.NoError(t, rep.WriteJSON(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	summary := decoded["summary"].(map[string]any)
	assert.Equal(t, "markdown_files", summary["export_target"])
	assert.Equal(t, float64(3), summary["pages"])
}

func TestRenderConsole(t *testing.T) {
	results := phase.NewResults()
	conv := phase.NewConversionResult()
	conv.RecordPage(&model.Page{ID: "9", Title: "Broken", Conversion: model.ConversionResult{Status: model.ConversionFailed, Errors: []string{"bad macro"}}})
	require.NoError(t, results.Set(conv))
	st := state.New([]phase.Key{phase.KeyVerification, phase.KeyConversion})
	require.NoError(t, st.SkipPhase(phase.KeyVerification))
	require.NoError(t, st.CompletePhase(phase.KeyConversion))

	rep, err := NewGenerator(nil).Generate(Input{
		Workflow: "export_only",
		Results:  results,
		Phases:   st.Phases(),
		Warnings: []string{"export target wikijs ignored"},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, rep.RenderConsole(&buf, false))
	out := buf.String()

	assert.Contains(t, out, "Migration Report")
	assert.Contains(t, out, "completed with errors")
	assert.Contains(t, out, "skipped_resumed")
	assert.Contains(t, out, "[content_conversion] Broken: bad macro")
	assert.Contains(t, out, "export target wikijs ignored")
}
