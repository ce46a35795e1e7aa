// Package report merges phase results into the final migration report.
package report

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/9liver/confluence-markdown-migrator-sub001/internal/model"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/phase"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/rollback"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/state"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/util"
)

// Outcome classifies a finished run.
type Outcome string

const (
	OutcomeSuccess             Outcome = "success"
	OutcomeCompletedWithErrors Outcome = "completed_with_errors"
	OutcomeFailed              Outcome = "failed"
)

// Summary holds the headline totals of a run.
type Summary struct {
	Spaces                 int     `json:"spaces"`
	Pages                  int     `json:"pages"`
	Attachments            int     `json:"attachments"`
	ExportTarget           string  `json:"export_target"`
	DurationSeconds        float64 `json:"duration_seconds"`
	DurationFormatted      string  `json:"duration_formatted"`
	PhasesCompleted        int     `json:"phases_completed"`
	PhasesResumed          int     `json:"phases_resumed"`
	PhasesFailed           int     `json:"phases_failed"`
	TotalErrors            int     `json:"total_errors"`
	TotalWarnings          int     `json:"total_warnings"`
	SuccessRate            float64 `json:"success_rate"`
	DryRun                 bool    `json:"dry_run,omitempty"`
	OrchestrationFailed    bool    `json:"orchestration_failed"`
	OrchestrationError     string  `json:"orchestration_error,omitempty"`
	ReportGenerationFailed bool    `json:"report_generation_failed,omitempty"`
}

// PhaseEntry is the per-phase section of the report.
type PhaseEntry struct {
	Key             phase.Key    `json:"key"`
	State           state.Status `json:"state"`
	Failed          bool         `json:"failed"`
	ErrorCount      int          `json:"error_count"`
	Error           string       `json:"error,omitempty"`
	DurationSeconds float64      `json:"duration_seconds,omitempty"`
	Description     string       `json:"description,omitempty"`
	Result          phase.Result `json:"result,omitempty"`
}

// SpaceBreakdown is the per-space section of the report.
type SpaceBreakdown struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Pages       int    `json:"pages"`
	Attachments int    `json:"attachments"`
	Converted   int    `json:"converted"`
	Partial     int    `json:"partial"`
	Failed      int    `json:"failed"`
}

// Report is the canonical record of a run.
type Report struct {
	RunID       string                 `json:"run_id,omitempty"`
	Workflow    string                 `json:"workflow,omitempty"`
	GeneratedAt time.Time              `json:"generated_at"`
	Summary     Summary                `json:"summary"`
	Phases      []PhaseEntry           `json:"phases"`
	Integrity   *model.IntegrityReport `json:"integrity_report,omitempty"`
	Errors      []phase.ErrorEntry     `json:"errors,omitempty"`
	Warnings    []string               `json:"warnings,omitempty"`
	Spaces      []SpaceBreakdown       `json:"spaces,omitempty"`
	Rollback    *rollback.Summary      `json:"rollback,omitempty"`
	Fallback    bool                   `json:"fallback,omitempty"`
}

// Outcome classifies the run.
func (r *Report) Outcome() Outcome {
	switch {
	case r.Summary.OrchestrationFailed:
		return OutcomeFailed
	case r.Summary.TotalErrors > 0:
		return OutcomeCompletedWithErrors
	default:
		return OutcomeSuccess
	}
}

// WriteJSON writes the report to path as indented JSON.
func (r *Report) WriteJSON(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := util.WriteFileAtomic(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// Input is everything the generator may draw on. Any field may be empty.
type Input struct {
	RunID        string
	Workflow     string
	ExportTarget string
	DryRun       bool
	Tree         *model.Tree
	Results      *phase.Results
	Phases       []state.PhaseState
	Duration     time.Duration
	Integrity    *model.IntegrityReport
	Err          error
	Rollback     *rollback.Summary
	Warnings     []string
}

// Generator builds reports.
type Generator struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewGenerator creates a generator. A nil logger uses slog.Default().
func NewGenerator(logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{logger: logger, now: time.Now}
}

// WithClock replaces the time source.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate merges the input into a report. It never panics; an internal
// failure is returned as an error so the caller can fall back.
func (g *Generator) Generate(in Input) (rep *Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			rep = nil
			err = fmt.Errorf("report generation panicked: %v", r)
		}
	}()

	rep = &Report{
		RunID:       in.RunID,
		Workflow:    in.Workflow,
		GeneratedAt: g.now().UTC(),
		Integrity:   in.Integrity,
		Rollback:    in.Rollback,
		Warnings:    append([]string(nil), in.Warnings...),
	}
	if rep.Integrity == nil && in.Tree != nil {
		rep.Integrity = in.Tree.Integrity
	}

	s := &rep.Summary
	s.ExportTarget = in.ExportTarget
	s.DryRun = in.DryRun
	s.DurationSeconds = in.Duration.Seconds()
	s.DurationFormatted = FormatDuration(in.Duration)
	if in.Err != nil {
		s.OrchestrationFailed = true
		s.OrchestrationError = in.Err.Error()
	}

	partial := 0
	if in.Tree != nil {
		st := in.Tree.Statistics()
		s.Spaces, s.Pages, s.Attachments = st.Spaces, st.Pages, st.Attachments
		rep.Spaces, partial = spaceBreakdown(in.Tree)
	}

	rep.Phases = g.phaseEntries(in)
	for _, pe := range rep.Phases {
		switch pe.State {
		case state.StatusCompleted:
			s.PhasesCompleted++
		case state.StatusSkippedResumed:
			s.PhasesResumed++
		case state.StatusFailed:
			s.PhasesFailed++
		}
	}

	in.Results.Each(func(res phase.Result) {
		s.TotalErrors += errorCount(res)
		rep.Errors = append(rep.Errors, errorList(res)...)
	})

	s.TotalWarnings = partial + len(in.Warnings)
	s.SuccessRate = successRate(s.Pages, s.TotalErrors)
	return rep, nil
}

// phaseEntries lists planned phases in order, then any result that was not
// part of the plan.
func (g *Generator) phaseEntries(in Input) []PhaseEntry {
	var entries []PhaseEntry
	seen := make(map[phase.Key]bool)
	for _, ps := range in.Phases {
		pe := PhaseEntry{
			Key:             ps.Key,
			State:           ps.Status,
			Error:           ps.Error,
			DurationSeconds: ps.Duration().Seconds(),
		}
		if res, ok := in.Results.Get(ps.Key); ok {
			fillEntry(&pe, res)
		}
		if ps.Status == state.StatusFailed {
			pe.Failed = true
		}
		entries = append(entries, pe)
		seen[ps.Key] = true
	}
	for _, k := range in.Results.Keys() {
		if seen[k] {
			continue
		}
		res, _ := in.Results.Get(k)
		pe := PhaseEntry{Key: k, State: state.StatusCompleted}
		fillEntry(&pe, res)
		entries = append(entries, pe)
	}
	return entries
}

func fillEntry(pe *PhaseEntry, res phase.Result) {
	pe.Result = res
	pe.Failed = failed(res)
	pe.ErrorCount = errorCount(res)
	if d, ok := res.(phase.Describer); ok {
		pe.Description = describe(d)
	}
}

func spaceBreakdown(tree *model.Tree) ([]SpaceBreakdown, int) {
	var out []SpaceBreakdown
	partial := 0
	for _, key := range tree.SpaceKeys() {
		sp := tree.Spaces[key]
		if sp == nil {
			continue
		}
		b := SpaceBreakdown{Key: sp.Key, Name: sp.Name}
		sp.Walk(func(p *model.Page, _ int) bool {
			b.Pages++
			b.Attachments += len(p.Attachments)
			switch p.Conversion.Status {
			case model.ConversionSuccess:
				b.Converted++
			case model.ConversionPartial:
				b.Partial++
				partial++
			case model.ConversionFailed:
				b.Failed++
			}
			return true
		})
		out = append(out, b)
	}
	return out, partial
}

func successRate(pages, errs int) float64 {
	if pages <= 0 {
		return 1.0
	}
	ok := pages - errs
	if ok < 0 {
		ok = 0
	}
	return float64(ok) / float64(pages)
}

// The helpers below shield the generator from malformed results, such as
// typed nil pointers, by treating them as zero.

func errorCount(res phase.Result) (n int) {
	defer func() {
		if recover() != nil {
			n = 0
		}
	}()
	return res.ErrorCount()
}

func errorList(res phase.Result) (list []phase.ErrorEntry) {
	defer func() {
		if recover() != nil {
			list = nil
		}
	}()
	return res.ErrorList()
}

func failed(res phase.Result) (f bool) {
	defer func() {
		if recover() != nil {
			f = false
		}
	}()
	return res.Failed()
}

func describe(d phase.Describer) (s string) {
	defer func() {
		if recover() != nil {
			s = ""
		}
	}()
	return d.Describe()
}

// Fallback builds a minimal report by hand when Generate fails.
func Fallback(in Input, cause error) *Report {
	rep := &Report{
		RunID:       in.RunID,
		Workflow:    in.Workflow,
		GeneratedAt: time.Now().UTC(),
		Fallback:    true,
		Rollback:    in.Rollback,
	}
	rep.Summary.ExportTarget = in.ExportTarget
	rep.Summary.DurationSeconds = in.Duration.Seconds()
	rep.Summary.DurationFormatted = FormatDuration(in.Duration)
	rep.Summary.ReportGenerationFailed = true
	rep.Summary.SuccessRate = 0
	if in.Err != nil {
		rep.Summary.OrchestrationFailed = true
		rep.Summary.OrchestrationError = in.Err.Error()
	}
	if cause != nil {
		rep.Errors = []phase.ErrorEntry{{Phase: "report", Message: cause.Error()}}
		rep.Summary.TotalErrors = 1
	}
	return rep
}

// FormatDuration renders d as "12.3s", "2m 5s" or "1h 2m 3s".
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	total := int(d.Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	return fmt.Sprintf("%dm %ds", m, s)
}
