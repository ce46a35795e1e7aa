package report

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/9liver/confluence-markdown-migrator-sub001/internal/state"
)

// maxConsoleErrors caps the error list printed to the console; the JSON
// report always carries every entry.
const maxConsoleErrors = 20

// ColorEnabled reports whether f is a terminal that should get colour.
func ColorEnabled(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type palette struct {
	title, ok, warn, bad, dim lipgloss.Style
	color                     bool
}

func newPalette(color bool) palette {
	if !color {
		plain := lipgloss.NewStyle()
		return palette{title: plain, ok: plain, warn: plain, bad: plain, dim: plain}
	}
	return palette{
		title: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		ok:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		warn:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		bad:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		dim:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		color: true,
	}
}

func (p palette) render(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

// RenderConsole writes a human-readable view of the report to w.
func (r *Report) RenderConsole(w io.Writer, color bool) error {
	p := newPalette(color)
	var b strings.Builder

	b.WriteString(p.render(p.title, "Migration Report"))
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", 60))
	b.WriteString("\n")

	s := r.Summary
	switch r.Outcome() {
	case OutcomeSuccess:
		fmt.Fprintf(&b, "Status:        %s\n", p.render(p.ok, "success"))
	case OutcomeCompletedWithErrors:
		fmt.Fprintf(&b, "Status:        %s\n", p.render(p.warn, "completed with errors"))
	default:
		fmt.Fprintf(&b, "Status:        %s\n", p.render(p.bad, "failed"))
	}
	if r.Workflow != "" {
		fmt.Fprintf(&b, "Workflow:      %s\n", r.Workflow)
	}
	if s.ExportTarget != "" {
		fmt.Fprintf(&b, "Target:        %s\n", s.ExportTarget)
	}
	if s.DryRun {
		fmt.Fprintf(&b, "Mode:          %s\n", p.render(p.warn, "dry run"))
	}
	fmt.Fprintf(&b, "Duration:      %s\n", s.DurationFormatted)
	fmt.Fprintf(&b, "Spaces:        %d\n", s.Spaces)
	fmt.Fprintf(&b, "Pages:         %d\n", s.Pages)
	fmt.Fprintf(&b, "Attachments:   %d\n", s.Attachments)
	fmt.Fprintf(&b, "Errors:        %d\n", s.TotalErrors)
	fmt.Fprintf(&b, "Warnings:      %d\n", s.TotalWarnings)
	fmt.Fprintf(&b, "Success rate:  %.1f%%\n", s.SuccessRate*100)
	if s.OrchestrationError != "" {
		fmt.Fprintf(&b, "Failure:       %s\n", p.render(p.bad, s.OrchestrationError))
	}
	if r.Fallback {
		fmt.Fprintf(&b, "%s\n", p.render(p.warn, "Report generation failed; this is a minimal report."))
	}

	if len(r.Phases) > 0 {
		b.WriteString("\nPhases\n")
		for _, pe := range r.Phases {
			fmt.Fprintf(&b, "  %s %-24s %s\n", p.phaseIcon(pe), pe.Key, p.render(p.dim, phaseDetail(pe)))
		}
	}

	if r.Integrity != nil {
		is := r.Integrity.Summary
		b.WriteString("\nIntegrity\n")
		fmt.Fprintf(&b, "  score %.2f, %d issue(s), %d/%d checks passed\n",
			is.Score, is.TotalIssues, is.ChecksPassed, is.ChecksPerformed)
		for _, rec := range r.Integrity.Recommendations {
			fmt.Fprintf(&b, "  - %s\n", rec)
		}
	}

	if len(r.Spaces) > 0 {
		b.WriteString("\nSpaces\n")
		for _, sp := range r.Spaces {
			fmt.Fprintf(&b, "  %-12s %4d page(s) %4d converted %4d partial %4d failed\n",
				sp.Key, sp.Pages, sp.Converted, sp.Partial, sp.Failed)
		}
	}

	if rb := r.Rollback; rb != nil && rb.Attempted {
		b.WriteString("\nRollback\n")
		for _, o := range rb.Outcomes {
			if o.Succeeded() {
				fmt.Fprintf(&b, "  %s %s: %d item(s) removed\n", p.render(p.ok, "✓"), o.Component, o.Stats.Total())
			} else {
				fmt.Fprintf(&b, "  %s %s: %s\n", p.render(p.bad, "✗"), o.Component, o.Error)
			}
		}
		for _, name := range rb.Preserved {
			fmt.Fprintf(&b, "  - %s preserved\n", name)
		}
	}

	if len(r.Warnings) > 0 {
		b.WriteString("\nWarnings\n")
		for _, wmsg := range r.Warnings {
			fmt.Fprintf(&b, "  %s %s\n", p.render(p.warn, "!"), wmsg)
		}
	}

	if len(r.Errors) > 0 {
		b.WriteString("\nErrors\n")
		for i, e := range r.Errors {
			if i == maxConsoleErrors {
				fmt.Fprintf(&b, "  ... and %d more (see JSON report)\n", len(r.Errors)-maxConsoleErrors)
				break
			}
			target := e.PageTitle
			if target == "" {
				target = e.PageID
			}
			if target != "" {
				fmt.Fprintf(&b, "  [%s] %s: %s\n", e.Phase, target, e.Message)
			} else {
				fmt.Fprintf(&b, "  [%s] %s\n", e.Phase, e.Message)
			}
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func (p palette) phaseIcon(pe PhaseEntry) string {
	switch {
	case pe.State == state.StatusFailed || pe.Failed:
		return p.render(p.bad, "✗")
	case pe.State == state.StatusSkippedResumed:
		return p.render(p.dim, "↷")
	case pe.State == state.StatusPending:
		return p.render(p.dim, "·")
	case pe.ErrorCount > 0:
		return p.render(p.warn, "!")
	default:
		return p.render(p.ok, "✓")
	}
}

func phaseDetail(pe PhaseEntry) string {
	parts := []string{string(pe.State)}
	if pe.Description != "" {
		parts = append(parts, pe.Description)
	}
	if pe.Error != "" && pe.Description == "" {
		parts = append(parts, pe.Error)
	}
	return strings.Join(parts, ": ")
}
