package orchestrator

import (
	"fmt"

	"github.com/9liver/confluence-markdown-migrator-sub001/internal/config"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/phase"
)

// Plan is the ordered list of phases a run executes.
type Plan struct {
	Workflow config.Workflow
	Target   config.ExportTarget
	Keys     []phase.Key
	Warnings []string
}

// Contains reports whether k is part of the plan.
func (p Plan) Contains(k phase.Key) bool {
	for _, key := range p.Keys {
		if key == k {
			return true
		}
	}
	return false
}

// SelectPlan maps a workflow and export target to the phases to run.
// Verification is included only when verify is set and the workflow starts
// from Confluence content.
func SelectPlan(wf config.Workflow, target config.ExportTarget, verify bool) Plan {
	p := Plan{Workflow: wf, Target: target}

	wikiImports := func() {
		if target.IncludesWikiJS() {
			p.Keys = append(p.Keys, phase.KeyWikiJSImport)
		}
		if target.IncludesBookStack() {
			p.Keys = append(p.Keys, phase.KeyBookStackImport)
		}
		if !target.IsWiki() {
			p.Warnings = append(p.Warnings,
				fmt.Sprintf("workflow %s requires a wiki target, got %q; no import will run", wf, target))
		}
	}

	switch wf {
	case config.WorkflowExportOnly:
		if verify {
			p.Keys = append(p.Keys, phase.KeyVerification)
		}
		p.Keys = append(p.Keys, phase.KeyConversion)
		if target == config.TargetMarkdownFiles {
			p.Keys = append(p.Keys, phase.KeyMarkdownExport)
		} else {
			p.Warnings = append(p.Warnings,
				fmt.Sprintf("export_only workflow with wiki target %q performs no import", target))
		}
	case config.WorkflowImportOnly:
		wikiImports()
	case config.WorkflowExportThenImport:
		if verify {
			p.Keys = append(p.Keys, phase.KeyVerification)
		}
		p.Keys = append(p.Keys, phase.KeyConversion, phase.KeyMarkdownExport)
		wikiImports()
	case config.WorkflowImportFromMarkdown:
		p.Keys = append(p.Keys, phase.KeyMarkdownImport)
		wikiImports()
	default:
		p.Warnings = append(p.Warnings, fmt.Sprintf("unknown workflow %q; nothing to do", wf))
	}
	return p
}
