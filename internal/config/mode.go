package config

import "fmt"

// Workflow selects which stages a run performs.
type Workflow string

const (
	// WorkflowExportOnly fetches, converts and exports to markdown files.
	WorkflowExportOnly Workflow = "export_only"
	// WorkflowImportOnly fetches and imports straight into the wiki targets.
	WorkflowImportOnly Workflow = "import_only"
	// WorkflowExportThenImport exports to markdown, then imports into wikis.
	WorkflowExportThenImport Workflow = "export_then_import"
	// WorkflowImportFromMarkdown reads a previous export back and imports it.
	WorkflowImportFromMarkdown Workflow = "import_from_markdown"
)

// AllWorkflows lists every supported workflow.
var AllWorkflows = []Workflow{
	WorkflowExportOnly,
	WorkflowImportOnly,
	WorkflowExportThenImport,
	WorkflowImportFromMarkdown,
}

// Valid reports whether w is a supported workflow.
func (w Workflow) Valid() bool {
	for _, known := range AllWorkflows {
		if w == known {
			return true
		}
	}
	return false
}

// NeedsSource reports whether the workflow fetches from Confluence.
func (w Workflow) NeedsSource() bool {
	return w != WorkflowImportFromMarkdown
}

// ExportTarget selects where content ends up.
type ExportTarget string

const (
	TargetMarkdownFiles ExportTarget = "markdown_files"
	TargetWikiJS        ExportTarget = "wikijs"
	TargetBookStack     ExportTarget = "bookstack"
	TargetBothWikis     ExportTarget = "both_wikis"
)

// AllTargets lists every supported export target.
var AllTargets = []ExportTarget{
	TargetMarkdownFiles,
	TargetWikiJS,
	TargetBookStack,
	TargetBothWikis,
}

// Valid reports whether t is a supported export target.
func (t ExportTarget) Valid() bool {
	for _, known := range AllTargets {
		if t == known {
			return true
		}
	}
	return false
}

// IncludesWikiJS reports whether t writes to Wiki.js.
func (t ExportTarget) IncludesWikiJS() bool {
	return t == TargetWikiJS || t == TargetBothWikis
}

// IncludesBookStack reports whether t writes to BookStack.
func (t ExportTarget) IncludesBookStack() bool {
	return t == TargetBookStack || t == TargetBothWikis
}

// IsWiki reports whether t targets at least one wiki.
func (t ExportTarget) IsWiki() bool {
	return t.IncludesWikiJS() || t.IncludesBookStack()
}

// ParseWorkflow converts a string to a Workflow.
func ParseWorkflow(s string) (Workflow, error) {
	w := Workflow(s)
	if !w.Valid() {
		return "", fmt.Errorf("unknown workflow %q (valid: %v)", s, AllWorkflows)
	}
	return w, nil
}

// ParseExportTarget converts a string to an ExportTarget.
func ParseExportTarget(s string) (ExportTarget, error) {
	t := ExportTarget(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown export target %q (valid: %v)", s, AllTargets)
	}
	return t, nil
}
