package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/9liver/confluence-markdown-migrator-sub001/internal/config"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/phase"
)

func TestSelectPlan(t *testing.T) {
	tests := []struct {
		name     string
		workflow config.Workflow
		target   config.ExportTarget
		verify   bool
		want     []phase.Key
		warns    int
	}{
		{
			name:     "export only to files",
			workflow: config.WorkflowExportOnly,
			target:   config.TargetMarkdownFiles,
			verify:   true,
			want:     []phase.Key{phase.KeyVerification, phase.KeyConversion, phase.KeyMarkdownExport},
		},
		{
			name:     "export only without verification",
			workflow: config.WorkflowExportOnly,
			target:   config.TargetMarkdownFiles,
			want:     []phase.Key{phase.KeyConversion, phase.KeyMarkdownExport},
		},
		{
			name:     "export only to wiki warns",
			workflow: config.WorkflowExportOnly,
			target:   config.TargetWikiJS,
			want:     []phase.Key{phase.KeyConversion},
			warns:    1,
		},
		{
			name:     "import only to both wikis",
			workflow: config.WorkflowImportOnly,
			target:   config.TargetBothWikis,
			verify:   true,
			want:     []phase.Key{phase.KeyWikiJSImport, phase.KeyBookStackImport},
		},
		{
			name:     "export then import",
			workflow: config.WorkflowExportThenImport,
			target:   config.TargetBookStack,
			verify:   true,
			want: []phase.Key{
				phase.KeyVerification, phase.KeyConversion,
				phase.KeyMarkdownExport, phase.KeyBookStackImport,
			},
		},
		{
			name:     "import from markdown never verifies",
			workflow: config.WorkflowImportFromMarkdown,
			target:   config.TargetWikiJS,
			verify:   true,
			want:     []phase.Key{phase.KeyMarkdownImport, phase.KeyWikiJSImport},
		},
		{
			name:     "import from markdown to files",
			workflow: config.WorkflowImportFromMarkdown,
			target:   config.TargetMarkdownFiles,
			want:     []phase.Key{phase.KeyMarkdownImport},
			warns:    1,
		},
		{
			name:     "unknown workflow",
			workflow: "sideways",
			target:   config.TargetWikiJS,
			warns:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := SelectPlan(tt.workflow, tt.target, tt.verify)
			assert.Equal(t, tt.want, p.Keys)
			assert.Len(t, p.Warnings, tt.warns)
		})
	}
}

func TestPlanContains(t *testing.T) {
	p := SelectPlan(config.WorkflowExportThenImport, config.TargetWikiJS, false)
	assert.True(t, p.Contains(phase.KeyMarkdownExport))
	assert.False(t, p.Contains(phase.KeyVerification))
}
