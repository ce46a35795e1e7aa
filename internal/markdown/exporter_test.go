package markdown

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/9liver/confluence-markdown-migrator-sub001/internal/model"
)

func sampleTree() *model.Tree {
	tree := model.NewTree()
	space := &model.Space{Key: "DOCS", Name: "Documentation", Description: "Team docs"}
	home := &model.Page{ID: "1", Title: "Home Page", Markdown: "# Home\n", Labels: []string{"start"},
		Conversion: model.ConversionResult{Status: model.ConversionSuccess}}
	space.AddPage(home)
	home.AddChild(&model.Page{ID: "2", Title: "Install Guide!", Markdown: "Run it.\n",
		Conversion: model.ConversionResult{Status: model.ConversionSuccess},
		Attachments: []*model.Attachment{{ID: "a1", Title: "Diagram.PNG", MediaType: "image/png"}}})
	home.AddChild(&model.Page{ID: "3", Title: "Broken", Conversion: model.ConversionResult{Status: model.ConversionFailed}})
	tree.AddSpace(space)
	return tree
}

func fetchStatic(body string) AttachmentFetcher {
	return func(context.Context, *model.Attachment) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(body)), nil
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"Home Page":              "home-page",
		"Install Guide!":         "install-guide",
		"  --Weird__Name--  ":    "weird__name",
		"":                       "untitled",
		"!!!":                    "untitled",
		"Ünïcode Title":          "n-code-title",
		strings.Repeat("a", 150): strings.Repeat("a", 100),
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeFilename(in), "SanitizeFilename(%q)", in)
	}
}

func TestExportTreeLayout(t *testing.T) {
	out := t.TempDir()
	exp := NewExporter(ExportOptions{OutputDirectory: out, CreateIndexFiles: true, FetchAttachment: fetchStatic("png")}, nil)

	stats, err := exp.ExportTree(context.Background(), sampleTree())
	require.NoError(t, err)

	assert.Equal(t, 3, stats.PagesExported, "pages that failed conversion are still exported")
	assert.Equal(t, 1, stats.AttachmentsSaved)
	assert.Equal(t, 1, stats.IndexFiles)
	assert.Empty(t, stats.Errors)

	assert.FileExists(t, filepath.Join(out, "DOCS", "home-page", "home-page.md"))
	assert.FileExists(t, filepath.Join(out, "DOCS", "home-page", "install-guide.md"))
	assert.FileExists(t, filepath.Join(out, "DOCS", "home-page", "broken.md"))
	assert.FileExists(t, filepath.Join(out, "DOCS", "_attachments", "2", "diagram.png"))

	index, err := os.ReadFile(filepath.Join(out, "DOCS", IndexFile))
	require.NoError(t, err)
	assert.Contains(t, string(index), "# Documentation (DOCS)")
	assert.Contains(t, string(index), "  - [Install Guide!](home-page/install-guide.md)")

	data, err := os.ReadFile(filepath.Join(out, "DOCS", "home-page", "install-guide.md"))
	require.NoError(t, err)
	fm, body, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "2", fm.ConfluencePageID)
	assert.Equal(t, "1", fm.ParentID)
	assert.Equal(t, "Documentation", fm.SpaceName)
	assert.Equal(t, 1, fm.HierarchyDepth)
	require.Len(t, fm.Attachments, 1)
	assert.Equal(t, "../_attachments/2/diagram.png", fm.Attachments[0].Path)
	assert.Equal(t, "Run it.\n", body)
}

func TestExportSkipsUnchanged(t *testing.T) {
	out := t.TempDir()
	opts := ExportOptions{OutputDirectory: out, SkipUnchanged: true}

	_, err := NewExporter(opts, nil).ExportTree(context.Background(), sampleTree())
	require.NoError(t, err)

	stats, err := NewExporter(opts, nil).ExportTree(context.Background(), sampleTree())
	require.NoError(t, err)
	assert.Zero(t, stats.PagesExported)
	assert.Equal(t, 3, stats.PagesUnchanged)
	assert.Zero(t, stats.FilesWritten)
}

func TestExportDryRunWritesNothing(t *testing.T) {
	out := filepath.Join(t.TempDir(), "export")
	stats, err := NewExporter(ExportOptions{OutputDirectory: out, DryRun: true, CreateIndexFiles: true}, nil).
		ExportTree(context.Background(), sampleTree())
	require.NoError(t, err)

	assert.True(t, stats.DryRun)
	assert.Equal(t, 3, stats.PagesExported)
	assert.Zero(t, stats.FilesWritten)
	assert.NoDirExists(t, out)
}

func TestExportAttachmentFailureIsPageError(t *testing.T) {
	out := t.TempDir()
	fetch := func(context.Context, *model.Attachment) (io.ReadCloser, error) {
		return nil, errors.New("403 forbidden")
	}
	stats, err := NewExporter(ExportOptions{OutputDirectory: out, FetchAttachment: fetch}, nil).
		ExportTree(context.Background(), sampleTree())
	require.NoError(t, err)

	require.Len(t, stats.Errors, 1)
	assert.Equal(t, "2", stats.Errors[0].PageID)
	assert.Contains(t, stats.Errors[0].Message, "403")
	assert.Equal(t, 3, stats.PagesExported)
}

func TestExportDuplicateTitlesGetDistinctFiles(t *testing.T) {
	out := t.TempDir()
	tree := model.NewTree()
	space := &model.Space{Key: "X"}
	space.AddPage(&model.Page{ID: "1", Title: "Notes"})
	space.AddPage(&model.Page{ID: "2", Title: "notes"})
	tree.AddSpace(space)

	_, err := NewExporter(ExportOptions{OutputDirectory: out}, nil).ExportTree(context.Background(), tree)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(out, "X", "notes.md"))
	assert.FileExists(t, filepath.Join(out, "X", "notes-2.md"))
}

func TestExporterRollback(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "export")
	require.NoError(t, os.MkdirAll(filepath.Join(out, "DOCS"), 0o755))
	keep := filepath.Join(out, "DOCS", "unrelated.txt")
	require.NoError(t, os.WriteFile(keep, []byte("mine"), 0o644))
	index := filepath.Join(out, "DOCS", IndexFile)
	require.NoError(t, os.WriteFile(index, []byte("old index"), 0o644))

	exp := NewExporter(ExportOptions{OutputDirectory: out, CreateIndexFiles: true}, nil)
	_, err := exp.ExportTree(context.Background(), sampleTree())
	require.NoError(t, err)

	stats, err := exp.Rollback(context.Background())
	require.NoError(t, err)
	assert.True(t, stats.Executed)
	assert.Equal(t, 3, stats.Deleted["files"])
	assert.Equal(t, 1, stats.Deleted["restored"])
	assert.Equal(t, 1, stats.Deleted["directories"])

	assert.NoDirExists(t, filepath.Join(out, "DOCS", "home-page"))
	assert.FileExists(t, keep)
	restored, err := os.ReadFile(index)
	require.NoError(t, err)
	assert.Equal(t, "old index", string(restored))

	again, err := exp.Rollback(context.Background())
	require.NoError(t, err)
	assert.Zero(t, again.Total(), "a second rollback has nothing left to undo")
}

func TestExportRequiresOutputDirectory(t *testing.T) {
	_, err := NewExporter(ExportOptions{}, nil).ExportTree(context.Background(), sampleTree())
	assert.Error(t, err)
}

func TestExportStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewExporter(ExportOptions{OutputDirectory: t.TempDir()}, nil).ExportTree(ctx, sampleTree())
	assert.ErrorIs(t, err, context.Canceled)
}
