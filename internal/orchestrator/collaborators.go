package orchestrator

import (
	"context"

	"github.com/9liver/confluence-markdown-migrator-sub001/internal/bookstack"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/markdown"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/model"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/rollback"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/wikijs"
)

// Converter turns a page's Confluence storage content into markdown,
// setting page.Markdown and page.Conversion.
type Converter interface {
	ConvertPage(ctx context.Context, page *model.Page) error
}

// Verifier checks a tree for integrity problems before conversion.
type Verifier interface {
	Verify(ctx context.Context, tree *model.Tree) (*model.IntegrityReport, error)
}

// Exporter writes a converted tree to a markdown directory.
type Exporter interface {
	rollback.Rollbacker
	ExportTree(ctx context.Context, tree *model.Tree) (*markdown.ExportStats, error)
}

// MarkdownReader rebuilds a tree from a markdown directory.
type MarkdownReader interface {
	ReadDirectory(ctx context.Context, dir string) (*model.Tree, error)
	Stats() markdown.ReadStats
}

// WikiJSImporter writes pages into Wiki.js.
type WikiJSImporter interface {
	rollback.Rollbacker
	ImportPages(ctx context.Context, selected []string, dryRun bool) (*wikijs.ImportStats, error)
}

// BookStackImporter writes pages into BookStack.
type BookStackImporter interface {
	rollback.Rollbacker
	ImportPages(ctx context.Context, selected []string, dryRun bool) (*bookstack.ImportStats, error)
}

// Collaborators supplies the components phases delegate to. Side-effecting
// components are built lazily through factories so a run only constructs
// what its plan executes; only constructed components are rolled back.
type Collaborators struct {
	Converter Converter
	Verifier  Verifier
	Reader    MarkdownReader

	NewExporter  func() (Exporter, error)
	NewWikiJS    func(tree *model.Tree) (WikiJSImporter, error)
	NewBookStack func(tree *model.Tree) (BookStackImporter, error)
}
