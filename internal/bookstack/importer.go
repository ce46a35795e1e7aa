package bookstack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/9liver/confluence-markdown-migrator-sub001/internal/model"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/rollback"
)

// Item kinds, in the order Rollback deletes them.
const (
	KindPages    = "pages"
	KindChapters = "chapters"
	KindBooks    = "books"
	KindShelves  = "shelves"
)

var rollbackOrder = []string{KindPages, KindChapters, KindBooks, KindShelves}

// API is the part of Client the importer uses.
type API interface {
	CreateShelf(ctx context.Context, name string, books []int) (int, error)
	CreateBook(ctx context.Context, name, description string) (int, error)
	CreateChapter(ctx context.Context, bookID int, name, description string, priority int) (int, error)
	CreatePage(ctx context.Context, in PageInput) (int, error)
	UploadAttachment(ctx context.Context, pageID int, name, localPath string) (int, error)
	Delete(ctx context.Context, kind string, id int) error
}

// Options configures an Importer.
type Options struct {
	// ShelfName puts every created book on a new shelf. Empty creates none.
	ShelfName string
	// UploadWorkers bounds concurrent attachment uploads per page (default: 3)
	UploadWorkers   int
	PreservePageIDs bool
}

// ImportStats summarizes one ImportPages call.
type ImportStats struct {
	Shelves  int               `json:"shelves"`
	Books    int               `json:"books"`
	Chapters int               `json:"chapters"`
	Pages    int               `json:"pages"`
	Images   int               `json:"images"`
	Skipped  int               `json:"skipped"`
	Failed   int               `json:"failed"`
	DryRun   bool              `json:"dry_run"`
	Errors   []model.PageError `json:"errors,omitempty"`
}

type createdItem struct {
	id   int
	name string
}

// Importer maps a tree onto BookStack: each space becomes a book, each root
// page with children a chapter holding that page and its flattened
// descendants, and every other root page a page directly in the book.
type Importer struct {
	api    API
	tree   *model.Tree
	opts   Options
	logger *slog.Logger

	created map[string][]createdItem
}

// NewImporter creates an importer for tree. A nil logger uses slog.Default().
func NewImporter(api API, tree *model.Tree, opts Options, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.UploadWorkers < 1 {
		opts.UploadWorkers = 3
	}
	if tree == nil {
		tree = model.NewTree()
	}
	return &Importer{
		api:     api,
		tree:    tree,
		opts:    opts,
		logger:  logger,
		created: make(map[string][]createdItem),
	}
}

// Name identifies the importer in rollback summaries.
func (im *Importer) Name() string { return "bookstack_import" }

// batch is the state of one ImportPages call.
type batch struct {
	selected map[string]bool
	dryRun   bool
	stats    *ImportStats
}

func (b *batch) wants(p *model.Page) bool {
	return len(b.selected) == 0 || b.selected[p.ID]
}

// wantsTree reports whether p or any descendant is selected.
func (b *batch) wantsTree(p *model.Page) bool {
	if b.wants(p) {
		return true
	}
	for _, c := range p.Children {
		if b.wantsTree(c) {
			return true
		}
	}
	return false
}

func (b *batch) fail(p *model.Page, err error) {
	b.stats.Failed++
	b.stats.Errors = append(b.stats.Errors, model.PageError{PageID: p.ID, Title: p.Title, Message: err.Error()})
}

// ImportPages imports the converted pages of the tree, limited to selected
// when it is non-empty. Per-page failures are recorded in the stats; an
// error is returned when the context is canceled or nothing could be
// imported.
func (im *Importer) ImportPages(ctx context.Context, selected []string, dryRun bool) (*ImportStats, error) {
	b := &batch{selected: make(map[string]bool, len(selected)), dryRun: dryRun, stats: &ImportStats{DryRun: dryRun}}
	for _, id := range selected {
		b.selected[id] = true
	}

	im.logger.Info("bookstack import started", "selected", len(selected), "dry_run", dryRun)

	var books []int
	for _, key := range im.tree.SpaceKeys() {
		if err := ctx.Err(); err != nil {
			return b.stats, err
		}
		space := im.tree.Spaces[key]
		if space == nil {
			continue
		}
		bookID, ok, err := im.importSpace(ctx, b, space)
		if err != nil {
			return b.stats, err
		}
		if ok {
			books = append(books, bookID)
		}
	}

	if im.opts.ShelfName != "" && len(books) > 0 {
		im.createShelf(ctx, b, books)
	}

	s := b.stats
	im.logger.Info("bookstack import complete",
		"books", s.Books,
		"chapters", s.Chapters,
		"pages", s.Pages,
		"images", s.Images,
		"skipped", s.Skipped,
		"failed", s.Failed)

	if s.Failed > 0 && s.Pages == 0 {
		return s, fmt.Errorf("bookstack import failed for all %d pages: %s", s.Failed, s.Errors[0].Message)
	}
	return s, nil
}

// importSpace creates the book for space and everything in it. ok is false
// when the space had nothing to import or its book could not be created.
func (im *Importer) importSpace(ctx context.Context, b *batch, space *model.Space) (int, bool, error) {
	var roots []*model.Page
	for _, p := range space.Pages {
		if b.wantsTree(p) {
			roots = append(roots, p)
		}
	}
	if len(roots) == 0 {
		return 0, false, nil
	}

	name := space.Name
	if name == "" {
		name = space.Key
	}
	bookID, err := im.create(ctx, b, KindBooks, name, func() (int, error) {
		return im.api.CreateBook(ctx, name, space.Description)
	})
	if err != nil {
		im.logger.Error("create bookstack book failed", "space", space.Key, "error", err)
		for _, r := range roots {
			im.failSubtree(b, r, fmt.Errorf("create book %q: %w", name, err))
		}
		return 0, false, nil
	}
	b.stats.Books++

	for priority, root := range roots {
		if err := ctx.Err(); err != nil {
			return 0, false, err
		}
		if len(root.Children) == 0 {
			im.importPage(ctx, b, root, PageInput{BookID: bookID, Priority: priority})
			continue
		}

		chapterID, err := im.create(ctx, b, KindChapters, root.Title, func() (int, error) {
			return im.api.CreateChapter(ctx, bookID, root.Title, "", priority)
		})
		if err != nil {
			im.failSubtree(b, root, fmt.Errorf("create chapter %q: %w", root.Title, err))
			continue
		}
		b.stats.Chapters++

		// BookStack has no nesting below chapters, so the section root and
		// all its descendants become sibling pages of the chapter.
		order := 0
		var visit func(p *model.Page)
		visit = func(p *model.Page) {
			if b.wants(p) {
				im.importPage(ctx, b, p, PageInput{ChapterID: chapterID, Priority: order})
				order++
			}
			for _, c := range p.Children {
				visit(c)
			}
		}
		visit(root)
	}
	return bookID, true, nil
}

func (im *Importer) importPage(ctx context.Context, b *batch, p *model.Page, in PageInput) {
	if !b.wants(p) {
		return
	}
	if p.Markdown == "" {
		b.stats.Skipped++
		im.logger.Debug("skipping page without markdown", "page_id", p.ID)
		return
	}
	in.Name = p.Title
	in.Markdown = p.Markdown
	in.Tags = im.tags(p)

	id, err := im.create(ctx, b, KindPages, p.Title, func() (int, error) {
		return im.api.CreatePage(ctx, in)
	})
	if err != nil {
		im.logger.Error("create bookstack page failed", "page_id", p.ID, "title", p.Title, "error", err)
		b.fail(p, err)
		return
	}
	b.stats.Pages++
	if b.dryRun {
		return
	}

	if p.Metadata == nil {
		p.Metadata = make(map[string]any)
	}
	p.Metadata["bookstack_id"] = id
	p.Metadata["bookstack_type"] = "page"
	b.stats.Images += im.uploadAttachments(ctx, p, id)
}

// uploadAttachments uploads the page's downloaded attachments with bounded
// concurrency and returns how many succeeded. Failures are logged only.
func (im *Importer) uploadAttachments(ctx context.Context, p *model.Page, pageID int) int {
	var atts []*model.Attachment
	for _, a := range p.Attachments {
		if a != nil && !a.Excluded && a.LocalPath != "" {
			atts = append(atts, a)
		}
	}
	if len(atts) == 0 {
		return 0
	}

	ok := make([]bool, len(atts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.opts.UploadWorkers)
	for i, a := range atts {
		g.Go(func() error {
			if _, err := im.api.UploadAttachment(gctx, pageID, a.Title, a.LocalPath); err != nil {
				im.logger.Warn("bookstack attachment upload failed", "page_id", p.ID, "attachment", a.Title, "error", err)
				return nil
			}
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, uploaded := range ok {
		if uploaded {
			n++
		}
	}
	return n
}

func (im *Importer) createShelf(ctx context.Context, b *batch, books []int) {
	_, err := im.create(ctx, b, KindShelves, im.opts.ShelfName, func() (int, error) {
		return im.api.CreateShelf(ctx, im.opts.ShelfName, books)
	})
	if err != nil {
		im.logger.Warn("create bookstack shelf failed", "shelf", im.opts.ShelfName, "error", err)
		return
	}
	b.stats.Shelves++
}

// create runs fn and records the new item for rollback. In dry run mode fn
// is not called and the id is 0.
func (im *Importer) create(ctx context.Context, b *batch, kind, name string, fn func() (int, error)) (int, error) {
	if b.dryRun {
		im.logger.Info("dry run: would create bookstack item", "kind", kind, "name", name)
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	id, err := fn()
	if err != nil {
		return 0, err
	}
	im.created[kind] = append(im.created[kind], createdItem{id: id, name: name})
	return id, nil
}

func (im *Importer) failSubtree(b *batch, p *model.Page, err error) {
	if b.wants(p) && p.Markdown != "" {
		b.fail(p, err)
	}
	for _, c := range p.Children {
		im.failSubtree(b, c, err)
	}
}

func (im *Importer) tags(p *model.Page) []Tag {
	var tags []Tag
	for _, l := range p.Labels {
		if !strings.HasPrefix(l, "confluence:") {
			tags = append(tags, Tag{Name: l})
		}
	}
	if im.opts.PreservePageIDs {
		tags = append(tags, Tag{Name: "confluence-id", Value: p.ID})
	}
	return tags
}

// Rollback deletes everything this importer created: pages, then chapters,
// then books, then shelves, newest first within each kind.
func (im *Importer) Rollback(ctx context.Context) (rollback.Stats, error) {
	stats := rollback.Stats{Executed: true, Deleted: make(map[string]int, len(rollbackOrder))}
	var errs []error
	for _, kind := range rollbackOrder {
		items := im.created[kind]
		stats.Deleted[kind] = 0
		for i := len(items) - 1; i >= 0; i-- {
			if err := im.api.Delete(ctx, kind, items[i].id); err != nil {
				errs = append(errs, fmt.Errorf("%s %q: %w", strings.TrimSuffix(kind, "s"), items[i].name, err))
				continue
			}
			stats.Deleted[kind]++
		}
	}
	im.created = make(map[string][]createdItem)
	im.logger.Info("bookstack rollback complete", "deleted", stats.Total(), "errors", len(errs))
	return stats, errors.Join(errs...)
}
