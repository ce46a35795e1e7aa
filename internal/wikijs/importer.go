package wikijs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/9liver/confluence-markdown-migrator-sub001/internal/markdown"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/model"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/rollback"
)

// Conflict resolution strategies for pages that already exist at the
// target path.
const (
	ConflictSkip      = "skip"
	ConflictOverwrite = "overwrite"
	ConflictVersion   = "version"
)

const (
	maxPathLength   = 255
	maxPathAttempts = 100
	systemLabel     = "confluence:"
)

// API is the part of Client the importer uses.
type API interface {
	PageByPath(ctx context.Context, path, locale string) (*Page, error)
	CreatePage(ctx context.Context, in PageInput) (int, error)
	UpdatePage(ctx context.Context, id int, in PageInput) error
	DeletePage(ctx context.Context, id int) error
	UploadAsset(ctx context.Context, localPath, name string) (string, error)
}

// Options configures an Importer.
type Options struct {
	ConflictResolution string
	IncludeSpaceInPath bool
	PathPrefix         string
	Locale             string
	Editor             string
	PreservePageIDs    bool
	// UploadAssets uploads downloaded attachments and rewrites links to them
	UploadAssets bool
}

// ImportStats summarizes one ImportPages call.
type ImportStats struct {
	Total               int               `json:"total_pages"`
	Created             int               `json:"created"`
	Updated             int               `json:"updated"`
	Skipped             int               `json:"skipped"`
	Failed              int               `json:"failed"`
	AttachmentsUploaded int               `json:"attachments_uploaded"`
	DryRun              bool              `json:"dry_run"`
	Errors              []model.PageError `json:"errors,omitempty"`
}

type createdPage struct {
	id   int
	path string
}

// Importer writes the pages of a tree into Wiki.js. It remembers the pages
// it created so Rollback can delete them again.
type Importer struct {
	api    API
	tree   *model.Tree
	opts   Options
	logger *slog.Logger
	index  map[string]*model.Page

	created []createdPage
}

// NewImporter creates an importer for tree. A nil logger uses slog.Default().
func NewImporter(api API, tree *model.Tree, opts Options, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ConflictResolution == "" {
		opts.ConflictResolution = ConflictSkip
	}
	if opts.Locale == "" {
		opts.Locale = "en"
	}
	if opts.Editor == "" {
		opts.Editor = "markdown"
	}
	if tree == nil {
		tree = model.NewTree()
	}
	return &Importer{
		api:    api,
		tree:   tree,
		opts:   opts,
		logger: logger,
		index:  tree.Index(),
	}
}

// Name identifies the importer in rollback summaries.
func (im *Importer) Name() string { return "wikijs_import" }

// ImportPages imports the converted pages of the tree, limited to selected
// when it is non-empty. Pages without markdown are ignored. Per-page
// failures are counted in the stats; an error is returned only when the
// import could not run at all or every page failed.
func (im *Importer) ImportPages(ctx context.Context, selected []string, dryRun bool) (*ImportStats, error) {
	stats := &ImportStats{DryRun: dryRun}
	pages := im.pagesToImport(selected)
	stats.Total = len(pages)
	if len(pages) == 0 {
		im.logger.Warn("no pages to import into wikijs")
		return stats, nil
	}

	im.logger.Info("wikijs import started", "pages", len(pages), "dry_run", dryRun,
		"conflict_resolution", im.opts.ConflictResolution)

	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := im.importPage(ctx, p, dryRun, stats); err != nil {
			stats.Failed++
			stats.Errors = append(stats.Errors, model.PageError{PageID: p.ID, Title: p.Title, Message: err.Error()})
			im.logger.Error("wikijs page import failed", "page_id", p.ID, "title", p.Title, "error", err)
		}
	}

	im.logger.Info("wikijs import complete",
		"created", stats.Created,
		"updated", stats.Updated,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"attachments", stats.AttachmentsUploaded)

	if stats.Failed == stats.Total {
		return stats, fmt.Errorf("all %d pages failed to import: %s", stats.Total, stats.Errors[0].Message)
	}
	return stats, nil
}

func (im *Importer) pagesToImport(selected []string) []*model.Page {
	var pages []*model.Page
	if len(selected) > 0 {
		for _, id := range selected {
			if p := im.index[id]; p != nil && p.Markdown != "" {
				pages = append(pages, p)
			}
		}
		return pages
	}
	for _, p := range im.tree.AllPages() {
		if p.Markdown != "" {
			pages = append(pages, p)
		}
	}
	return pages
}

func (im *Importer) importPage(ctx context.Context, p *model.Page, dryRun bool, stats *ImportStats) error {
	path := im.PagePath(p)

	existing, err := im.api.PageByPath(ctx, path, im.opts.Locale)
	if err != nil {
		if !dryRun {
			return err
		}
		im.logger.Debug("dry run: existence check failed, assuming new page", "path", path, "error", err)
	}

	if existing != nil {
		switch im.resolveConflict(existing, p) {
		case ConflictSkip:
			im.logger.Info("skipping existing wikijs page", "path", path)
			stats.Skipped++
			im.annotate(p, "skipped", path, existing.ID)
			return nil
		case ConflictOverwrite:
			if dryRun {
				im.logger.Info("dry run: would update wikijs page", "path", path)
				stats.Updated++
				return nil
			}
			in, err := im.pageInput(ctx, p, path, stats)
			if err != nil {
				return err
			}
			if err := im.api.UpdatePage(ctx, existing.ID, in); err != nil {
				return err
			}
			stats.Updated++
			im.annotate(p, "updated", path, existing.ID)
			return nil
		case ConflictVersion:
			if path, err = im.uniquePath(ctx, path); err != nil {
				return err
			}
		}
	}

	if dryRun {
		im.logger.Info("dry run: would create wikijs page", "path", path)
		stats.Created++
		return nil
	}
	in, err := im.pageInput(ctx, p, path, stats)
	if err != nil {
		return err
	}
	id, err := im.api.CreatePage(ctx, in)
	if err != nil {
		return err
	}
	im.created = append(im.created, createdPage{id: id, path: path})
	stats.Created++
	im.annotate(p, "imported", path, id)
	im.logger.Debug("created wikijs page", "path", path, "id", id)
	return nil
}

// resolveConflict picks the action for a page that already exists. An
// overwrite of identical content is a skip.
func (im *Importer) resolveConflict(existing *Page, p *model.Page) string {
	switch im.opts.ConflictResolution {
	case ConflictOverwrite:
		if strings.TrimSpace(existing.Content) == strings.TrimSpace(p.Markdown) {
			return ConflictSkip
		}
		return ConflictOverwrite
	case ConflictVersion:
		return ConflictVersion
	case ConflictSkip:
		return ConflictSkip
	}
	im.logger.Warn("unknown conflict resolution, skipping", "strategy", im.opts.ConflictResolution)
	return ConflictSkip
}

func (im *Importer) uniquePath(ctx context.Context, base string) (string, error) {
	for i := 2; i < maxPathAttempts+2; i++ {
		candidate := base + "-v" + strconv.Itoa(i)
		existing, err := im.api.PageByPath(ctx, candidate, im.opts.Locale)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free path for %s after %d attempts", base, maxPathAttempts)
}

func (im *Importer) pageInput(ctx context.Context, p *model.Page, path string, stats *ImportStats) (PageInput, error) {
	content, err := im.uploadAttachments(ctx, p, stats)
	if err != nil {
		return PageInput{}, err
	}
	desc, _ := p.Metadata["description"].(string)
	return PageInput{
		Path:        path,
		Title:       p.Title,
		Content:     content,
		Description: desc,
		Editor:      im.opts.Editor,
		Locale:      im.opts.Locale,
		Tags:        im.tags(p),
	}, nil
}

// uploadAttachments uploads the page's downloaded attachments and returns
// the markdown with links pointing at the uploaded assets.
func (im *Importer) uploadAttachments(ctx context.Context, p *model.Page, stats *ImportStats) (string, error) {
	content := p.Markdown
	if !im.opts.UploadAssets {
		return content, nil
	}
	for _, att := range p.Attachments {
		if att == nil || att.Excluded || att.LocalPath == "" {
			continue
		}
		name := p.ID + "-" + markdown.SanitizeFilename(att.Title)
		url, err := im.api.UploadAsset(ctx, att.LocalPath, name)
		if err != nil {
			return "", err
		}
		stats.AttachmentsUploaded++
		content = strings.ReplaceAll(content, "]("+att.Title+")", "]("+url+")")
	}
	return content, nil
}

// tags are the page labels without Confluence system labels, plus the
// source page id when ids are preserved.
func (im *Importer) tags(p *model.Page) []string {
	tags := make([]string, 0, len(p.Labels)+1)
	for _, l := range p.Labels {
		if !strings.HasPrefix(l, systemLabel) {
			tags = append(tags, l)
		}
	}
	if im.opts.PreservePageIDs {
		tags = append(tags, "confluence-id-"+p.ID)
	}
	return tags
}

// PagePath returns the hierarchical Wiki.js path of p, e.g.
// /docs/parent-page/child-page.
func (im *Importer) PagePath(p *model.Page) string {
	var parts []string
	for a := im.index[p.ParentID]; a != nil; a = im.index[a.ParentID] {
		parts = append(parts, markdown.SanitizeFilename(a.Title))
		if len(parts) > len(im.index) {
			break
		}
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	parts = append(parts, markdown.SanitizeFilename(p.Title))
	if im.opts.IncludeSpaceInPath && p.SpaceKey != "" {
		parts = append([]string{markdown.SanitizeFilename(p.SpaceKey)}, parts...)
	}
	if prefix := strings.Trim(im.opts.PathPrefix, "/"); prefix != "" {
		parts = append([]string{prefix}, parts...)
	}

	path := "/" + strings.Join(parts, "/")
	if len(path) > maxPathLength {
		im.logger.Warn("wikijs path exceeds maximum length", "path", path, "length", len(path))
	}
	return path
}

func (im *Importer) annotate(p *model.Page, status, path string, id int) {
	if p.Metadata == nil {
		p.Metadata = make(map[string]any)
	}
	p.Metadata["wikijs_import"] = map[string]any{
		"status":         status,
		"path":           path,
		"wikijs_page_id": id,
	}
}

// Rollback deletes every page this importer created, newest first. Deletion
// failures are collected and do not stop the remaining deletions.
func (im *Importer) Rollback(ctx context.Context) (rollback.Stats, error) {
	stats := rollback.Stats{Executed: true, Deleted: map[string]int{"pages": 0}}
	var errs []error
	for i := len(im.created) - 1; i >= 0; i-- {
		c := im.created[i]
		if err := im.api.DeletePage(ctx, c.id); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.path, err))
			continue
		}
		stats.Deleted["pages"]++
	}
	im.created = nil
	im.logger.Info("wikijs rollback complete", "pages_deleted", stats.Deleted["pages"], "errors", len(errs))
	return stats, errors.Join(errs...)
}
