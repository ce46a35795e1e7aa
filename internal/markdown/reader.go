package markdown

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/9liver/confluence-markdown-migrator-sub001/internal/model"
)

// ReaderOptions configures a Reader.
type ReaderOptions struct {
	// ExcludePatterns are doublestar globs matched against slash-separated
	// paths relative to the directory, e.g. "**/drafts/**".
	ExcludePatterns []string
}

// FileError describes a file that could not be read or parsed.
type FileError struct {
	Path    string
	Message string
}

// ReadStats summarizes one ReadDirectory call.
type ReadStats struct {
	FilesScanned      int
	FilesParsed       int
	FilesSkipped      int
	FilesFailed       int
	PagesLoaded       int
	AttachmentsLoaded int
	SpacesCreated     int
	OrphanPages       int
	Errors            []FileError
}

// Reader rebuilds a tree from an exported markdown directory.
type Reader struct {
	opts   ReaderOptions
	logger *slog.Logger
	stats  ReadStats
}

// NewReader creates a reader. A nil logger uses slog.Default().
func NewReader(opts ReaderOptions, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{opts: opts, logger: logger}
}

// Stats returns the statistics of the last ReadDirectory call.
func (r *Reader) Stats() ReadStats { return r.stats }

type parsedPage struct {
	page      *model.Page
	spaceName string
	path      string
}

// ReadDirectory parses every markdown file below dir and links the pages
// by their parent_id. Pages whose parent is not in the directory become
// root pages of their space.
func (r *Reader) ReadDirectory(ctx context.Context, dir string) (*model.Tree, error) {
	r.stats = ReadStats{}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("markdown directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("markdown directory: %s is not a directory", dir)
	}
	for _, pattern := range r.opts.ExcludePatterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}

	var pages []parsedPage
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != dir && (d.Name() == attachmentsDir || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".md") || d.Name() == IndexFile {
			return nil
		}

		r.stats.FilesScanned++
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)
		if r.excluded(rel) {
			r.stats.FilesSkipped++
			r.logger.Debug("markdown file excluded", "path", rel)
			return nil
		}

		if pp, ok := r.parseFile(path, rel); ok {
			pages = append(pages, pp)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}

	tree := r.buildTree(pages)
	r.logger.Info("markdown directory read",
		"dir", dir,
		"scanned", r.stats.FilesScanned,
		"parsed", r.stats.FilesParsed,
		"skipped", r.stats.FilesSkipped,
		"failed", r.stats.FilesFailed,
		"pages", r.stats.PagesLoaded,
		"orphans", r.stats.OrphanPages)
	return tree, nil
}

func (r *Reader) excluded(rel string) bool {
	for _, pattern := range r.opts.ExcludePatterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func (r *Reader) fail(rel string, err error) {
	r.stats.FilesFailed++
	r.stats.Errors = append(r.stats.Errors, FileError{Path: rel, Message: err.Error()})
	r.logger.Warn("markdown file not loaded", "path", rel, "error", err)
}

func (r *Reader) parseFile(path, rel string) (parsedPage, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		r.fail(rel, err)
		return parsedPage{}, false
	}
	fm, body, err := Parse(data)
	if errors.Is(err, ErrNoFrontmatter) {
		r.stats.FilesSkipped++
		r.logger.Warn("markdown file has no frontmatter; skipped", "path", rel)
		return parsedPage{}, false
	}
	if err != nil {
		r.fail(rel, err)
		return parsedPage{}, false
	}
	if missing := fm.Missing(); len(missing) > 0 {
		r.stats.FilesSkipped++
		r.logger.Warn("frontmatter missing required fields; skipped", "path", rel, "fields", missing)
		return parsedPage{}, false
	}
	r.stats.FilesParsed++

	status := model.ConversionStatus(fm.ConversionStatus)
	if status == "" {
		status = model.ConversionSuccess
	}
	p := &model.Page{
		ID:       fm.ConfluencePageID,
		Title:    fm.Title,
		Markdown: body,
		SpaceKey: fm.SpaceKey,
		ParentID: fm.ParentID,
		URL:      fm.URL,
		Labels:   fm.Labels,
		Author:   fm.Author,
		Version:  fm.Version,
		Metadata: map[string]any{"source_path": rel},
		Conversion: model.ConversionResult{
			Status:       status,
			Warnings:     fm.Warnings,
			MacrosFailed: fm.MacrosFailed,
		},
	}
	for _, ref := range fm.Attachments {
		att := &model.Attachment{
			ID:        ref.ID,
			Title:     ref.Title,
			MediaType: ref.MediaType,
			FileSize:  ref.Size,
			Checksum:  ref.Checksum,
			PageID:    p.ID,
		}
		if ref.Path != "" {
			att.LocalPath = filepath.Join(filepath.Dir(path), filepath.FromSlash(ref.Path))
		}
		p.Attachments = append(p.Attachments, att)
	}
	return parsedPage{page: p, spaceName: fm.SpaceName, path: rel}, true
}

// buildTree links parsed pages into spaces. Links that would create a cycle
// are dropped and the page becomes a root.
func (r *Reader) buildTree(pages []parsedPage) *model.Tree {
	tree := model.NewTree()
	byID := make(map[string]map[string]*model.Page)

	var kept []parsedPage
	for _, pp := range pages {
		key := pp.page.SpaceKey
		space := tree.Spaces[key]
		if space == nil {
			space = &model.Space{Key: key, Name: pp.spaceName}
			tree.AddSpace(space)
			byID[key] = make(map[string]*model.Page)
			r.stats.SpacesCreated++
		}
		if space.Name == "" {
			space.Name = pp.spaceName
		}
		if _, dup := byID[key][pp.page.ID]; dup {
			r.fail(pp.path, fmt.Errorf("duplicate page id %s in space %s", pp.page.ID, key))
			r.stats.FilesParsed--
			continue
		}
		byID[key][pp.page.ID] = pp.page
		kept = append(kept, pp)
	}

	parentOf := make(map[*model.Page]*model.Page)
	createsCycle := func(child, parent *model.Page) bool {
		for p := parent; p != nil; p = parentOf[p] {
			if p == child {
				return true
			}
		}
		return false
	}

	for _, pp := range kept {
		p := pp.page
		space := tree.Spaces[p.SpaceKey]
		r.stats.PagesLoaded++
		r.stats.AttachmentsLoaded += len(p.Attachments)

		if p.ParentID == "" {
			space.AddPage(p)
			continue
		}
		parent := byID[p.SpaceKey][p.ParentID]
		if parent == nil || createsCycle(p, parent) {
			r.stats.OrphanPages++
			p.Metadata["original_parent_id"] = p.ParentID
			r.logger.Debug("parent not found; page becomes a root", "page_id", p.ID, "parent_id", p.ParentID)
			space.AddPage(p)
			continue
		}
		parentOf[p] = parent
		parent.AddChild(p)
	}
	return tree
}
