package markdown

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/9liver/confluence-markdown-migrator-sub001/internal/model"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/rollback"
)

// IndexFile is the per-space navigation file.
const IndexFile = "README.md"

const attachmentsDir = "_attachments"

// AttachmentFetcher opens the content of an attachment for download.
type AttachmentFetcher func(ctx context.Context, att *model.Attachment) (io.ReadCloser, error)

// ExportOptions configures an Exporter.
type ExportOptions struct {
	OutputDirectory  string
	CreateIndexFiles bool
	SkipUnchanged    bool
	DryRun           bool

	// FetchAttachment downloads attachment content. When nil, attachments
	// are listed in frontmatter but not saved.
	FetchAttachment AttachmentFetcher
}

// ExportStats summarizes one export.
type ExportStats struct {
	OutputDirectory  string
	PagesExported    int
	PagesUnchanged   int
	AttachmentsSaved int
	FilesWritten     int
	IndexFiles       int
	DryRun           bool
	Errors           []model.PageError
}

// Exporter writes a tree to disk and remembers what it wrote so the export
// can be undone.
type Exporter struct {
	opts   ExportOptions
	logger *slog.Logger

	mu       sync.Mutex
	created  []string
	previous map[string][]byte
	dirs     []string
}

// NewExporter creates an exporter. A nil logger uses slog.Default().
func NewExporter(opts ExportOptions, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{opts: opts, logger: logger, previous: make(map[string][]byte)}
}

// Name implements rollback.Rollbacker.
func (e *Exporter) Name() string { return "markdown_export" }

// spaceExport carries per-space state while pages are written.
type spaceExport struct {
	space *model.Space
	root  string
	names map[string]map[string]bool
	files map[string]string
}

// ExportTree writes every page of tree below the output directory. Pages
// that cannot be written are recorded in the stats; only failures that stop
// the whole export are returned as an error.
func (e *Exporter) ExportTree(ctx context.Context, tree *model.Tree) (*ExportStats, error) {
	if e.opts.OutputDirectory == "" {
		return nil, errors.New("no output directory configured")
	}
	stats := &ExportStats{OutputDirectory: e.opts.OutputDirectory, DryRun: e.opts.DryRun}
	if tree == nil {
		return stats, nil
	}
	if !e.opts.DryRun {
		if err := e.mkdirAll(e.opts.OutputDirectory); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}

	for _, key := range tree.SpaceKeys() {
		space := tree.Spaces[key]
		if space == nil {
			continue
		}
		se := &spaceExport{
			space: space,
			root:  filepath.Join(e.opts.OutputDirectory, spaceDirName(space.Key)),
			names: make(map[string]map[string]bool),
			files: make(map[string]string),
		}
		for _, p := range space.Pages {
			if err := e.exportPage(ctx, se, se.root, p, 0, stats); err != nil {
				return stats, err
			}
		}
		if e.opts.CreateIndexFiles && len(space.Pages) > 0 {
			e.writeIndex(se, stats)
		}
		e.logger.Info("space exported", "space", space.Key, "dir", se.root)
	}

	e.logger.Info("markdown export finished",
		"dir", e.opts.OutputDirectory,
		"exported", stats.PagesExported,
		"unchanged", stats.PagesUnchanged,
		"attachments", stats.AttachmentsSaved,
		"errors", len(stats.Errors),
		"dry_run", e.opts.DryRun)
	return stats, nil
}

func (e *Exporter) exportPage(ctx context.Context, se *spaceExport, dir string, p *model.Page, depth int, stats *ExportStats) error {
	if p == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	used := se.names[dir]
	if used == nil {
		used = make(map[string]bool)
		se.names[dir] = used
	}
	name := uniqueName(used, SanitizeFilename(p.Title))
	pageDir := dir
	if len(p.Children) > 0 {
		pageDir = filepath.Join(dir, name)
	}
	file := filepath.Join(pageDir, name+".md")
	se.files[p.ID] = file

	pageErr := func(msg string) {
		stats.Errors = append(stats.Errors, model.PageError{PageID: p.ID, Title: p.Title, Message: msg})
		e.logger.Warn("page export problem", "page_id", p.ID, "title", p.Title, "error", msg)
	}

	if p.Markdown == "" {
		e.logger.Debug("page has no markdown; exporting frontmatter only", "page_id", p.ID)
	}
	refs := e.saveAttachments(ctx, se, file, p, stats, pageErr)
	content, err := Render(frontmatterFor(p, se.space, depth, refs), p.Markdown)
	if err != nil {
		pageErr(err.Error())
	} else {
		changed, err := e.writeFile(file, content)
		switch {
		case err != nil:
			pageErr(err.Error())
		case changed:
			stats.PagesExported++
			if !e.opts.DryRun {
				stats.FilesWritten++
			}
		default:
			stats.PagesUnchanged++
		}
	}

	for _, child := range p.Children {
		if err := e.exportPage(ctx, se, pageDir, child, depth+1, stats); err != nil {
			return err
		}
	}
	return nil
}

func (e *Exporter) saveAttachments(ctx context.Context, se *spaceExport, pageFile string, p *model.Page, stats *ExportStats, pageErr func(string)) []AttachmentRef {
	var refs []AttachmentRef
	for _, att := range p.Attachments {
		if att == nil || att.Excluded {
			continue
		}
		ref := AttachmentRef{ID: att.ID, Title: att.Title, MediaType: att.MediaType, Size: att.FileSize, Checksum: att.Checksum}
		if e.opts.FetchAttachment != nil {
			target := filepath.Join(se.root, attachmentsDir, p.ID, attachmentName(att.Title))
			if err := e.saveAttachment(ctx, att, target); err != nil {
				pageErr(fmt.Sprintf("attachment %s: %v", att.Title, err))
			} else {
				if !e.opts.DryRun {
					stats.AttachmentsSaved++
					stats.FilesWritten++
				}
				att.LocalPath = target
				if rel, err := filepath.Rel(filepath.Dir(pageFile), target); err == nil {
					ref.Path = filepath.ToSlash(rel)
				}
			}
		}
		refs = append(refs, ref)
	}
	return refs
}

func (e *Exporter) saveAttachment(ctx context.Context, att *model.Attachment, target string) error {
	if e.opts.DryRun {
		return nil
	}
	rc, err := e.opts.FetchAttachment(ctx, att)
	if err != nil {
		return err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	_, err = e.writeFile(target, data)
	return err
}

func (e *Exporter) writeIndex(se *spaceExport, stats *ExportStats) {
	var b strings.Builder
	title := se.space.Name
	if title == "" {
		title = se.space.Key
	}
	fmt.Fprintf(&b, "# %s (%s)\n\n", title, se.space.Key)
	if se.space.Description != "" {
		b.WriteString(strings.TrimSpace(se.space.Description) + "\n\n")
	}
	b.WriteString("## Pages\n\n")
	se.space.Walk(func(p *model.Page, depth int) bool {
		file, ok := se.files[p.ID]
		if !ok {
			return true
		}
		rel, err := filepath.Rel(se.root, file)
		if err != nil {
			return true
		}
		fmt.Fprintf(&b, "%s- [%s](%s)\n", strings.Repeat("  ", depth), p.Title, filepath.ToSlash(rel))
		return true
	})

	changed, err := e.writeFile(filepath.Join(se.root, IndexFile), []byte(b.String()))
	if err != nil {
		e.logger.Warn("index file not written", "space", se.space.Key, "error", err)
		return
	}
	stats.IndexFiles++
	if changed && !e.opts.DryRun {
		stats.FilesWritten++
	}
}

// writeFile writes data to path unless skip-unchanged applies. It reports
// whether the file was (or in a dry run, would be) changed.
func (e *Exporter) writeFile(path string, data []byte) (bool, error) {
	prev, err := os.ReadFile(path)
	existed := err == nil
	if existed && e.opts.SkipUnchanged && bytes.Equal(prev, data) {
		return false, nil
	}
	if e.opts.DryRun {
		return true, nil
	}
	if err := e.mkdirAll(filepath.Dir(path)); err != nil {
		return false, fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if existed {
		if _, ok := e.previous[path]; !ok {
			e.previous[path] = prev
		}
	} else {
		e.created = append(e.created, path)
	}
	return true, nil
}

// mkdirAll creates dir and records every directory it had to create.
func (e *Exporter) mkdirAll(dir string) error {
	var missing []string
	for d := filepath.Clean(dir); ; d = filepath.Dir(d) {
		if _, err := os.Stat(d); err == nil {
			break
		}
		missing = append(missing, d)
		if parent := filepath.Dir(d); parent == d {
			break
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(missing) - 1; i >= 0; i-- {
		e.dirs = append(e.dirs, missing[i])
	}
	return nil
}

// Rollback removes files the export created, restores files it overwrote
// and removes directories it created once they are empty.
func (e *Exporter) Rollback(ctx context.Context) (rollback.Stats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := rollback.Stats{Executed: true, Deleted: map[string]int{}}
	var errs []error

	for i := len(e.created) - 1; i >= 0; i-- {
		if err := os.Remove(e.created[i]); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
			continue
		}
		stats.Deleted["files"]++
	}
	for path, data := range e.previous {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", path, err))
			continue
		}
		stats.Deleted["restored"]++
	}
	for i := len(e.dirs) - 1; i >= 0; i-- {
		// Directories that still hold files not written by this export stay.
		if err := os.Remove(e.dirs[i]); err == nil {
			stats.Deleted["directories"]++
		}
	}

	e.created, e.dirs = nil, nil
	e.previous = make(map[string][]byte)
	e.logger.Info("markdown export rolled back",
		"files", stats.Deleted["files"],
		"restored", stats.Deleted["restored"],
		"directories", stats.Deleted["directories"])
	return stats, errors.Join(errs...)
}

func spaceDirName(key string) string {
	key = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '-'
		}
		return r
	}, strings.TrimSpace(key))
	if key == "" || key == "." || key == ".." {
		return "space"
	}
	return key
}

func attachmentName(title string) string {
	ext := strings.ToLower(filepath.Ext(title))
	base := SanitizeFilename(strings.TrimSuffix(title, filepath.Ext(title)))
	if len(ext) > 10 || strings.ContainsAny(ext, `/\ `) {
		ext = ""
	}
	return base + ext
}
