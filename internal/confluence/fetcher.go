package confluence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/9liver/confluence-markdown-migrator-sub001/internal/model"
)

// Source is the part of Client the fetcher reads from.
type Source interface {
	ListSpaces(ctx context.Context) ([]SpaceInfo, error)
	Space(ctx context.Context, key string) (SpaceInfo, error)
	ListPages(ctx context.Context, spaceKey string) ([]Content, error)
	ListAttachments(ctx context.Context, pageID string) ([]AttachmentInfo, error)
	PageURL(pageID string) string
}

// FetchOptions narrows what is fetched.
type FetchOptions struct {
	// SpaceKeys limits the fetch to these spaces. Empty fetches every space.
	SpaceKeys []string
	// Labels keeps only pages with at least one of these labels. Children of
	// a dropped page move up to the nearest kept ancestor.
	Labels []string
	// ExcludeTitles drops pages whose title matches a glob, with their subtrees.
	ExcludeTitles []string
	// SkipAttachments leaves attachment metadata unfetched.
	SkipAttachments bool
	// Workers bounds concurrent attachment listings (default: 4).
	Workers int
}

// FetchStats counts what a fetch kept and dropped.
type FetchStats struct {
	Spaces          int `json:"spaces"`
	Pages           int `json:"pages"`
	Attachments     int `json:"attachments"`
	ExcludedByTitle int `json:"excluded_by_title"`
	ExcludedByLabel int `json:"excluded_by_label"`
	FailedSpaces    int `json:"failed_spaces"`
}

// Fetcher builds a documentation tree from a Confluence source.
type Fetcher struct {
	src    Source
	opts   FetchOptions
	logger *slog.Logger
	stats  FetchStats
}

// NewFetcher creates a fetcher. Invalid title patterns are rejected. A nil
// logger uses slog.Default().
func NewFetcher(src Source, opts FetchOptions, logger *slog.Logger) (*Fetcher, error) {
	for _, pattern := range opts.ExcludeTitles {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude_titles pattern %q", pattern)
		}
	}
	if opts.Workers < 1 {
		opts.Workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{src: src, opts: opts, logger: logger}, nil
}

// Stats returns the counters of the last Fetch.
func (f *Fetcher) Stats() FetchStats { return f.stats }

// Fetch reads every configured space. A space that cannot be read is logged
// and skipped; an error is returned when no space could be read.
func (f *Fetcher) Fetch(ctx context.Context) (*model.Tree, error) {
	f.stats = FetchStats{}
	spaces, err := f.spaces(ctx)
	if err != nil {
		return nil, err
	}

	tree := model.NewTree()
	tree.Metadata["source"] = "confluence"
	tree.Metadata["fetched_at"] = time.Now().UTC().Format(time.RFC3339)

	var errs []error
	for _, info := range spaces {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		space, err := f.fetchSpace(ctx, info)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			f.stats.FailedSpaces++
			f.logger.Error("fetch space failed", "space", info.Key, "error", err)
			errs = append(errs, err)
			continue
		}
		tree.AddSpace(space)
		f.stats.Spaces++
	}

	if len(tree.Spaces) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("no space could be fetched: %w", errors.Join(errs...))
	}

	f.logger.Info("confluence fetch complete",
		"spaces", f.stats.Spaces,
		"pages", f.stats.Pages,
		"attachments", f.stats.Attachments,
		"excluded_by_title", f.stats.ExcludedByTitle,
		"excluded_by_label", f.stats.ExcludedByLabel)
	return tree, nil
}

func (f *Fetcher) spaces(ctx context.Context) ([]SpaceInfo, error) {
	if len(f.opts.SpaceKeys) == 0 {
		spaces, err := f.src.ListSpaces(ctx)
		if err != nil {
			return nil, fmt.Errorf("list spaces: %w", err)
		}
		return spaces, nil
	}
	spaces := make([]SpaceInfo, 0, len(f.opts.SpaceKeys))
	for _, key := range f.opts.SpaceKeys {
		info, err := f.src.Space(ctx, key)
		if err != nil {
			// Keep the key so the failure is reported per space.
			f.logger.Warn("space lookup failed, using key as name", "space", key, "error", err)
			info = SpaceInfo{Key: key, Name: key}
		}
		spaces = append(spaces, info)
	}
	return spaces, nil
}

func (f *Fetcher) fetchSpace(ctx context.Context, info SpaceInfo) (*model.Space, error) {
	contents, err := f.src.ListPages(ctx, info.Key)
	if err != nil {
		return nil, err
	}
	space := &model.Space{Key: info.Key, Name: info.Name}

	byTitle := make(map[string]bool)
	for _, c := range contents {
		if f.titleExcluded(c.Title) {
			byTitle[c.ID] = true
		}
	}

	nodes := make(map[string]*model.Page, len(contents))
	var kept []Content
	for _, c := range contents {
		if byTitle[c.ID] || slices.ContainsFunc(c.AncestorIDs, func(id string) bool { return byTitle[id] }) {
			f.stats.ExcludedByTitle++
			continue
		}
		if !f.labelMatch(c.Labels) {
			f.stats.ExcludedByLabel++
			continue
		}
		nodes[c.ID] = &model.Page{
			ID:       c.ID,
			Title:    c.Title,
			Content:  c.Body,
			SpaceKey: info.Key,
			URL:      f.src.PageURL(c.ID),
			Labels:   c.Labels,
			Author:   c.Author,
			Version:  c.Version,
		}
		kept = append(kept, c)
	}

	for _, c := range kept {
		page := nodes[c.ID]
		if parent := nearestKept(c.AncestorIDs, nodes); parent != nil {
			if orig := c.ParentID(); orig != parent.ID {
				page.Metadata = map[string]any{"original_parent_id": orig}
			}
			parent.AddChild(page)
			continue
		}
		space.AddPage(page)
	}
	f.stats.Pages += len(kept)

	if !f.opts.SkipAttachments {
		if err := f.fetchAttachments(ctx, kept, nodes); err != nil {
			return nil, err
		}
	}
	f.logger.Debug("fetched space", "space", info.Key, "pages", len(kept), "roots", len(space.Pages))
	return space, nil
}

// fetchAttachments lists attachments for every kept page with bounded
// concurrency. A listing failure is logged and leaves the page without
// attachments.
func (f *Fetcher) fetchAttachments(ctx context.Context, kept []Content, nodes map[string]*model.Page) error {
	results := make([][]*model.Attachment, len(kept))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.opts.Workers)
	for i, c := range kept {
		g.Go(func() error {
			infos, err := f.src.ListAttachments(gctx, c.ID)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				f.logger.Warn("list attachments failed", "page_id", c.ID, "error", err)
				return nil
			}
			for _, a := range infos {
				results[i] = append(results[i], &model.Attachment{
					ID:          a.ID,
					Title:       a.Title,
					MediaType:   a.MediaType,
					DownloadURL: a.DownloadURL,
					PageID:      c.ID,
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i, c := range kept {
		nodes[c.ID].Attachments = results[i]
		f.stats.Attachments += len(results[i])
	}
	return nil
}

func (f *Fetcher) titleExcluded(title string) bool {
	for _, pattern := range f.opts.ExcludeTitles {
		if ok, _ := doublestar.Match(pattern, title); ok {
			return true
		}
	}
	return false
}

func (f *Fetcher) labelMatch(labels []string) bool {
	if len(f.opts.Labels) == 0 {
		return true
	}
	for _, want := range f.opts.Labels {
		for _, l := range labels {
			if strings.EqualFold(want, l) {
				return true
			}
		}
	}
	return false
}

func nearestKept(ancestors []string, nodes map[string]*model.Page) *model.Page {
	for i := len(ancestors) - 1; i >= 0; i-- {
		if p := nodes[ancestors[i]]; p != nil {
			return p
		}
	}
	return nil
}
