// Package model defines the documentation tree that flows through every
// migration phase.
package model

import (
	"errors"
	"fmt"
	"sort"
)

// ConversionStatus is the outcome of converting a single page.
type ConversionStatus string

// Conversion statuses.
const (
	ConversionPending ConversionStatus = "pending"
	ConversionSuccess ConversionStatus = "success"
	ConversionFailed  ConversionStatus = "failed"
	ConversionPartial ConversionStatus = "partial"
)

// ConversionResult annotates a page after the conversion phase touched it.
type ConversionResult struct {
	Status          ConversionStatus `json:"status"`
	Errors          []string         `json:"errors,omitempty"`
	Warnings        []string         `json:"warnings,omitempty"`
	MacrosFound     []string         `json:"macros_found,omitempty"`
	MacrosConverted []string         `json:"macros_converted,omitempty"`
	MacrosFailed    []string         `json:"macros_failed,omitempty"`
	LinksInternal   int              `json:"links_internal,omitempty"`
	LinksExternal   int              `json:"links_external,omitempty"`
	Images          int              `json:"images,omitempty"`
}

// Attachment is a file attached to a page.
type Attachment struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	MediaType       string `json:"media_type,omitempty"`
	FileSize        int64  `json:"file_size,omitempty"`
	DownloadURL     string `json:"download_url,omitempty"`
	PageID          string `json:"page_id,omitempty"`
	LocalPath       string `json:"local_path,omitempty"`
	Checksum        string `json:"checksum,omitempty"`
	Excluded        bool   `json:"excluded,omitempty"`
	ExclusionReason string `json:"exclusion_reason,omitempty"`
}

// Page is a single content unit. Children are owned exclusively by their
// parent; ParentID is a lookup key, not an ownership link.
type Page struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Content     string           `json:"content,omitempty"`
	Markdown    string           `json:"markdown,omitempty"`
	SpaceKey    string           `json:"space_key"`
	ParentID    string           `json:"parent_id,omitempty"`
	URL         string           `json:"url,omitempty"`
	Labels      []string         `json:"labels,omitempty"`
	Author      string           `json:"author,omitempty"`
	Version     int              `json:"version,omitempty"`
	Children    []*Page          `json:"children,omitempty"`
	Attachments []*Attachment    `json:"attachments,omitempty"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
	Conversion  ConversionResult `json:"conversion"`
}

// AddChild appends child and points its ParentID at p.
func (p *Page) AddChild(child *Page) {
	child.ParentID = p.ID
	if child.SpaceKey == "" {
		child.SpaceKey = p.SpaceKey
	}
	p.Children = append(p.Children, child)
}

// Space is a top-level content collection.
type Space struct {
	Key         string         `json:"key"`
	Name        string         `json:"name"`
	ID          string         `json:"id,omitempty"`
	Description string         `json:"description,omitempty"`
	Pages       []*Page        `json:"pages"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// AddPage appends a root page to the space.
func (s *Space) AddPage(p *Page) {
	p.SpaceKey = s.Key
	p.ParentID = ""
	s.Pages = append(s.Pages, p)
}

// Walk visits every page of the space depth first. Returning false from fn
// stops the walk.
func (s *Space) Walk(fn func(p *Page, depth int) bool) {
	var visit func(pages []*Page, depth int) bool
	visit = func(pages []*Page, depth int) bool {
		for _, p := range pages {
			if !fn(p, depth) {
				return false
			}
			if !visit(p.Children, depth+1) {
				return false
			}
		}
		return true
	}
	visit(s.Pages, 0)
}

// Tree is the root aggregate handed from phase to phase.
type Tree struct {
	Spaces    map[string]*Space `json:"spaces"`
	Metadata  map[string]any    `json:"metadata,omitempty"`
	Integrity *IntegrityReport  `json:"integrity,omitempty"`
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{
		Spaces:   make(map[string]*Space),
		Metadata: make(map[string]any),
	}
}

// AddSpace registers s, replacing any space with the same key.
func (t *Tree) AddSpace(s *Space) {
	if t.Spaces == nil {
		t.Spaces = make(map[string]*Space)
	}
	t.Spaces[s.Key] = s
}

// SpaceKeys returns the space keys in sorted order.
func (t *Tree) SpaceKeys() []string {
	keys := make([]string, 0, len(t.Spaces))
	for k := range t.Spaces {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Walk visits every page in every space depth first, spaces in key order.
func (t *Tree) Walk(fn func(s *Space, p *Page, depth int) bool) {
	for _, key := range t.SpaceKeys() {
		s := t.Spaces[key]
		stopped := false
		s.Walk(func(p *Page, depth int) bool {
			if !fn(s, p, depth) {
				stopped = true
				return false
			}
			return true
		})
		if stopped {
			return
		}
	}
}

// AllPages returns every page in depth-first order.
func (t *Tree) AllPages() []*Page {
	var pages []*Page
	t.Walk(func(_ *Space, p *Page, _ int) bool {
		pages = append(pages, p)
		return true
	})
	return pages
}

// Index builds an id lookup over the whole tree. Ids are keyed as
// "SPACE/id" so the same id in two spaces does not collide.
func (t *Tree) Index() map[string]*Page {
	idx := make(map[string]*Page)
	t.Walk(func(s *Space, p *Page, _ int) bool {
		idx[s.Key+"/"+p.ID] = p
		return true
	})
	return idx
}

// PageByID finds the first page with the given id in any space.
func (t *Tree) PageByID(id string) *Page {
	var found *Page
	t.Walk(func(_ *Space, p *Page, _ int) bool {
		if p.ID == id {
			found = p
			return false
		}
		return true
	})
	return found
}

// MaxDepth returns the deepest page level, 1 for a flat tree and 0 when
// the tree has no pages.
func (t *Tree) MaxDepth() int {
	max := 0
	t.Walk(func(_ *Space, _ *Page, depth int) bool {
		if depth+1 > max {
			max = depth + 1
		}
		return true
	})
	return max
}

// Statistics summarizes the tree contents.
type Statistics struct {
	Spaces      int `json:"spaces"`
	Pages       int `json:"pages"`
	Attachments int `json:"attachments"`
	MaxDepth    int `json:"max_depth"`
}

// Statistics counts spaces, pages and attachments.
func (t *Tree) Statistics() Statistics {
	st := Statistics{Spaces: len(t.Spaces)}
	t.Walk(func(_ *Space, p *Page, depth int) bool {
		st.Pages++
		st.Attachments += len(p.Attachments)
		if depth+1 > st.MaxDepth {
			st.MaxDepth = depth + 1
		}
		return true
	})
	return st
}

// ErrInvalidTree is returned by Validate.
var ErrInvalidTree = errors.New("invalid tree")

// Validate checks the structural invariants: unique page ids per space,
// exclusive single-parent ownership, no cycles, and parent ids that match
// the owning page.
func (t *Tree) Validate() error {
	var errs []error
	for _, key := range t.SpaceKeys() {
		s := t.Spaces[key]
		if s == nil {
			errs = append(errs, fmt.Errorf("%w: space %q is nil", ErrInvalidTree, key))
			continue
		}
		if s.Key != key {
			errs = append(errs, fmt.Errorf("%w: space registered as %q has key %q", ErrInvalidTree, key, s.Key))
		}
		seenIDs := make(map[string]bool)
		seenNodes := make(map[*Page]bool)
		var check func(pages []*Page, parentID string)
		check = func(pages []*Page, parentID string) {
			for _, p := range pages {
				if p == nil {
					errs = append(errs, fmt.Errorf("%w: nil page in space %s", ErrInvalidTree, key))
					continue
				}
				if seenNodes[p] {
					errs = append(errs, fmt.Errorf("%w: page %s is owned more than once", ErrInvalidTree, p.ID))
					continue
				}
				seenNodes[p] = true
				if p.ID == "" {
					errs = append(errs, fmt.Errorf("%w: page %q in space %s has no id", ErrInvalidTree, p.Title, key))
				} else if seenIDs[p.ID] {
					errs = append(errs, fmt.Errorf("%w: duplicate page id %s in space %s", ErrInvalidTree, p.ID, key))
				}
				seenIDs[p.ID] = true
				if p.ParentID != parentID {
					errs = append(errs, fmt.Errorf("%w: page %s has parent_id %q but is owned by %q", ErrInvalidTree, p.ID, p.ParentID, parentID))
				}
				check(p.Children, p.ID)
			}
		}
		check(s.Pages, "")
	}
	return errors.Join(errs...)
}
