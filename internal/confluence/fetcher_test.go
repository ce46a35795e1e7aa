package confluence

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/9liver/confluence-markdown-migrator-sub001/internal/model"
)

// fakeSource serves canned spaces and pages.
type fakeSource struct {
	mu          sync.Mutex
	spaces      map[string]SpaceInfo
	pages       map[string][]Content
	attachments map[string][]AttachmentInfo
	failPages   map[string]bool
	failAtt     map[string]bool
	listed      []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		spaces:      make(map[string]SpaceInfo),
		pages:       make(map[string][]Content),
		attachments: make(map[string][]AttachmentInfo),
		failPages:   make(map[string]bool),
		failAtt:     make(map[string]bool),
	}
}

func (s *fakeSource) ListSpaces(_ context.Context) ([]SpaceInfo, error) {
	var out []SpaceInfo
	for _, key := range []string{"DOCS", "OPS"} {
		if info, ok := s.spaces[key]; ok {
			out = append(out, info)
		}
	}
	return out, nil
}

func (s *fakeSource) Space(_ context.Context, key string) (SpaceInfo, error) {
	info, ok := s.spaces[key]
	if !ok {
		return SpaceInfo{}, errors.New("space not found")
	}
	return info, nil
}

func (s *fakeSource) ListPages(_ context.Context, key string) ([]Content, error) {
	pages, ok := s.pages[key]
	if !ok || s.failPages[key] {
		return nil, errors.New("status 500")
	}
	return pages, nil
}

func (s *fakeSource) ListAttachments(_ context.Context, pageID string) ([]AttachmentInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listed = append(s.listed, pageID)
	if s.failAtt[pageID] {
		return nil, errors.New("forbidden")
	}
	return s.attachments[pageID], nil
}

func (s *fakeSource) PageURL(pageID string) string {
	return "https://wiki.example.com/pages/viewpage.action?pageId=" + pageID
}

// docsSource has DOCS with Home > (Guide > Install, Archive 2019 > Old)
// and a second root, plus an OPS space.
func docsSource() *fakeSource {
	s := newFakeSource()
	s.spaces["DOCS"] = SpaceInfo{Key: "DOCS", Name: "Documentation"}
	s.spaces["OPS"] = SpaceInfo{Key: "OPS", Name: "Operations"}
	s.pages["DOCS"] = []Content{
		// children listed before their parent on purpose
		{ID: "3", Title: "Install", Body: "<p>install</p>", AncestorIDs: []string{"1", "2"}, Labels: []string{"howto"}},
		{ID: "1", Title: "Home", Body: "<p>home</p>", Version: 4, Author: "Ann", Labels: []string{"Howto"}},
		{ID: "2", Title: "Guide", AncestorIDs: []string{"1"}},
		{ID: "4", Title: "Archive 2019", AncestorIDs: []string{"1"}, Labels: []string{"howto"}},
		{ID: "5", Title: "Old", AncestorIDs: []string{"1", "4"}, Labels: []string{"howto"}},
		{ID: "6", Title: "Release Notes", Labels: []string{"howto"}},
	}
	s.pages["OPS"] = []Content{{ID: "10", Title: "Runbook"}}
	s.attachments["3"] = []AttachmentInfo{{ID: "a1", Title: "shot.png", MediaType: "image/png", DownloadURL: "https://wiki/download/attachments/3/shot.png"}}
	return s
}

func newTestFetcher(t *testing.T, src Source, opts FetchOptions) *Fetcher {
	t.Helper()
	f, err := NewFetcher(src, opts, nil)
	require.NoError(t, err)
	return f
}

func TestFetchBuildsHierarchy(t *testing.T) {
	f := newTestFetcher(t, docsSource(), FetchOptions{SpaceKeys: []string{"DOCS"}})

	tree, err := f.Fetch(context.Background())
	require.NoError(t, err)
	require.NoError(t, tree.Validate())
	assert.Equal(t, []string{"DOCS"}, tree.SpaceKeys())
	assert.Equal(t, "confluence", tree.Metadata["source"])

	space := tree.Spaces["DOCS"]
	assert.Equal(t, "Documentation", space.Name)
	require.Len(t, space.Pages, 2)
	home := space.Pages[0]
	assert.Equal(t, "Home", home.Title)
	assert.Equal(t, 4, home.Version)
	assert.Equal(t, "Ann", home.Author)
	assert.Equal(t, "https://wiki.example.com/pages/viewpage.action?pageId=1", home.URL)
	require.Len(t, home.Children, 2)
	assert.Equal(t, "Guide", home.Children[0].Title)
	assert.Equal(t, "3", home.Children[0].Children[0].ID)
	assert.Equal(t, "2", home.Children[0].Children[0].ParentID)

	install := tree.PageByID("3")
	require.Len(t, install.Attachments, 1)
	assert.Equal(t, "3", install.Attachments[0].PageID)
	assert.Equal(t, "image/png", install.Attachments[0].MediaType)

	assert.Equal(t, FetchStats{Spaces: 1, Pages: 6, Attachments: 1}, f.Stats())
}

func TestFetchExcludesTitleSubtrees(t *testing.T) {
	f := newTestFetcher(t, docsSource(), FetchOptions{SpaceKeys: []string{"DOCS"}, ExcludeTitles: []string{"Archive*", "Release Notes"}})

	tree, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Nil(t, tree.PageByID("4"))
	assert.Nil(t, tree.PageByID("5"), "descendant of an excluded page is dropped")
	assert.Nil(t, tree.PageByID("6"))
	assert.Equal(t, 3, f.Stats().ExcludedByTitle)
	assert.Equal(t, 3, f.Stats().Pages)
}

func TestFetchLabelFilterReparents(t *testing.T) {
	f := newTestFetcher(t, docsSource(), FetchOptions{SpaceKeys: []string{"DOCS"}, Labels: []string{"HOWTO"}})

	tree, err := f.Fetch(context.Background())
	require.NoError(t, err)
	require.NoError(t, tree.Validate())
	assert.Nil(t, tree.PageByID("2"), "unlabeled page dropped")

	install := tree.PageByID("3")
	require.NotNil(t, install)
	assert.Equal(t, "1", install.ParentID, "moved up to the nearest kept ancestor")
	assert.Equal(t, "2", install.Metadata["original_parent_id"])
	assert.Equal(t, 1, f.Stats().ExcludedByLabel)
}

func TestFetchAllSpacesIsolatesFailures(t *testing.T) {
	src := docsSource()
	src.failPages["OPS"] = true
	src.failAtt["1"] = true
	f := newTestFetcher(t, src, FetchOptions{})

	tree, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"DOCS"}, tree.SpaceKeys())
	assert.Equal(t, 1, f.Stats().FailedSpaces)
	assert.Empty(t, tree.PageByID("1").Attachments)
	assert.Len(t, src.listed, 6)
}

func TestFetchAllSpacesFailed(t *testing.T) {
	src := docsSource()
	src.failPages["DOCS"] = true
	f := newTestFetcher(t, src, FetchOptions{SpaceKeys: []string{"DOCS", "MISSING"}})

	_, err := f.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no space could be fetched")
}

func TestFetchSkipAttachments(t *testing.T) {
	src := docsSource()
	f := newTestFetcher(t, src, FetchOptions{SpaceKeys: []string{"OPS"}, SkipAttachments: true})

	tree, err := f.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, tree.Statistics().Pages)
	assert.Empty(t, src.listed)
}

func TestFetchCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestFetcher(t, docsSource(), FetchOptions{}).Fetch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewFetcherRejectsBadPattern(t *testing.T) {
	_, err := NewFetcher(newFakeSource(), FetchOptions{ExcludeTitles: []string{"[unclosed"}}, nil)
	assert.Error(t, err)
}

func TestClientDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "ann" || pass != "token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/download/attachments/3/shot one.png" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	c, err := NewClient(ClientConfig{BaseURL: srv.URL + "/", Username: "ann", APIToken: "token"})
	require.NoError(t, err)

	rc, err := c.Download(context.Background(), &model.Attachment{Title: "shot one.png", PageID: "3"})
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(body))

	_, err = c.Download(context.Background(), &model.Attachment{Title: "missing.png", PageID: "3"})
	assert.Error(t, err)
}

func TestNewClientValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
	}{
		{"no base url", ClientConfig{Username: "u", APIToken: "t"}},
		{"no token", ClientConfig{BaseURL: "https://wiki", Username: "u"}},
		{"basic without username", ClientConfig{BaseURL: "https://wiki", APIToken: "t"}},
		{"unknown auth", ClientConfig{BaseURL: "https://wiki", APIToken: "t", AuthType: "oauth"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.cfg)
			assert.Error(t, err)
		})
	}

	c, err := NewClient(ClientConfig{BaseURL: "https://wiki/", APIToken: "t", AuthType: AuthBearer})
	require.NoError(t, err)
	assert.Equal(t, "https://wiki/pages/viewpage.action?pageId=42", c.PageURL("42"))
	assert.Equal(t, "https://wiki/download/attachments/42/a%20b.png", c.DownloadURL("42", "a b.png"))
}
