package bookstack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/9liver/confluence-markdown-migrator-sub001/internal/model"
)

type call struct {
	method string
	path   string
	body   map[string]any
}

// fakeBookStack records every API call and hands out sequential ids.
type fakeBookStack struct {
	mu        sync.Mutex
	nextID    int
	calls     []call
	auth      string
	throttle  int             // respond 429 to this many requests
	rejectRaw map[string]bool // names whose create fails with 422
	uploads   int
}

func newFakeBookStack() *fakeBookStack {
	return &fakeBookStack{nextID: 1, rejectRaw: make(map[string]bool)}
}

func (f *fakeBookStack) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auth = r.Header.Get("Authorization")

	if f.throttle > 0 {
		f.throttle--
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}

	c := call{method: r.Method, path: strings.TrimPrefix(r.URL.Path, "/api")}
	if r.URL.Path == "/api/attachments" {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.uploads++
		c.body = map[string]any{"name": r.FormValue("name"), "uploaded_to": r.FormValue("uploaded_to")}
	} else if r.Body != nil && r.Method == http.MethodPost {
		_ = json.NewDecoder(r.Body).Decode(&c.body)
	}
	f.calls = append(f.calls, c)

	if r.Method == http.MethodDelete {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if name, _ := c.body["name"].(string); f.rejectRaw[name] {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"error":{"code":422,"message":"The given data was invalid."}}`)
		return
	}
	fmt.Fprintf(w, `{"id":%d}`, f.nextID)
	f.nextID++
}

func (f *fakeBookStack) creates(kind string) []call {
	var out []call
	for _, c := range f.calls {
		if c.method == http.MethodPost && c.path == "/"+kind {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeBookStack) deletes() []string {
	var out []string
	for _, c := range f.calls {
		if c.method == http.MethodDelete {
			out = append(out, c.path)
		}
	}
	return out
}

func newTestClient(t *testing.T, f *fakeBookStack) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	c, err := NewClient(ClientConfig{BaseURL: srv.URL, TokenID: "id", TokenSecret: "secret", MaxRetries: 2}, nil)
	require.NoError(t, err)
	c.retryWait = 0
	return c
}

// bookTree has one space with a section (Guide with two levels below it)
// and a standalone page.
func bookTree() *model.Tree {
	tree := model.NewTree()
	space := &model.Space{Key: "DOCS", Name: "Documentation"}
	guide := &model.Page{ID: "1", Title: "Guide", Markdown: "# Guide\n", Labels: []string{"howto", "confluence:internal"}}
	install := &model.Page{ID: "2", Title: "Install", Markdown: "# Install\n"}
	linux := &model.Page{ID: "3", Title: "Linux", Markdown: "# Linux\n"}
	space.AddPage(guide)
	guide.AddChild(install)
	install.AddChild(linux)
	space.AddPage(&model.Page{ID: "4", Title: "FAQ", Markdown: "# FAQ\n"})
	tree.AddSpace(space)
	return tree
}

func TestImportPagesMapsHierarchy(t *testing.T) {
	f := newFakeBookStack()
	im := NewImporter(newTestClient(t, f), bookTree(), Options{ShelfName: "Confluence", PreservePageIDs: true}, nil)

	stats, err := im.ImportPages(context.Background(), nil, false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Books)
	assert.Equal(t, 1, stats.Chapters)
	assert.Equal(t, 4, stats.Pages)
	assert.Equal(t, 1, stats.Shelves)
	assert.Equal(t, "Token id:secret", f.auth)

	books := f.creates("books")
	require.Len(t, books, 1)
	assert.Equal(t, "Documentation", books[0].body["name"])

	chapters := f.creates("chapters")
	require.Len(t, chapters, 1)
	assert.Equal(t, "Guide", chapters[0].body["name"])
	assert.EqualValues(t, 1, chapters[0].body["book_id"])

	pages := f.creates("pages")
	require.Len(t, pages, 4)
	// section root and its flattened descendants live in the chapter
	for _, p := range pages[:3] {
		assert.EqualValues(t, 2, p.body["chapter_id"], p.body["name"])
	}
	assert.EqualValues(t, 1, pages[3].body["book_id"])
	assert.Equal(t, []any{
		map[string]any{"name": "howto"},
		map[string]any{"name": "confluence-id", "value": "1"},
	}, pages[0].body["tags"])

	shelves := f.creates("shelves")
	require.Len(t, shelves, 1)
	assert.Equal(t, []any{float64(1)}, shelves[0].body["books"])
}

func TestImportPagesSelection(t *testing.T) {
	f := newFakeBookStack()
	im := NewImporter(newTestClient(t, f), bookTree(), Options{}, nil)

	stats, err := im.ImportPages(context.Background(), []string{"3"}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pages)
	assert.Equal(t, 1, stats.Chapters, "chapter is created for a selected descendant")
	pages := f.creates("pages")
	require.Len(t, pages, 1)
	assert.Equal(t, "Linux", pages[0].body["name"])
}

func TestImportPagesDryRun(t *testing.T) {
	f := newFakeBookStack()
	im := NewImporter(newTestClient(t, f), bookTree(), Options{ShelfName: "S"}, nil)

	stats, err := im.ImportPages(context.Background(), nil, true)
	require.NoError(t, err)
	assert.True(t, stats.DryRun)
	assert.Equal(t, 4, stats.Pages)
	assert.Equal(t, 1, stats.Books)
	assert.Empty(t, f.calls)

	rb, err := im.Rollback(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rb.Total())
}

func TestImportPagesFailures(t *testing.T) {
	f := newFakeBookStack()
	f.rejectRaw["Install"] = true
	tree := bookTree()
	tree.PageByID("4").Markdown = ""

	stats, err := NewImporter(newTestClient(t, f), tree, Options{}, nil).ImportPages(context.Background(), nil, false)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Pages)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Skipped)
	require.Len(t, stats.Errors, 1)
	assert.Equal(t, "2", stats.Errors[0].PageID)
	assert.Contains(t, stats.Errors[0].Message, "422")

	f = newFakeBookStack()
	f.rejectRaw["Documentation"] = true
	stats, err = NewImporter(newTestClient(t, f), bookTree(), Options{}, nil).ImportPages(context.Background(), nil, false)
	require.Error(t, err)
	assert.Equal(t, 4, stats.Failed)
	assert.Zero(t, stats.Books)
}

func TestImportPagesUploadsAttachments(t *testing.T) {
	dir := t.TempDir()
	tree := bookTree()
	faq := tree.PageByID("4")
	for i := range 5 {
		path := filepath.Join(dir, "file"+strconv.Itoa(i)+".txt")
		require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
		faq.Attachments = append(faq.Attachments, &model.Attachment{ID: strconv.Itoa(i), Title: filepath.Base(path), LocalPath: path})
	}
	faq.Attachments = append(faq.Attachments, &model.Attachment{ID: "x", Title: "skipped.bin", LocalPath: "/nope", Excluded: true})

	f := newFakeBookStack()
	stats, err := NewImporter(newTestClient(t, f), tree, Options{UploadWorkers: 2}, nil).
		ImportPages(context.Background(), []string{"4"}, false)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Images)
	assert.Equal(t, 5, f.uploads)
}

func TestRollbackOrder(t *testing.T) {
	f := newFakeBookStack()
	im := NewImporter(newTestClient(t, f), bookTree(), Options{ShelfName: "Confluence"}, nil)
	_, err := im.ImportPages(context.Background(), nil, false)
	require.NoError(t, err)

	rb, err := im.Rollback(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{KindPages: 4, KindChapters: 1, KindBooks: 1, KindShelves: 1}, rb.Deleted)

	// ids: book 1, chapter 2, pages 3..6, shelf 7
	assert.Equal(t, []string{
		"/pages/6", "/pages/5", "/pages/4", "/pages/3",
		"/chapters/2", "/books/1", "/shelves/7",
	}, f.deletes())

	rb, err = im.Rollback(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rb.Total(), "rollback forgets what it deleted")
}

func TestClientRateLimit(t *testing.T) {
	f := newFakeBookStack()
	f.throttle = 2
	c := newTestClient(t, f)

	id, err := c.CreateBook(context.Background(), "B", "")
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	f.throttle = 10
	_, err = c.CreateBook(context.Background(), "C", "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(ClientConfig{TokenID: "a", TokenSecret: "b"}, nil)
	assert.Error(t, err)
	_, err = NewClient(ClientConfig{BaseURL: "http://x", TokenID: "a"}, nil)
	assert.Error(t, err)
}
