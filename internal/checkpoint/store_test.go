package checkpoint

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	migerrors "github.com/9liver/confluence-markdown-migrator-sub001/internal/errors"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/model"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/phase"
)

func buildTree() *model.Tree {
	tree := model.NewTree()
	space := &model.Space{Key: "ENG", Name: "Engineering"}
	root := &model.Page{ID: "100", Title: "Root", Content: "<p>root</p>"}
	space.AddPage(root)
	child := &model.Page{ID: "101", Title: "Child", Markdown: "# Child\n", Conversion: model.ConversionResult{Status: model.ConversionSuccess}}
	root.AddChild(child)
	child.AddChild(&model.Page{ID: "102", Title: "Grandchild"})
	tree.AddSpace(space)
	tree.AddSpace(&model.Space{Key: "HR", Name: "People", Pages: []*model.Page{{ID: "200", Title: "Policies", SpaceKey: "HR"}}})
	return tree
}

func buildResults() *phase.Results {
	rs := phase.NewResults()
	conv := phase.NewConversionResult()
	conv.Processed, conv.Succeeded = 4, 4
	_ = rs.Set(phase.NewVerificationResult(&model.IntegrityReport{Summary: model.IntegritySummary{Score: 0.8, ChecksPerformed: 3, ChecksPassed: 2}}, 0.5))
	_ = rs.Set(conv)
	return rs
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "checkpoint.json")
	store := NewStore()
	tree := buildTree()
	results := buildResults()

	require.NoError(t, store.Save(tree, results, path))

	loaded, loadedResults, err := store.Load(path)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, tree.SpaceKeys(), loaded.SpaceKeys())
	var wantIDs, gotIDs []string
	for _, p := range tree.AllPages() {
		wantIDs = append(wantIDs, p.ID)
	}
	for _, p := range loaded.AllPages() {
		gotIDs = append(gotIDs, p.ID)
	}
	assert.Equal(t, wantIDs, gotIDs)
	assert.Equal(t, tree.MaxDepth(), loaded.MaxDepth())
	assert.Equal(t, "# Child\n", loaded.PageByID("101").Markdown)
	assert.Equal(t, "101", loaded.PageByID("102").ParentID)

	assert.Equal(t, results.Keys(), loadedResults.Keys())
	want, _ := results.Get(phase.KeyConversion)
	got, _ := loadedResults.Get(phase.KeyConversion)
	assert.Equal(t, want, got)
}

func TestSaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.json")
	store := NewStore()
	tree := buildTree()

	first := phase.NewResults()
	_ = first.Set(phase.NewConversionResult())
	require.NoError(t, store.Save(tree, first, path))

	second := first.Clone()
	_ = second.Set(phase.NewExportResult("out"))
	require.NoError(t, store.Save(tree, second, path))

	_, loaded, err := store.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []phase.Key{phase.KeyConversion, phase.KeyMarkdownExport}, loaded.Keys())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestSaveRecordsVersionAndTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.json")
	ts := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
	store := NewStore(WithClock(func() time.Time { return ts }))

	require.NoError(t, store.Save(buildTree(), nil, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var f File
	require.NoError(t, json.Unmarshal(data, &f))
	assert.Equal(t, Version, f.Version)
	assert.True(t, ts.Equal(f.Timestamp))
}

func TestLoadVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"tree_data":{"spaces":{}},"phase_results":{},"timestamp":"2024-01-01T00:00:00Z","checkpoint_version":"0.9"}`), 0o644))

	tree, results, err := NewStore().Load(path)

	require.Error(t, err)
	assert.True(t, errors.Is(err, migerrors.ErrCheckpointVersion("", "", "")))
	assert.Nil(t, tree)
	assert.Nil(t, results)
}

func TestLoadMissingFile(t *testing.T) {
	_, _, err := NewStore().Load(filepath.Join(t.TempDir(), "absent.json"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, migerrors.ErrCheckpointUnreadable("")))
}

func TestLoadBrokenTree(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	path := filepath.Join(t.TempDir(), "cp.json")
	// Page 2 claims parent 9 while owned by page 1.
	doc := `{
	  "tree_data": {"spaces": {"A": {"key": "A", "name": "A", "pages": [
	    {"id": "1", "title": "one", "space_key": "A", "conversion": {"status": "success"},
	     "children": [{"id": "2", "title": "two", "space_key": "A", "parent_id": "9", "conversion": {"status": "success"}}]}
	  ]}}},
	  "phase_results": {"content_conversion": {"processed": 2, "success": 2, "failed": 0, "partial": 0}},
	  "timestamp": "2024-01-01T00:00:00Z",
	  "checkpoint_version": "1.0"
	}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	tree, results, err := NewStore(WithLogger(logger)).Load(path)

	require.NoError(t, err)
	assert.Nil(t, tree)
	require.NotNil(t, results)
	assert.Equal(t, 0, results.Len())
	assert.Contains(t, logs.String(), "tree could not be reconstructed")
}

func TestInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.json")
	store := NewStore()
	require.NoError(t, store.Save(buildTree(), buildResults(), path))

	info, err := store.Inspect(path)
	require.NoError(t, err)

	assert.Equal(t, Version, info.Version)
	assert.Equal(t, []phase.Key{phase.KeyVerification, phase.KeyConversion}, info.Phases)
	require.NotNil(t, info.Tree)
	assert.Equal(t, 4, info.Tree.Pages)
	assert.Equal(t, 2, info.Tree.Spaces)
}
