package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree() *Tree {
	tree := NewTree()
	docs := &Space{Key: "DOCS", Name: "Documentation"}
	root := &Page{ID: "1", Title: "Home"}
	docs.AddPage(root)
	guide := &Page{ID: "2", Title: "Guide"}
	root.AddChild(guide)
	guide.AddChild(&Page{ID: "3", Title: "Install", Attachments: []*Attachment{{ID: "a1", Title: "diagram.png"}}})
	root.AddChild(&Page{ID: "4", Title: "FAQ"})
	tree.AddSpace(docs)

	ops := &Space{Key: "OPS", Name: "Operations"}
	ops.AddPage(&Page{ID: "1", Title: "Runbook"})
	tree.AddSpace(ops)
	return tree
}

func TestAllPagesDepthFirst(t *testing.T) {
	tree := sampleTree()

	var ids []string
	for _, p := range tree.AllPages() {
		ids = append(ids, p.SpaceKey+"/"+p.ID)
	}

	assert.Equal(t, []string{"DOCS/1", "DOCS/2", "DOCS/3", "DOCS/4", "OPS/1"}, ids)
}

func TestAddChildSetsParent(t *testing.T) {
	tree := sampleTree()
	install := tree.PageByID("3")
	require.NotNil(t, install)

	assert.Equal(t, "2", install.ParentID)
	assert.Equal(t, "DOCS", install.SpaceKey)
}

func TestStatistics(t *testing.T) {
	st := sampleTree().Statistics()

	assert.Equal(t, 2, st.Spaces)
	assert.Equal(t, 5, st.Pages)
	assert.Equal(t, 1, st.Attachments)
	assert.Equal(t, 3, st.MaxDepth)
}

func TestIndexKeysBySpace(t *testing.T) {
	idx := sampleTree().Index()

	assert.Len(t, idx, 5)
	assert.Equal(t, "Home", idx["DOCS/1"].Title)
	assert.Equal(t, "Runbook", idx["OPS/1"].Title)
}

func TestWalkStopsEarly(t *testing.T) {
	visited := 0
	sampleTree().Walk(func(_ *Space, _ *Page, _ int) bool {
		visited++
		return visited < 2
	})
	assert.Equal(t, 2, visited)
}

func TestValidate(t *testing.T) {
	t.Run("valid tree", func(t *testing.T) {
		assert.NoError(t, sampleTree().Validate())
	})

	t.Run("duplicate id within space", func(t *testing.T) {
		tree := sampleTree()
		tree.Spaces["DOCS"].AddPage(&Page{ID: "2", Title: "Dup"})
		err := tree.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidTree))
		assert.Contains(t, err.Error(), "duplicate page id 2")
	})

	t.Run("shared child", func(t *testing.T) {
		tree := sampleTree()
		shared := tree.PageByID("4")
		guide := tree.PageByID("2")
		guide.Children = append(guide.Children, shared)
		err := tree.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "owned more than once")
	})

	t.Run("cycle", func(t *testing.T) {
		tree := sampleTree()
		install := tree.PageByID("3")
		install.Children = append(install.Children, tree.PageByID("1"))
		assert.Error(t, tree.Validate())
	})

	t.Run("mismatched parent id", func(t *testing.T) {
		tree := sampleTree()
		tree.PageByID("4").ParentID = "2"
		err := tree.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "owned by \"1\"")
	})
}

func TestMaxDepthEmpty(t *testing.T) {
	assert.Equal(t, 0, NewTree().MaxDepth())
}
