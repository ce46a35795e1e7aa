package rollback

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeComponent struct {
	name    string
	calls   int
	deleted int
	err     error
	panics  bool
}

func (f *fakeComponent) Name() string { return f.name }

func (f *fakeComponent) Rollback(context.Context) (Stats, error) {
	f.calls++
	if f.panics {
		panic("rollback exploded")
	}
	if f.err != nil {
		return Stats{Executed: true}, f.err
	}
	return Stats{Executed: true, Deleted: map[string]int{"pages": f.deleted}}, nil
}

func TestRunCallsEveryComponentOnce(t *testing.T) {
	wiki := &fakeComponent{name: "wikijs", deleted: 3}
	book := &fakeComponent{name: "bookstack", deleted: 2}

	summary := NewCoordinator(nil).Run(context.Background(), "import failed", wiki, book)

	assert.Equal(t, 1, wiki.calls)
	assert.Equal(t, 1, book.calls)
	assert.True(t, summary.Attempted)
	assert.Equal(t, "import failed", summary.Reason)
	assert.Equal(t, 5, summary.Deleted())
	assert.Equal(t, 0, summary.Failed())
}

func TestRunContinuesAfterFailure(t *testing.T) {
	failing := &fakeComponent{name: "markdown", err: errors.New("permission denied")}
	panicking := &fakeComponent{name: "wikijs", panics: true}
	healthy := &fakeComponent{name: "bookstack", deleted: 1}

	summary := NewCoordinator(nil).Run(context.Background(), "boom", failing, panicking, healthy)

	require.Len(t, summary.Outcomes, 3)
	assert.Equal(t, 1, healthy.calls)
	assert.Equal(t, 2, summary.Failed())
	assert.Equal(t, "permission denied", summary.Outcomes[0].Error)
	assert.Contains(t, summary.Outcomes[1].Error, "rollback exploded")
	assert.True(t, summary.Outcomes[2].Succeeded())
}

func TestRunSkipsNil(t *testing.T) {
	summary := NewCoordinator(nil).Run(context.Background(), "x", nil, &fakeComponent{name: "a"})
	assert.Len(t, summary.Outcomes, 1)
}

func TestPreserve(t *testing.T) {
	summary := NewCoordinator(nil).Run(context.Background(), "import failed")
	summary.Preserve("markdown_export")
	assert.Equal(t, []string{"markdown_export"}, summary.Preserved)
}

func TestStatsTotal(t *testing.T) {
	s := Stats{Deleted: map[string]int{"pages": 4, "chapters": 2, "books": 1}}
	assert.Equal(t, 7, s.Total())
}
