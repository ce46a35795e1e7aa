// Package checkpoint persists the documentation tree and the cumulative
// phase results of a run so an interrupted or failed run can resume.
package checkpoint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	migerrors "github.com/9liver/confluence-markdown-migrator-sub001/internal/errors"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/model"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/phase"
	"github.com/9liver/confluence-markdown-migrator-sub001/internal/util"
)

// Version is the checkpoint format version. Checkpoints with any other
// version are rejected.
const Version = "1.0"

// File is the on-disk checkpoint document.
type File struct {
	TreeData     json.RawMessage `json:"tree_data"`
	PhaseResults json.RawMessage `json:"phase_results"`
	Timestamp    time.Time       `json:"timestamp"`
	Version      string          `json:"checkpoint_version"`
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for load warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock sets the time source for checkpoint timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store reads and writes checkpoint files.
type Store struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a checkpoint store.
func NewStore(opts ...Option) *Store {
	s := &Store{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save writes tree and results to path, replacing any previous checkpoint.
// The write is atomic: readers see either the old or the new file.
func (s *Store) Save(tree *model.Tree, results *phase.Results, path string) error {
	treeData, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("encode tree: %w", err)
	}
	if results == nil {
		results = phase.NewResults()
	}
	resultData, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("encode phase results: %w", err)
	}

	data, err := json.MarshalIndent(File{
		TreeData:     treeData,
		PhaseResults: resultData,
		Timestamp:    s.now().UTC(),
		Version:      Version,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	data = append(data, '\n')

	if err := util.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint %s: %w", path, err)
	}
	return nil
}

// Load reads the checkpoint at path.
//
// A version mismatch or unreadable file is returned as an error. If the
// tree cannot be reconstructed, Load returns a nil tree and empty results
// without error so the caller rebuilds the tree from the source.
func (s *Store) Load(path string) (*model.Tree, *phase.Results, error) {
	f, err := s.read(path)
	if err != nil {
		return nil, nil, err
	}

	tree, err := decodeTree(f.TreeData)
	if err != nil {
		s.logger.Warn("checkpoint tree could not be reconstructed; tree must be rebuilt",
			"path", path, "error", err)
		return nil, phase.NewResults(), nil
	}

	results := phase.NewResults()
	if len(f.PhaseResults) > 0 {
		if err := json.Unmarshal(f.PhaseResults, results); err != nil {
			s.logger.Warn("checkpoint phase results could not be decoded; tree must be rebuilt",
				"path", path, "error", err)
			return nil, phase.NewResults(), nil
		}
	}
	return tree, results, nil
}

// Info summarizes a checkpoint without reconstructing it fully.
type Info struct {
	Path      string
	Version   string
	Timestamp time.Time
	Phases    []phase.Key
	Tree      *model.Statistics
	TreeError string
}

// Inspect reads a checkpoint and reports what it contains.
func (s *Store) Inspect(path string) (*Info, error) {
	tree, results, err := s.Load(path)
	if err != nil {
		return nil, err
	}
	f, err := s.read(path)
	if err != nil {
		return nil, err
	}
	info := &Info{
		Path:      path,
		Version:   f.Version,
		Timestamp: f.Timestamp,
		Phases:    results.Keys(),
	}
	if tree != nil {
		st := tree.Statistics()
		info.Tree = &st
	} else {
		info.TreeError = "tree could not be reconstructed"
	}
	return info, nil
}

func (s *Store) read(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, migerrors.ErrCheckpointUnreadable(path).WithCause(err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, migerrors.ErrCheckpointUnreadable(path).WithCause(err)
	}
	if f.Version != Version {
		return nil, migerrors.ErrCheckpointVersion(path, f.Version, Version)
	}
	return &f, nil
}

func decodeTree(data json.RawMessage) (*model.Tree, error) {
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil, fmt.Errorf("checkpoint has no tree")
	}
	var tree model.Tree
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	if tree.Spaces == nil {
		tree.Spaces = make(map[string]*model.Space)
	}
	if tree.Metadata == nil {
		tree.Metadata = make(map[string]any)
	}
	if err := tree.Validate(); err != nil {
		return nil, err
	}
	return &tree, nil
}
