// Package state tracks the execution state of each phase in a migration run.
package state

import (
	"fmt"
	"time"

	"github.com/9liver/confluence-markdown-migrator-sub001/internal/phase"
)

// Status represents the execution status of a phase.
type Status string

const (
	StatusPending        Status = "pending"
	StatusSkippedResumed Status = "skipped_resumed"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
)

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	return s == StatusSkippedResumed || s == StatusCompleted || s == StatusFailed
}

// PhaseState represents the state of a single phase.
type PhaseState struct {
	Key         phase.Key  `json:"key"`
	Status      Status     `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Duration returns how long the phase ran, zero if it never started.
func (ps *PhaseState) Duration() time.Duration {
	if ps.StartedAt == nil || ps.CompletedAt == nil {
		return 0
	}
	return ps.CompletedAt.Sub(*ps.StartedAt)
}

// State holds the planned phases of one run. Each phase moves from pending
// to exactly one terminal status.
type State struct {
	order  []phase.Key
	phases map[phase.Key]*PhaseState
	now    func() time.Time
}

// New creates a state with every planned phase pending.
func New(plan []phase.Key) *State {
	s := &State{
		phases: make(map[phase.Key]*PhaseState, len(plan)),
		now:    time.Now,
	}
	for _, k := range plan {
		if _, dup := s.phases[k]; dup {
			continue
		}
		s.order = append(s.order, k)
		s.phases[k] = &PhaseState{Key: k, Status: StatusPending}
	}
	return s
}

// WithClock replaces the time source.
func (s *State) WithClock(now func() time.Time) *State {
	s.now = now
	return s
}

// StartPhase stamps the start time of a pending phase. The status stays
// pending until the phase reaches a terminal status.
func (s *State) StartPhase(k phase.Key) error {
	ps, err := s.pending(k)
	if err != nil {
		return err
	}
	now := s.now()
	ps.StartedAt = &now
	return nil
}

// CompletePhase marks a phase as completed.
func (s *State) CompletePhase(k phase.Key) error {
	return s.finish(k, StatusCompleted, "")
}

// FailPhase marks a phase as failed.
func (s *State) FailPhase(k phase.Key, err error) error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return s.finish(k, StatusFailed, msg)
}

// SkipPhase marks a phase as reused from an earlier run.
func (s *State) SkipPhase(k phase.Key) error {
	return s.finish(k, StatusSkippedResumed, "")
}

func (s *State) finish(k phase.Key, status Status, msg string) error {
	ps, err := s.pending(k)
	if err != nil {
		return err
	}
	now := s.now()
	ps.Status = status
	ps.CompletedAt = &now
	ps.Error = msg
	return nil
}

func (s *State) pending(k phase.Key) (*PhaseState, error) {
	ps, ok := s.phases[k]
	if !ok {
		return nil, fmt.Errorf("phase %s is not part of this run", k)
	}
	if ps.Status != StatusPending {
		return nil, fmt.Errorf("phase %s already %s", k, ps.Status)
	}
	return ps, nil
}

// Status returns the status of k, or pending if k is not planned.
func (s *State) Status(k phase.Key) Status {
	if ps, ok := s.phases[k]; ok {
		return ps.Status
	}
	return StatusPending
}

// Phases returns copies of the phase states in plan order.
func (s *State) Phases() []PhaseState {
	out := make([]PhaseState, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, *s.phases[k])
	}
	return out
}

// Count returns how many phases currently have status st.
func (s *State) Count(st Status) int {
	n := 0
	for _, ps := range s.phases {
		if ps.Status == st {
			n++
		}
	}
	return n
}
