// Package rollback undoes the side effects of a failed migration run on a
// best-effort basis.
package rollback

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Stats reports what a component removed during rollback.
type Stats struct {
	Executed bool           `json:"executed"`
	Deleted  map[string]int `json:"deleted,omitempty"`
}

// Total returns the sum of all deleted counts.
func (s Stats) Total() int {
	n := 0
	for _, c := range s.Deleted {
		n += c
	}
	return n
}

// Rollbacker is implemented by components that can undo their own writes.
type Rollbacker interface {
	Name() string
	Rollback(ctx context.Context) (Stats, error)
}

// Outcome is the result of rolling back one component.
type Outcome struct {
	Component string `json:"component"`
	Stats     Stats  `json:"stats"`
	Error     string `json:"error,omitempty"`
}

// Succeeded reports whether the component rolled back without error.
func (o Outcome) Succeeded() bool { return o.Error == "" }

// Summary collects the outcomes of one rollback pass.
type Summary struct {
	Attempted bool          `json:"attempted"`
	Reason    string        `json:"reason,omitempty"`
	Preserved []string      `json:"preserved,omitempty"`
	Outcomes  []Outcome     `json:"outcomes,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Failed returns the number of components whose rollback failed.
func (s *Summary) Failed() int {
	n := 0
	for _, o := range s.Outcomes {
		if !o.Succeeded() {
			n++
		}
	}
	return n
}

// Deleted returns the total number of items removed across components.
func (s *Summary) Deleted() int {
	n := 0
	for _, o := range s.Outcomes {
		n += o.Stats.Total()
	}
	return n
}

// Coordinator invokes rollback on a set of components.
type Coordinator struct {
	logger *slog.Logger
}

// NewCoordinator creates a coordinator. A nil logger uses slog.Default().
func NewCoordinator(logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{logger: logger}
}

// Run calls Rollback exactly once on each component, in the order given.
// Errors and panics from one component are logged and recorded but never
// stop the others and are never returned.
func (c *Coordinator) Run(ctx context.Context, reason string, components ...Rollbacker) *Summary {
	start := time.Now()
	summary := &Summary{Attempted: true, Reason: reason}

	c.logger.Warn("rolling back migration side effects", "reason", reason, "components", len(components))
	for _, comp := range components {
		if comp == nil {
			continue
		}
		out := c.rollbackOne(ctx, comp)
		if out.Succeeded() {
			c.logger.Info("rollback completed", "component", out.Component, "deleted", out.Stats.Total())
		} else {
			c.logger.Warn("rollback failed", "component", out.Component, "error", out.Error)
		}
		summary.Outcomes = append(summary.Outcomes, out)
	}
	summary.Duration = time.Since(start)
	return summary
}

// Preserve records a component that was deliberately not rolled back.
func (s *Summary) Preserve(name string) {
	s.Preserved = append(s.Preserved, name)
}

func (c *Coordinator) rollbackOne(ctx context.Context, comp Rollbacker) (out Outcome) {
	out.Component = comp.Name()
	defer func() {
		if r := recover(); r != nil {
			out.Error = fmt.Sprintf("panic during rollback: %v", r)
		}
	}()
	stats, err := comp.Rollback(ctx)
	out.Stats = stats
	if err != nil {
		out.Error = err.Error()
	}
	return out
}
