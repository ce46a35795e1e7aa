// Package progress provides progress display for migration runs.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Reporter receives progress events from the orchestrator.
type Reporter interface {
	PhaseStart(phase string)
	Item(done, total int, title string, failed bool)
	PhaseComplete(phase, summary string)
	PhaseSkipped(phase string)
	PhaseFailed(phase string, err error)
	Warning(msg string)
}

// Display shows progress to the user.
type Display struct {
	out       io.Writer
	phase     string
	startTime time.Time
	quiet     bool
	mu        sync.Mutex
}

// New creates a new progress display writing to w. A nil w writes to stdout.
func New(w io.Writer, quiet bool) *Display {
	if w == nil {
		w = os.Stdout
	}
	return &Display{
		out:       w,
		startTime: time.Now(),
		quiet:     quiet,
	}
}

// PhaseStart announces the start of a phase.
func (d *Display) PhaseStart(phase string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.phase = phase
	d.startTime = time.Now()

	if d.quiet {
		return
	}
	fmt.Fprintf(d.out, "\n🚀 Starting phase: %s\n", phase)
}

// Item reports progress through the items of the current phase.
func (d *Display) Item(done, total int, title string, failed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if failed {
		// Failures are always shown, even in quiet mode.
		fmt.Fprintf(d.out, "❌ [%d/%d] %s failed\n", done, total, title)
		return
	}
	if d.quiet {
		return
	}
	fmt.Fprintf(d.out, "⏳ %s: %d/%d (%s)\n", d.phase, done, total, formatDuration(time.Since(d.startTime)))
}

// PhaseComplete announces phase completion.
func (d *Display) PhaseComplete(phase, summary string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.quiet {
		return
	}
	elapsed := time.Since(d.startTime)
	if summary != "" {
		fmt.Fprintf(d.out, "✅ Phase %s complete: %s (elapsed: %s)\n", phase, summary, formatDuration(elapsed))
		return
	}
	fmt.Fprintf(d.out, "✅ Phase %s complete (elapsed: %s)\n", phase, formatDuration(elapsed))
}

// PhaseSkipped announces a phase reused from a checkpoint.
func (d *Display) PhaseSkipped(phase string) {
	if d.quiet {
		return
	}
	fmt.Fprintf(d.out, "↷  Phase %s already completed, reusing checkpoint result\n", phase)
}

// PhaseFailed announces phase failure. Always shown.
func (d *Display) PhaseFailed(phase string, err error) {
	fmt.Fprintf(d.out, "❌ Phase %s failed: %s\n", phase, err)
}

// Warning prints a warning message.
func (d *Display) Warning(msg string) {
	if d.quiet {
		return
	}
	fmt.Fprintf(d.out, "⚠️  %s\n", msg)
}

// Discard is a Reporter that prints nothing.
type Discard struct{}

func (Discard) PhaseStart(string) {}
func (Discard) Item(int, int, string, bool) {}
func (Discard) PhaseComplete(string, string) {}
func (Discard) PhaseSkipped(string) {}
func (Discard) PhaseFailed(string, error) {}
func (Discard) Warning(string) {}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)

	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
