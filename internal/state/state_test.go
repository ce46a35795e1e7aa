package state

import (
	"errors"
	"testing"
	"time"

	"github.com/9liver/confluence-markdown-migrator-sub001/internal/phase"
)

func TestNew(t *testing.T) {
	s := New([]phase.Key{phase.KeyConversion, phase.KeyMarkdownExport})

	if got := len(s.Phases()); got != 2 {
		t.Fatalf("len(Phases) = %d, want 2", got)
	}
	for _, ps := range s.Phases() {
		if ps.Status != StatusPending {
			t.Errorf("phase %s status = %s, want %s", ps.Key, ps.Status, StatusPending)
		}
	}
}

func TestCompletePhase(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	clock := start
	s := New([]phase.Key{phase.KeyConversion}).WithClock(func() time.Time { return clock })

	if err := s.StartPhase(phase.KeyConversion); err != nil {
		t.Fatalf("StartPhase: %v", err)
	}
	clock = start.Add(3 * time.Second)
	if err := s.CompletePhase(phase.KeyConversion); err != nil {
		t.Fatalf("CompletePhase: %v", err)
	}

	ps := s.Phases()[0]
	if ps.Status != StatusCompleted {
		t.Errorf("status = %s, want %s", ps.Status, StatusCompleted)
	}
	if ps.Duration() != 3*time.Second {
		t.Errorf("duration = %s, want 3s", ps.Duration())
	}
}

func TestFailPhase(t *testing.T) {
	s := New([]phase.Key{phase.KeyWikiJSImport})

	if err := s.FailPhase(phase.KeyWikiJSImport, errors.New("503")); err != nil {
		t.Fatalf("FailPhase: %v", err)
	}
	ps := s.Phases()[0]
	if ps.Status != StatusFailed {
		t.Errorf("status = %s, want %s", ps.Status, StatusFailed)
	}
	if ps.Error != "503" {
		t.Errorf("error = %q, want 503", ps.Error)
	}
}

func TestSingleTransition(t *testing.T) {
	s := New([]phase.Key{phase.KeyVerification})

	if err := s.SkipPhase(phase.KeyVerification); err != nil {
		t.Fatalf("SkipPhase: %v", err)
	}
	if err := s.CompletePhase(phase.KeyVerification); err == nil {
		t.Error("expected error on second transition")
	}
	if err := s.StartPhase(phase.KeyVerification); err == nil {
		t.Error("expected error starting a finished phase")
	}
	if got := s.Status(phase.KeyVerification); got != StatusSkippedResumed {
		t.Errorf("status = %s, want %s", got, StatusSkippedResumed)
	}
}

func TestUnplannedPhase(t *testing.T) {
	s := New([]phase.Key{phase.KeyConversion})

	if err := s.CompletePhase(phase.KeyBookStackImport); err == nil {
		t.Error("expected error for unplanned phase")
	}
}

func TestCount(t *testing.T) {
	s := New([]phase.Key{phase.KeyVerification, phase.KeyConversion, phase.KeyMarkdownExport})
	_ = s.SkipPhase(phase.KeyVerification)
	_ = s.CompletePhase(phase.KeyConversion)

	if got := s.Count(StatusPending); got != 1 {
		t.Errorf("pending = %d, want 1", got)
	}
	if got := s.Count(StatusSkippedResumed); got != 1 {
		t.Errorf("skipped = %d, want 1", got)
	}
}

func TestTerminal(t *testing.T) {
	if StatusPending.Terminal() {
		t.Error("pending should not be terminal")
	}
	for _, st := range []Status{StatusSkippedResumed, StatusCompleted, StatusFailed} {
		if !st.Terminal() {
			t.Errorf("%s should be terminal", st)
		}
	}
}
