package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestPhaseStart(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf, false)

	d.PhaseStart("content_conversion")

	if d.phase != "content_conversion" {
		t.Errorf("phase = %s, want content_conversion", d.phase)
	}
	if !strings.Contains(buf.String(), "Starting phase: content_conversion") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestQuietSuppressesProgress(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf, true)

	d.PhaseStart("markdown_export")
	d.Item(10, 30, "Page", false)
	d.PhaseComplete("markdown_export", "30 exported")
	d.PhaseSkipped("integrity_verification")
	d.Warning("careful")

	if buf.Len() != 0 {
		t.Errorf("quiet display wrote %q", buf.String())
	}
}

func TestFailuresAlwaysShown(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf, true)

	d.Item(3, 10, "Broken page", true)
	d.PhaseFailed("wikijs_import", testError("401"))

	out := buf.String()
	if !strings.Contains(out, "[3/10] Broken page failed") {
		t.Errorf("missing item failure in %q", out)
	}
	if !strings.Contains(out, "Phase wikijs_import failed: 401") {
		t.Errorf("missing phase failure in %q", out)
	}
}

func TestPhaseCompleteSummary(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf, false)
	d.PhaseStart("content_conversion")
	d.PhaseComplete("content_conversion", "3 processed")

	if !strings.Contains(buf.String(), "Phase content_conversion complete: 3 processed") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestDiscardImplementsReporter(t *testing.T) {
	var r Reporter = Discard{}
	r.PhaseStart("x")
	r.Item(1, 1, "y", true)
	r.PhaseFailed("x", testError("z"))
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{0, "0s"},
		{30 * time.Second, "30s"},
		{90 * time.Second, "1m30s"},
		{65 * time.Minute, "1h5m0s"},
	}

	for _, tt := range tests {
		result := formatDuration(tt.duration)
		if result != tt.expected {
			t.Errorf("formatDuration(%v) = %s, want %s", tt.duration, result, tt.expected)
		}
	}
}

type testError string

func (e testError) Error() string { return string(e) }
