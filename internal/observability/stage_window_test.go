package observability

import (
	"testing"
	"time"
)

func TestStageWindowSnapshot(t *testing.T) {
	w := newStageWindow(8)
	w.observe("reply_to_audio_start", 500)
	w.observe("reply_to_audio_start", 700)
	w.observe("reply_to_audio_start", 1900)
	w.count("turn_in_flight_rejected")
	w.count("turn_in_flight_rejected")
	w.count("  ")

	snap := w.snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Samples != 3 || s.LastMS != 1900 {
		t.Fatalf("Samples/LastMS = %d/%.2f, want 3/1900", s.Samples, s.LastMS)
	}
	if s.P50MS != 700 {
		t.Fatalf("P50MS = %.2f, want 700", s.P50MS)
	}
	if s.P95MS <= 700 || s.P95MS > 1900 {
		t.Fatalf("P95MS = %.2f, want (700,1900]", s.P95MS)
	}
	if s.TargetP95MS != 1500 || s.OverTarget != 1 || !s.Breaching {
		t.Fatalf("target accounting = %+v", s)
	}
	if len(snap.Indicators) != 1 || snap.Indicators[0].Count != 2 {
		t.Fatalf("Indicators = %+v, want one with count 2", snap.Indicators)
	}
}

func TestStageWindowWrapsAround(t *testing.T) {
	w := newStageWindow(2)
	w.observe("assessment", 100)
	w.observe("assessment", 200)
	w.observe("assessment", 300)

	s := w.snapshot().Stages[0]
	if s.Samples != 2 {
		t.Fatalf("Samples = %d, want 2", s.Samples)
	}
	if s.AvgMS != 250 {
		t.Fatalf("AvgMS = %.2f, want 250 (oldest sample evicted)", s.AvgMS)
	}
	if s.Breaching {
		t.Fatalf("assessment at 300ms should be within target")
	}
}

func TestUnknownStageHasNoTarget(t *testing.T) {
	w := newStageWindow(4)
	w.observe("custom", 50)
	w.observe("", 50)
	w.observe("custom", -1)
	snap := w.snapshot()
	if len(snap.Stages) != 1 || snap.Stages[0].TargetP95MS != 0 || snap.Stages[0].Samples != 1 {
		t.Fatalf("snapshot = %+v", snap.Stages)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveTurn("en", "ok")
	m.ObserveCacheLookup("patients", true)
	m.ObserveStage("turn_to_reply", time.Second)
	m.ObserveIndicator("x")
	if snap := m.SnapshotStages(); len(snap.Stages) != 0 {
		t.Fatalf("nil metrics snapshot should be empty, got %+v", snap)
	}
}
