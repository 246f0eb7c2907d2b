package stats

import (
	"testing"
	"time"
)

func TestAvgPerSec(t *testing.T) {
	t.Parallel()

	h := OverSecs(3)
	h.Increment(30)
	h.Increment(30)
	h.Increment(30)

	avg := h.AvgPerSec()
	if avg != 30 {
		t.Fatalf("AvgPerSec() = %d, want 30", avg)
	}
}

func TestCleanDoesNotPruneBeforeDoubleWindow(t *testing.T) {
	t.Parallel()

	h := OverSecs(1)
	h.samples = append(h.samples, sample{at: time.Now().Add(-1500 * time.Millisecond), amount: 5})
	h.Clean()

	if len(h.samples) != 1 {
		t.Fatalf("expected sample to survive Clean before 2x window elapses, got %d samples", len(h.samples))
	}
}

func TestCleanPrunesAfterDoubleWindow(t *testing.T) {
	t.Parallel()

	h := OverSecs(1)
	h.samples = append(h.samples,
		sample{at: time.Now().Add(-3 * time.Second), amount: 5},
		sample{at: time.Now(), amount: 7},
	)
	h.Clean()

	if len(h.samples) != 1 {
		t.Fatalf("expected old sample pruned, got %d samples", len(h.samples))
	}
	if h.samples[0].amount != 7 {
		t.Fatalf("expected the recent sample to survive, got amount %d", h.samples[0].amount)
	}
}
