// Package stats provides the rolling historical per-second counter used by
// the bandwidth-recording transport wrapper.
package stats

import (
	"sort"
	"time"
)

type sample struct {
	at     time.Time
	amount uint64
}

// Historical is a sorted (Instant -> count) series used to compute a
// trailing average rate. Pruning only runs once the oldest sample is more
// than twice the retention window old, so it stays cheap on the hot path.
type Historical struct {
	samples []sample
	keepFor time.Duration
}

// OverSecs returns a Historical retaining a rolling window of secs seconds.
func OverSecs(secs uint64) *Historical {
	return &Historical{keepFor: time.Duration(secs) * time.Second}
}

// Increment records amount at the current time.
func (h *Historical) Increment(amount uint64) {
	h.samples = append(h.samples, sample{at: time.Now(), amount: amount})
}

// Clean prunes samples older than the window, but only once the oldest
// sample is more than 2x the window old (bulk, infrequent pruning).
func (h *Historical) Clean() {
	if len(h.samples) == 0 {
		return
	}
	if time.Since(h.samples[0].at) < h.keepFor*2 {
		return
	}

	cutoff := time.Now().Add(-h.keepFor)
	idx := sort.Search(len(h.samples), func(i int) bool {
		return h.samples[i].at.After(cutoff) || h.samples[i].at.Equal(cutoff)
	})
	h.samples = h.samples[idx:]
}

// AvgPerSec returns the sum of samples within the last keepFor divided by
// keepFor in whole seconds.
func (h *Historical) AvgPerSec() uint64 {
	secs := uint64(h.keepFor / time.Second)
	if secs == 0 {
		return 0
	}

	cutoff := time.Now().Add(-h.keepFor)
	var total uint64
	for _, s := range h.samples {
		if s.at.After(cutoff) || s.at.Equal(cutoff) {
			total += s.amount
		}
	}
	return total / secs
}
