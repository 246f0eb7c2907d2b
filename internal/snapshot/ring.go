// Package snapshot implements the exponential-retention kept-set algorithm
// (KeptSet) and the Ring of confirmed-state snapshots it governs.
package snapshot

import (
	"sort"

	"github.com/lockstepnet/rbrb/internal/coretypes"
)

// Ring holds confirmed-state snapshots keyed by frame, pruned to whatever
// KeptSet of the current unconfirmed horizon specifies. Frame(0) is always
// retained regardless of the kept-set.
type Ring struct {
	byFrame map[coretypes.Frame][]byte
}

// New returns an empty Ring.
func New() *Ring {
	return &Ring{byFrame: make(map[coretypes.Frame][]byte)}
}

// IsEmpty reports whether no snapshot has ever been saved.
func (r *Ring) IsEmpty() bool {
	return len(r.byFrame) == 0
}

// Has reports whether frame has a saved snapshot.
func (r *Ring) Has(frame coretypes.Frame) bool {
	_, ok := r.byFrame[frame]
	return ok
}

// Save records bytes as the snapshot for frame.
func (r *Ring) Save(frame coretypes.Frame, bytes []byte) {
	r.byFrame[frame] = bytes
}

// ShouldSave reports whether frame belongs to the kept-set of unconfirmed
// and doesn't already have a stored snapshot.
func (r *Ring) ShouldSave(frame, unconfirmed coretypes.Frame) bool {
	if r.Has(frame) {
		return false
	}
	kept := KeptSet(uint32(unconfirmed))
	_, in := kept[uint32(frame)]
	return in
}

// Purge discards every snapshot whose frame is not Frame(0) and not a
// member of the kept-set of unconfirmed.
func (r *Ring) Purge(unconfirmed coretypes.Frame) {
	kept := KeptSet(uint32(unconfirmed))
	for frame := range r.byFrame {
		if frame == 0 {
			continue
		}
		if _, ok := kept[uint32(frame)]; !ok {
			delete(r.byFrame, frame)
		}
	}
}

// GreatestAtOrBefore returns the greatest stored frame <= target, used to
// pick a rollback point for navigate_to.
func (r *Ring) GreatestAtOrBefore(target coretypes.Frame) (coretypes.Frame, []byte, bool) {
	frames := make([]coretypes.Frame, 0, len(r.byFrame))
	for f := range r.byFrame {
		if f <= target {
			frames = append(frames, f)
		}
	}
	if len(frames) == 0 {
		return 0, nil, false
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i] < frames[j] })
	best := frames[len(frames)-1]
	return best, r.byFrame[best], true
}
