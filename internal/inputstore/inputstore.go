// Package inputstore holds each player's per-frame serialized input in a
// sparse, sorted structure with hold-last reads, confirmation tagging, and
// compaction of redundant entries.
package inputstore

import (
	"sort"

	"github.com/lockstepnet/rbrb/internal/coretypes"
)

// Store holds sparse per-player input maps for one session.
type Store struct {
	byPlayer map[coretypes.PlayerId]*sparseInputs
	// defaultInput is the host-supplied blob used as every player's value
	// at Frame(0), giving hold-last a defined starting point.
	defaultInput []byte
}

// New returns a Store using defaultInput as the Frame(0) value for every
// player first referenced.
func New(defaultInput []byte) *Store {
	return &Store{
		byPlayer:     make(map[coretypes.PlayerId]*sparseInputs),
		defaultInput: defaultInput,
	}
}

func (s *Store) playerMut(id coretypes.PlayerId) *sparseInputs {
	sp, ok := s.byPlayer[id]
	if !ok {
		sp = newSparseInputs()
		cp := make([]byte, len(s.defaultInput))
		copy(cp, s.defaultInput)
		sp.entries = append(sp.entries, entry{frame: 0, value: cp})
		s.byPlayer[id] = sp
	}
	return sp
}

// CaptureInto reserves a slot for the local player's input at frame,
// running compaction first, and reports whether a slot was reserved. A
// fresh reservation holds an empty buffer until SetCaptured fills it.
// Returns false if frame is Frame(0) (reserved for the default value) or
// already has a recorded entry.
func (s *Store) CaptureInto(frame coretypes.Frame, localID coretypes.PlayerId) bool {
	if frame == 0 {
		return false
	}
	return s.playerMut(localID).captureInto(frame)
}

// SetCaptured overwrites the value at an already-reserved (or any
// existing) frame for player, the commit step after the host has filled in
// the bytes requested by CaptureInto.
func (s *Store) SetCaptured(frame coretypes.Frame, player coretypes.PlayerId, value []byte) {
	sp := s.playerMut(player)
	idx := sp.search(frame)
	if idx < len(sp.entries) && sp.entries[idx].frame == frame {
		sp.entries[idx].value = value
		return
	}
	sp.insertIfAbsent(frame, value)
}

// HasExact reports whether player already has a recorded entry exactly at
// frame (as opposed to a hold-last value read through an earlier key).
func (s *Store) HasExact(player coretypes.PlayerId, frame coretypes.Frame) bool {
	sp, ok := s.byPlayer[player]
	if !ok {
		return frame == 0
	}
	idx := sp.search(frame)
	return idx < len(sp.entries) && sp.entries[idx].frame == frame
}

// AtFrame builds the aggregate {player -> Confirmation[bytes]} view for
// frame by reading every known player's hold-last value.
func (s *Store) AtFrame(frame coretypes.Frame) (coretypes.PlayerInputs, bool) {
	result := coretypes.NewPlayerInputs()
	for player, sp := range s.byPlayer {
		if c, ok := sp.at(frame); ok {
			result.Set(player, c)
		}
	}
	if result.Len() == 0 {
		return result, false
	}
	return result, true
}

// PlayerSinceFrame returns a snapshot of player's entries with key >= from,
// for retransmission to peers.
func (s *Store) PlayerSinceFrame(player coretypes.PlayerId, from coretypes.Frame) map[coretypes.Frame][]byte {
	sp, ok := s.byPlayer[player]
	if !ok {
		return nil
	}
	out := make(map[coretypes.Frame][]byte)
	for _, e := range sp.entries {
		if e.frame >= from {
			cp := make([]byte, len(e.value))
			copy(cp, e.value)
			out[e.frame] = cp
		}
	}
	return out
}

// MergeRemote inserts each (frame, bytes) pair into player's map only if no
// value is already recorded for that frame (first-writer-wins). Frame(0)
// entries in batch are skipped: the default value at Frame(0) always
// dominates, matching a locally captured Frame(0) input being discarded as
// well.
func (s *Store) MergeRemote(player coretypes.PlayerId, batch map[coretypes.Frame][]byte) {
	sp := s.playerMut(player)
	for frame, value := range batch {
		if frame == 0 {
			continue
		}
		sp.insertIfAbsent(frame, value)
	}
}

type entry struct {
	frame coretypes.Frame
	value []byte
}

// sparseInputs is one player's sorted Frame->bytes map plus a compaction
// cursor. entries is kept sorted ascending by frame.
type sparseInputs struct {
	entries     []entry
	nextCompact coretypes.Frame
}

func newSparseInputs() *sparseInputs {
	return &sparseInputs{nextCompact: 0}
}

func (sp *sparseInputs) search(frame coretypes.Frame) int {
	return sort.Search(len(sp.entries), func(i int) bool {
		return sp.entries[i].frame >= frame
	})
}

// at returns the hold-last value for frame: the greatest key <= frame,
// tagged Confirmed if a later key exists, else Unconfirmed.
func (sp *sparseInputs) at(frame coretypes.Frame) (coretypes.Confirmation[[]byte], bool) {
	idx := sp.search(frame + 1) // first index with frame > target
	if idx == 0 {
		return coretypes.Confirmation[[]byte]{}, false
	}
	before := sp.entries[idx-1]
	if idx < len(sp.entries) {
		return coretypes.ConfirmedOf(before.value), true
	}
	return coretypes.UnconfirmedOf(before.value), true
}

// captureInto reserves an empty slot for frame, running compaction first.
// Returns false if frame already has a recorded entry.
func (sp *sparseInputs) captureInto(frame coretypes.Frame) bool {
	idx := sp.search(frame)
	if idx < len(sp.entries) && sp.entries[idx].frame == frame {
		return false
	}

	sp.compact()

	idx = sp.search(frame)
	sp.entries = append(sp.entries, entry{})
	copy(sp.entries[idx+1:], sp.entries[idx:])
	sp.entries[idx] = entry{frame: frame, value: []byte{}}
	return true
}

// insertIfAbsent inserts (frame, value) only if frame has no existing entry.
func (sp *sparseInputs) insertIfAbsent(frame coretypes.Frame, value []byte) {
	idx := sp.search(frame)
	if idx < len(sp.entries) && sp.entries[idx].frame == frame {
		return
	}
	sp.entries = append(sp.entries, entry{})
	copy(sp.entries[idx+1:], sp.entries[idx:])
	sp.entries[idx] = entry{frame: frame, value: value}
}

// compact advances nextCompact across all keys strictly older than the
// newest key, erasing any candidate whose value equals its immediately
// preceding kept entry's value (hold-last would reproduce it anyway). The
// newest key is never compacted away, and the cursor never retreats.
func (sp *sparseInputs) compact() {
	for {
		startIdx := sp.search(sp.nextCompact)
		if startIdx >= len(sp.entries)-1 {
			// Nothing at or after the cursor, or only the newest key remains.
			return
		}

		candidate := sp.entries[startIdx]

		if startIdx == 0 {
			// No preceding kept entry; nothing to compare against yet.
			sp.nextCompact = candidate.frame + 1
			continue
		}

		preceding := sp.entries[startIdx-1]
		if bytesEqual(preceding.value, candidate.value) {
			sp.entries = append(sp.entries[:startIdx], sp.entries[startIdx+1:]...)
			sp.nextCompact = candidate.frame + 1
			continue
		}

		sp.nextCompact = candidate.frame + 1
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
