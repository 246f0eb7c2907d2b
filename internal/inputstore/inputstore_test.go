package inputstore

import (
	"testing"

	"github.com/lockstepnet/rbrb/internal/coretypes"
)

func TestCaptureIntoThenAtFrame(t *testing.T) {
	t.Parallel()

	s := New([]byte{0x00})
	if ok := s.CaptureInto(5, 0); !ok {
		t.Fatal("expected a reservation for frame 5")
	}
	s.SetCaptured(5, 0, []byte("A"))

	pi, ok := s.AtFrame(5)
	if !ok {
		t.Fatal("expected a result at frame 5")
	}
	c, ok := pi.Get(0)
	if !ok {
		t.Fatal("expected player 0 entry")
	}
	if c.Tag != coretypes.Unconfirmed {
		t.Fatalf("frame 5 should be Unconfirmed with no later key, got %v", c.Tag)
	}

	s.CaptureInto(6, 0)
	pi, _ = s.AtFrame(5)
	c, _ = pi.Get(0)
	if c.Tag != coretypes.Confirmed {
		t.Fatalf("frame 5 should become Confirmed once frame 6 exists, got %v", c.Tag)
	}
}

func TestCaptureIntoFrameZeroRejected(t *testing.T) {
	t.Parallel()

	s := New([]byte{0x00})
	if ok := s.CaptureInto(0, 0); ok {
		t.Fatal("Frame(0) is reserved for the default and must not be capturable")
	}
}

func TestCompactionScenario(t *testing.T) {
	t.Parallel()

	// record for player P inputs [0->A, 1->A, 2->B, 3->B, 4->C, 5->C]
	s := New([]byte("A"))
	sp := s.playerMut(0)
	sp.insertIfAbsent(1, []byte("A"))
	sp.insertIfAbsent(2, []byte("B"))
	sp.insertIfAbsent(3, []byte("B"))
	sp.insertIfAbsent(4, []byte("C"))
	sp.insertIfAbsent(5, []byte("C"))

	if ok := s.CaptureInto(6, 0); !ok {
		t.Fatal("expected allocation at frame 6")
	}

	wantFrames := []coretypes.Frame{0, 2, 4, 5, 6}
	if len(sp.entries) != len(wantFrames) {
		t.Fatalf("entries = %v, want frames %v", sp.entries, wantFrames)
	}
	for i, f := range wantFrames {
		if sp.entries[i].frame != f {
			t.Errorf("entries[%d].frame = %v, want %v", i, sp.entries[i].frame, f)
		}
	}

	pi, ok := s.AtFrame(3)
	if !ok {
		t.Fatal("expected result at frame 3")
	}
	c, _ := pi.Get(0)
	if c.Tag != coretypes.Confirmed || string(c.Value) != "B" {
		t.Fatalf("at(3) = %v %q, want Confirmed(B)", c.Tag, c.Value)
	}
}

func TestMergeRemoteIdempotent(t *testing.T) {
	t.Parallel()

	s := New([]byte{0x00})
	batch := map[coretypes.Frame][]byte{3: []byte("x"), 4: []byte("y")}

	s.MergeRemote(1, batch)
	snapshot1 := s.PlayerSinceFrame(1, 0)

	s.MergeRemote(1, batch)
	snapshot2 := s.PlayerSinceFrame(1, 0)

	if len(snapshot1) != len(snapshot2) {
		t.Fatalf("merge not idempotent: %v vs %v", snapshot1, snapshot2)
	}
	for f, v := range snapshot1 {
		if string(snapshot2[f]) != string(v) {
			t.Fatalf("merge not idempotent at frame %v: %q vs %q", f, v, snapshot2[f])
		}
	}
}

func TestMergeRemoteFirstWriterWins(t *testing.T) {
	t.Parallel()

	s := New([]byte{0x00})
	s.MergeRemote(1, map[coretypes.Frame][]byte{5: []byte("first")})
	s.MergeRemote(1, map[coretypes.Frame][]byte{5: []byte("second")})

	snapshot := s.PlayerSinceFrame(1, 5)
	if string(snapshot[5]) != "first" {
		t.Fatalf("expected first-writer-wins value %q, got %q", "first", snapshot[5])
	}
}

func TestMergeRemoteIgnoresFrameZero(t *testing.T) {
	t.Parallel()

	s := New([]byte("default"))
	s.MergeRemote(1, map[coretypes.Frame][]byte{0: []byte("attacker-supplied")})

	pi, ok := s.AtFrame(0)
	if !ok {
		t.Fatal("expected frame 0 to resolve via the default")
	}
	c, _ := pi.Get(1)
	if string(c.Value) != "default" {
		t.Fatalf("Frame(0) must never be overridden by remote input, got %q", c.Value)
	}
}

func TestAtFrameBeforeAnyKeyReturnsNone(t *testing.T) {
	t.Parallel()

	s := New([]byte("default"))
	sp := s.playerMut(1)
	sp.entries = nil // simulate a player with no recorded frames at all, not even 0

	if _, ok := sp.at(0); ok {
		t.Fatal("expected no value before any key is recorded")
	}
}
