package frameclock

import (
	"testing"
	"time"

	"github.com/lockstepnet/rbrb/internal/coretypes"
	"github.com/lockstepnet/rbrb/internal/signedtime"
)

func TestElapsedNoneWhileSynchronizing(t *testing.T) {
	t.Parallel()

	c := New(nil, []coretypes.PlayerId{1})
	if _, ok := c.Elapsed(); ok {
		t.Fatal("expected no elapsed value before start agreement")
	}
}

func TestElapsedMonotonic(t *testing.T) {
	t.Parallel()

	c := New(nil, []coretypes.PlayerId{1})
	c.st = started
	c.at = time.Now().Add(-time.Second)

	first, ok := c.Elapsed()
	if !ok {
		t.Fatal("expected an elapsed value once started")
	}

	// Simulate drift correction trying to move time backward.
	c.driftMu.Lock()
	c.drift = signedtime.FromDuration(500 * time.Millisecond).Neg() // still shouldn't move lastServed back
	c.driftMu.Unlock()

	second, ok := c.Elapsed()
	if !ok {
		t.Fatal("expected an elapsed value on second read")
	}
	if second < first {
		t.Fatalf("elapsed decreased: %v -> %v", first, second)
	}
}

func TestThreePeerStartConvergesToLatestProposal(t *testing.T) {
	t.Parallel()

	peerA, peerB, peerC := coretypes.PlayerId(1), coretypes.PlayerId(2), coretypes.PlayerId(3)
	c := New(nil, []coretypes.PlayerId{peerA, peerB, peerC})

	now := time.Now()
	origin := now.Add(200 * time.Millisecond)
	c.adoptOrigin(origin, now)

	// peerA proposes something earlier: must be ignored, origin unchanged.
	earlier := signedtime.FromDuration(now.Sub(origin.Add(-50 * time.Millisecond)))
	c.receiveElapsed(peerA, c.peers[peerA], ElapsedMsg{Elapsed: earlier}, now)
	if !c.at.Equal(origin) {
		t.Fatalf("earlier proposal from peerA moved origin: got %v, want %v", c.at, origin)
	}

	// peerB proposes materially later: the whole session must defer to it,
	// regardless of which single peer sent it.
	laterOrigin := origin.Add(time.Second)
	laterElapsed := signedtime.FromDuration(now.Sub(laterOrigin))
	c.receiveElapsed(peerB, c.peers[peerB], ElapsedMsg{Elapsed: laterElapsed}, now)
	if !c.at.Equal(laterOrigin) {
		t.Fatalf("expected convergence to peerB's later origin %v, got %v", laterOrigin, c.at)
	}

	// peerC proposes later still: convergence must keep deferring forward.
	latestOrigin := laterOrigin.Add(time.Second)
	latestElapsed := signedtime.FromDuration(now.Sub(latestOrigin))
	c.receiveElapsed(peerC, c.peers[peerC], ElapsedMsg{Elapsed: latestElapsed}, now)
	if !c.at.Equal(latestOrigin) {
		t.Fatalf("expected convergence to peerC's later origin %v, got %v", latestOrigin, c.at)
	}

	// A stale re-delivery from peerA, still behind the agreed origin, must
	// not move it backward even after two rounds of forward convergence.
	c.receiveElapsed(peerA, c.peers[peerA], ElapsedMsg{Elapsed: earlier}, now)
	if !c.at.Equal(latestOrigin) {
		t.Fatalf("stale peerA proposal moved origin backward: got %v, want %v", c.at, latestOrigin)
	}
}

func TestAdoptOriginNeverMovesEarlier(t *testing.T) {
	t.Parallel()

	c := New(nil, nil)
	now := time.Now()
	later := now.Add(5 * time.Second)
	earlier := now.Add(-5 * time.Second)

	c.adoptOrigin(later, now)
	if !c.at.Equal(later) {
		t.Fatalf("expected adopted at = %v, got %v", later, c.at)
	}

	c.adoptOrigin(earlier, now)
	if !c.at.Equal(later) {
		t.Fatalf("origin should never move earlier: still expected %v, got %v", later, c.at)
	}
}
