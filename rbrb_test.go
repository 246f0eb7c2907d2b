package rbrb

import (
	"fmt"
	"net/netip"
	"testing"
	"time"
)

// fakeTransport is an in-memory Datagram for testing builder wiring
// without opening real sockets.
type fakeTransport struct{}

func (f *fakeTransport) Send(msg []byte, addr netip.AddrPort) {}
func (f *fakeTransport) Recv() (netip.AddrPort, []byte, bool) { return netip.AddrPort{}, nil, false }
func (f *fakeTransport) Stats() (Stats, bool)                 { return Stats{}, false }

func addrs(n int) []netip.AddrPort {
	out := make([]netip.AddrPort, n)
	for i := range out {
		out[i] = netip.MustParseAddrPort(fmt.Sprintf("127.0.0.1:%d", 7100+i))
	}
	return out
}

func TestStartRequiresLocalPlayer(t *testing.T) {
	t.Parallel()

	_, err := NewSessionBuilder().StepSize(16 * time.Millisecond).Start()
	if err != ErrMissingLocalPlayer {
		t.Fatalf("expected ErrMissingLocalPlayer, got %v", err)
	}
}

func TestStartRequiresStepSize(t *testing.T) {
	t.Parallel()

	_, err := NewSessionBuilder().LocalPlayer(0, 7001).Start()
	if err != ErrMissingStepSize {
		t.Fatalf("expected ErrMissingStepSize, got %v", err)
	}
}

func TestPeerIDAssignmentShiftsPastLocal(t *testing.T) {
	t.Parallel()

	// Local player is index 1 among 3 total participants: remotes at
	// positions {0, 1} must land on ids {0, 2}, skipping 1.
	remotes := addrs(2)
	s, err := NewSessionBuilder().
		RemotePlayers(remotes).
		LocalPlayer(1, 7001).
		StepSize(16 * time.Millisecond).
		DefaultInputs([]byte{0x00}).
		WithTransport(&fakeTransport{}).
		Start()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ra := s.RemoteAddrs()
	if len(ra) != 2 || ra[0] != remotes[0] || ra[2] != remotes[1] {
		t.Fatalf("expected remotes at ids {0, 2}, got %v", ra)
	}
	if s.HostFrame() != 0 {
		t.Fatalf("expected a fresh session at HostFrame 0, got %v", s.HostFrame())
	}
	if s.Unconfirmed() != 1 {
		t.Fatalf("expected Unconfirmed() == Frame(1) at construction, got %v", s.Unconfirmed())
	}
}

func TestFirstRequestIsFrameZeroSave(t *testing.T) {
	t.Parallel()

	s, err := NewSessionBuilder().
		LocalPlayer(0, 7001).
		StepSize(16 * time.Millisecond).
		DefaultInputs([]byte{0x00}).
		WithTransport(&fakeTransport{}).
		Start()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, ok := NextRequest(s, time.Now(), func(r Request) (struct{}, bool) {
		if r.Kind != KindSaveTo || r.CurrentFrame != 0 {
			t.Fatalf("expected SaveTo(0) as the first request, got %v frame %v", r.Kind, r.CurrentFrame)
		}
		r.Commit([]byte("snapshot-0"))
		return struct{}{}, true
	})
	if !ok {
		t.Fatal("expected a request on the first tick")
	}
}
