package netio

import (
	"net/netip"
	"testing"
)

// fakeDatagram is an in-memory Datagram for testing the decorator wrappers
// without opening real sockets.
type fakeDatagram struct {
	sent []sentMsg
	recv []recvMsg
}

type sentMsg struct {
	bytes []byte
	addr  netip.AddrPort
}

type recvMsg struct {
	bytes []byte
	addr  netip.AddrPort
}

func (f *fakeDatagram) Send(msg []byte, addr netip.AddrPort) {
	f.sent = append(f.sent, sentMsg{bytes: msg, addr: addr})
}

func (f *fakeDatagram) Recv() (netip.AddrPort, []byte, bool) {
	if len(f.recv) == 0 {
		return netip.AddrPort{}, nil, false
	}
	m := f.recv[0]
	f.recv = f.recv[1:]
	return m.addr, m.bytes, true
}

func (f *fakeDatagram) Stats() (Stats, bool) {
	return Stats{}, false
}

func testAddr() netip.AddrPort {
	return netip.MustParseAddrPort("127.0.0.1:9000")
}

func TestBandwidthRecordingTracksBytes(t *testing.T) {
	t.Parallel()

	fake := &fakeDatagram{recv: []recvMsg{{bytes: []byte("12345"), addr: testAddr()}}}
	bw := NewBandwidthRecording(fake)

	bw.Send([]byte("hello"), testAddr())
	if _, _, ok := bw.Recv(); !ok {
		t.Fatal("expected a received datagram")
	}

	s, ok := bw.Stats()
	if !ok {
		t.Fatal("expected stats to be available")
	}
	// 3s window: 5 bytes / 3 == 1
	if s.InBytesPerSec == 0 {
		t.Errorf("expected nonzero incoming bytes/sec, got %+v", s)
	}
	if s.OutBytesPerSec == 0 {
		t.Errorf("expected nonzero outgoing bytes/sec, got %+v", s)
	}
}

func TestBadNetworkAlwaysSurvivingNeverDrops(t *testing.T) {
	t.Parallel()

	fake := &fakeDatagram{recv: []recvMsg{{bytes: []byte("x"), addr: testAddr()}}}
	bad := NewBadNetwork(fake)
	bad.successChance = 1.0
	bad.meanLag = 0

	if _, _, ok := bad.Recv(); !ok {
		t.Fatal("expected datagram with 100%% success chance and zero lag to be released immediately")
	}
}

func TestBadNetworkAlwaysDroppingNeverDelivers(t *testing.T) {
	t.Parallel()

	fake := &fakeDatagram{recv: []recvMsg{{bytes: []byte("x"), addr: testAddr()}}}
	bad := NewBadNetwork(fake)
	bad.successChance = 0.0

	if _, _, ok := bad.Recv(); ok {
		t.Fatal("expected no datagram released with 0%% success chance")
	}
	bad.Send([]byte("y"), testAddr())
	if len(fake.sent) != 0 {
		t.Fatal("expected send to be dropped with 0%% success chance")
	}
}
