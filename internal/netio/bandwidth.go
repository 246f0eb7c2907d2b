package netio

import (
	"net/netip"

	"github.com/lockstepnet/rbrb/internal/stats"
)

// BandwidthRecording wraps a Datagram and records each message's length
// into a rolling 3-second window, exposing aggregate bytes/second through
// Stats.
type BandwidthRecording struct {
	inner    Datagram
	incoming *stats.Historical
	outgoing *stats.Historical
}

// NewBandwidthRecording wraps inner with bandwidth accounting.
func NewBandwidthRecording(inner Datagram) *BandwidthRecording {
	return &BandwidthRecording{
		inner:    inner,
		incoming: stats.OverSecs(3),
		outgoing: stats.OverSecs(3),
	}
}

func (b *BandwidthRecording) cleanOld() {
	b.incoming.Clean()
	b.outgoing.Clean()
}

// Send records outgoing byte length then forwards to the inner transport.
func (b *BandwidthRecording) Send(msg []byte, addr netip.AddrPort) {
	b.cleanOld()
	b.outgoing.Increment(uint64(len(msg)))
	b.inner.Send(msg, addr)
}

// Recv records incoming byte length for whatever the inner transport yields.
func (b *BandwidthRecording) Recv() (netip.AddrPort, []byte, bool) {
	b.cleanOld()
	addr, msg, ok := b.inner.Recv()
	if !ok {
		return netip.AddrPort{}, nil, false
	}
	b.incoming.Increment(uint64(len(msg)))
	return addr, msg, true
}

// Stats reports the rolling bytes/second in each direction.
func (b *BandwidthRecording) Stats() (Stats, bool) {
	return Stats{
		OutBytesPerSec: b.outgoing.AvgPerSec(),
		InBytesPerSec:  b.incoming.AvgPerSec(),
	}, true
}
