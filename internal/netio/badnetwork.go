package netio

import (
	"math/rand/v2"
	"net/netip"
	"sort"
	"time"
)

const (
	defaultSuccessChance = 0.4
	defaultMeanLag       = 100 * time.Millisecond
)

type pendingDatagram struct {
	dueAt time.Time
	addr  netip.AddrPort
	bytes []byte
}

// BadNetwork wraps a Datagram with lossy, reordering behavior: every
// datagram is independently dropped with probability 1-p, and every
// surviving one is delayed by a Poisson-distributed lag before release.
// Delayed datagrams are released in due-time order regardless of arrival
// order, simulating real-world jitter and reordering.
type BadNetwork struct {
	inner         Datagram
	successChance float64
	meanLag       time.Duration

	pendingIn  []pendingDatagram
	pendingOut []pendingDatagram
}

// NewBadNetwork wraps inner with the default 40% success chance and ~100ms
// mean delay described by the design.
func NewBadNetwork(inner Datagram) *BadNetwork {
	return NewBadNetworkWithParams(inner, defaultSuccessChance, defaultMeanLag)
}

// NewBadNetworkWithParams wraps inner with an explicit drop/delay profile,
// for callers (e.g. the demo harness's configuration) that need a
// different loss rate or latency than the defaults.
func NewBadNetworkWithParams(inner Datagram, successChance float64, meanLag time.Duration) *BadNetwork {
	return &BadNetwork{
		inner:         inner,
		successChance: successChance,
		meanLag:       meanLag,
	}
}

func (b *BadNetwork) survives() bool {
	return rand.Float64() < b.successChance
}

// poissonLag samples a Poisson-distributed lag in whole milliseconds with
// mean meanLag, by counting unit-rate exponential arrivals within the mean.
func (b *BadNetwork) poissonLag() time.Duration {
	lambda := float64(b.meanLag) / float64(time.Millisecond)
	k := 0
	for t := rand.ExpFloat64(); t < lambda; t += rand.ExpFloat64() {
		k++
	}
	return time.Duration(k) * time.Millisecond
}

// Send enqueues msg for delayed delivery if it survives the drop check;
// the actual underlying send happens on a later Recv call once its due
// time arrives (Recv is polled every driver tick, so this needs no
// background goroutine).
func (b *BadNetwork) Send(msg []byte, addr netip.AddrPort) {
	if !b.survives() {
		return
	}
	cp := make([]byte, len(msg))
	copy(cp, msg)
	b.pendingOut = append(b.pendingOut, pendingDatagram{
		dueAt: time.Now().Add(b.poissonLag()),
		addr:  addr,
		bytes: cp,
	})
}

// Recv flushes any due outgoing sends, drains all currently available
// incoming datagrams from the inner transport into the delay queue, then
// releases the earliest due incoming datagram, if any.
func (b *BadNetwork) Recv() (netip.AddrPort, []byte, bool) {
	now := time.Now()
	b.flushOutgoing(now)

	for {
		addr, msg, ok := b.inner.Recv()
		if !ok {
			break
		}
		if !b.survives() {
			continue
		}
		b.pendingIn = append(b.pendingIn, pendingDatagram{
			dueAt: now.Add(b.poissonLag()),
			addr:  addr,
			bytes: msg,
		})
	}

	return b.releaseEarliestDue(&b.pendingIn, now)
}

func (b *BadNetwork) flushOutgoing(now time.Time) {
	var remaining []pendingDatagram
	sort.Slice(b.pendingOut, func(i, j int) bool { return b.pendingOut[i].dueAt.Before(b.pendingOut[j].dueAt) })
	for _, p := range b.pendingOut {
		if !p.dueAt.After(now) {
			b.inner.Send(p.bytes, p.addr)
		} else {
			remaining = append(remaining, p)
		}
	}
	b.pendingOut = remaining
}

func (b *BadNetwork) releaseEarliestDue(queue *[]pendingDatagram, now time.Time) (netip.AddrPort, []byte, bool) {
	if len(*queue) == 0 {
		return netip.AddrPort{}, nil, false
	}

	bestIdx := -1
	for i, p := range *queue {
		if p.dueAt.After(now) {
			continue
		}
		if bestIdx == -1 || p.dueAt.Before((*queue)[bestIdx].dueAt) {
			bestIdx = i
		}
	}
	if bestIdx == -1 {
		return netip.AddrPort{}, nil, false
	}

	chosen := (*queue)[bestIdx]
	*queue = append((*queue)[:bestIdx], (*queue)[bestIdx+1:]...)
	return chosen.addr, chosen.bytes, true
}

// Stats delegates to the wrapped transport.
func (b *BadNetwork) Stats() (Stats, bool) {
	return b.inner.Stats()
}
