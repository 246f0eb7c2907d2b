// Package netquality tracks per-peer round-trip time by exchanging Ping/Pong
// messages and sampling the resulting latency, feeding the shared clock's
// drift controller and the driver's diagnostics.
package netquality

import (
	"sort"
	"time"
)

const (
	pingInterval   = 100 * time.Millisecond
	maxRTTSamples  = 10
	minForAverage  = 3
	minForWorst    = 5
)

// Message is the sum type exchanged between peers for RTT estimation.
type Message struct {
	Ping *PingMsg
	Pong *PongMsg
}

// PingMsg asks a peer to echo id back as a Pong.
type PingMsg struct {
	ID uint64
}

// PongMsg replies to a Ping, reporting how long the peer held the Ping
// before replying so the sender can subtract that processing time out of
// the measured round trip.
type PongMsg struct {
	ID                  uint64
	RemoteProcessingTime time.Duration
}

type outstandingPing struct {
	id     uint64
	sentAt time.Time
}

type pendingPong struct {
	id         uint64
	receivedAt time.Time
}

// Estimator tracks one remote peer's RTT. It is not safe for concurrent use;
// callers serialize access the same way the rest of the driver does (single
// tick thread).
type Estimator struct {
	nextPingID uint64

	outstanding  []outstandingPing
	pendingPongs []pendingPong

	samples []time.Duration // sorted ascending by recency of insertion; capped

	pingTimer *pingTimer
}

type pingTimer struct {
	last *time.Time
}

// NewEstimator returns an Estimator ready to track samples for one peer.
func NewEstimator() *Estimator {
	return &Estimator{pingTimer: &pingTimer{}}
}

// ShouldPing reports whether the 100ms ping cadence has elapsed, arming the
// cadence on first call.
func (e *Estimator) ShouldPing(now time.Time) bool {
	if e.pingTimer.last == nil {
		e.pingTimer.last = &now
		return true
	}
	if now.Sub(*e.pingTimer.last) < pingInterval {
		return false
	}
	next := e.pingTimer.last.Add(pingInterval)
	e.pingTimer.last = &next
	return true
}

// NewPing allocates a fresh ping id, records it as outstanding, and returns
// the message to send.
func (e *Estimator) NewPing(now time.Time) PingMsg {
	e.nextPingID++
	id := e.nextPingID
	e.outstanding = append(e.outstanding, outstandingPing{id: id, sentAt: now})
	return PingMsg{ID: id}
}

// OnPing records a received ping awaiting a pong reply, timestamped at
// receipt so the eventual reply can report how long it sat queued.
func (e *Estimator) OnPing(msg PingMsg, now time.Time) {
	e.pendingPongs = append(e.pendingPongs, pendingPong{id: msg.ID, receivedAt: now})
}

// DrainPongs returns and clears Pong replies due for transmission, stamping
// each with the processing time since its Ping was received.
func (e *Estimator) DrainPongs(now time.Time) []PongMsg {
	if len(e.pendingPongs) == 0 {
		return nil
	}
	out := make([]PongMsg, 0, len(e.pendingPongs))
	for _, p := range e.pendingPongs {
		out = append(out, PongMsg{ID: p.id, RemoteProcessingTime: now.Sub(p.receivedAt)})
	}
	e.pendingPongs = e.pendingPongs[:0]
	return out
}

// OnPong looks up the matching outstanding ping, computes true RTT by
// subtracting the peer's reported processing delay, and records the sample.
func (e *Estimator) OnPong(msg PongMsg, now time.Time) {
	idx := -1
	for i, o := range e.outstanding {
		if o.id == msg.ID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}

	sent := e.outstanding[idx].sentAt
	e.outstanding = append(e.outstanding[:idx], e.outstanding[idx+1:]...)

	total := now.Sub(sent)
	rtt := total - msg.RemoteProcessingTime
	if rtt < 0 {
		rtt = 0
	}
	e.recordSample(rtt)
}

func (e *Estimator) recordSample(rtt time.Duration) {
	e.samples = append(e.samples, rtt)
	if len(e.samples) > maxRTTSamples {
		e.samples = e.samples[len(e.samples)-maxRTTSamples:]
	}
	e.pruneOutstanding()
}

// pruneOutstanding discards outstanding pings older than the oldest retained
// RTT sample's implied age; with no samples yet there's nothing to prune
// against so outstanding pings are left alone.
func (e *Estimator) pruneOutstanding() {
	if len(e.samples) == 0 || len(e.outstanding) == 0 {
		return
	}
	oldestAllowed := e.samples[0]
	kept := e.outstanding[:0]
	now := time.Now()
	for _, o := range e.outstanding {
		if now.Sub(o.sentAt) <= oldestAllowed {
			kept = append(kept, o)
		}
	}
	e.outstanding = kept
}

// AverageRTT returns the mean of recorded samples, or false until at least
// 3 samples exist.
func (e *Estimator) AverageRTT() (time.Duration, bool) {
	if len(e.samples) < minForAverage {
		return 0, false
	}
	var total time.Duration
	for _, s := range e.samples {
		total += s
	}
	return total / time.Duration(len(e.samples)), true
}

// WorstCaseRTT returns the maximum recorded sample, or false until at least
// 5 samples exist.
func (e *Estimator) WorstCaseRTT() (time.Duration, bool) {
	if len(e.samples) < minForWorst {
		return 0, false
	}
	sorted := append([]time.Duration(nil), e.samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[len(sorted)-1], true
}
