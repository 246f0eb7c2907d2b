// Package frameclock implements the shared start-agreement protocol: every
// peer in a session must converge on the same logical origin instant before
// any frame can be considered "realtime", after which the clock reports a
// monotonically non-decreasing elapsed duration with a small drift
// correction layered on top.
package frameclock

import (
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/lockstepnet/rbrb/internal/coretypes"
	"github.com/lockstepnet/rbrb/internal/netquality"
	"github.com/lockstepnet/rbrb/internal/signedtime"
)

const (
	startProposalMultiple = 10
	unackedSyncInterval   = 50 * time.Millisecond
	heartbeatInterval     = 500 * time.Millisecond
	driftControlInterval  = 100 * time.Millisecond
	adoptionThreshold     = 400 * time.Millisecond
	maxDriftStep          = 1 * time.Millisecond
	driftBias             = 100 * time.Microsecond
)

type state int

const (
	synchronizing state = iota
	started
)

// Message is the wire payload of the clock subsystem, nested inside the
// driver's envelope. Exactly one of Elapsed or Analysis is set.
type Message struct {
	Elapsed  *ElapsedMsg
	Analysis *netquality.Message
}

// ElapsedMsg carries the sender's signed elapsed-until-start.
type ElapsedMsg struct {
	Elapsed signedtime.Signed
}

// Outbound pairs a peer to send to with the message to send.
type Outbound struct {
	To      coretypes.PlayerId
	Message Message
}

type peerState struct {
	estimator     *netquality.Estimator
	storedElapsed signedtime.Signed
	storedAt      time.Time
	haveStored    bool
	acked         bool
}

// Clock is the per-session shared-start state machine. It is not safe for
// concurrent use except for Elapsed, which is read-path safe via an
// internal RWMutex guarding the monotone cache.
type Clock struct {
	log *slog.Logger

	peers map[coretypes.PlayerId]*peerState

	st state
	at time.Time

	syncTimer *signedtime.Interval
	fastMode  bool // true while unacked peers remain (50ms cadence)

	driftMu          sync.RWMutex
	drift            signedtime.Signed
	lastServed       time.Duration
	lastServedValid  bool
	lastDriftControl time.Time
}

// New builds a Clock tracking RTT for each of the given remote peer ids.
func New(log *slog.Logger, remotes []coretypes.PlayerId) *Clock {
	if log == nil {
		log = slog.Default()
	}
	peers := make(map[coretypes.PlayerId]*peerState, len(remotes))
	for _, p := range remotes {
		peers[p] = &peerState{estimator: netquality.NewEstimator()}
	}
	return &Clock{
		log:       log.With(slog.String("component", "frameclock")),
		peers:     peers,
		st:        synchronizing,
		syncTimer: signedtime.NewInterval(unackedSyncInterval),
		fastMode:  true,
		drift:     signedtime.Zero,
	}
}

// Elapsed returns the time elapsed since the agreed origin, or false if the
// clock hasn't started yet or the origin lies in the future. The result
// never decreases across calls.
func (c *Clock) Elapsed() (time.Duration, bool) {
	c.driftMu.RLock()
	st := c.st
	at := c.at
	drift := c.drift
	lastServed := c.lastServed
	lastServedValid := c.lastServedValid
	c.driftMu.RUnlock()

	if st != started {
		return 0, false
	}

	now := time.Now()
	if now.Before(at) {
		return 0, false
	}

	raw := signedtime.FromDuration(now.Sub(at)).Add(drift)
	computed := raw.Abs()
	if raw.Sign() == signedtime.Neg {
		computed = 0
	}

	if lastServedValid && lastServed > computed {
		computed = lastServed
	}

	c.driftMu.Lock()
	if !c.lastServedValid || computed > c.lastServed {
		c.lastServed = computed
		c.lastServedValid = true
	}
	c.driftMu.Unlock()

	return computed, true
}

// Started reports whether the start-agreement protocol has converged.
func (c *Clock) Started() bool {
	return c.st == started
}

// PeerRTT returns the most recent average round-trip estimate to peer, or
// false until the estimator has collected enough Ping/Pong samples.
func (c *Clock) PeerRTT(peer coretypes.PlayerId) (time.Duration, bool) {
	ps, ok := c.peers[peer]
	if !ok {
		return 0, false
	}
	return ps.estimator.AverageRTT()
}

// Tick runs the periodic duties of the clock (RTT pinging, start proposal,
// drift control) and returns any messages due for transmission this tick.
func (c *Clock) Tick(now time.Time) []Outbound {
	var out []Outbound

	for peer, ps := range c.peers {
		if ps.estimator.ShouldPing(now) {
			ping := ps.estimator.NewPing(now)
			out = append(out, Outbound{To: peer, Message: Message{Analysis: &netquality.Message{Ping: &ping}}})
		}
		for _, pong := range ps.estimator.DrainPongs(now) {
			pong := pong
			out = append(out, Outbound{To: peer, Message: Message{Analysis: &netquality.Message{Pong: &pong}}})
		}
	}

	switch c.st {
	case synchronizing:
		if c.allPeersHaveWorstCase() {
			c.proposeStart(now)
		}
	case started:
		out = append(out, c.startAgreementMessages(now)...)
		c.runDriftControl(now)
	}

	return out
}

func (c *Clock) allPeersHaveWorstCase() bool {
	if len(c.peers) == 0 {
		return true
	}
	for _, ps := range c.peers {
		if _, ok := ps.estimator.WorstCaseRTT(); !ok {
			return false
		}
	}
	return true
}

func (c *Clock) proposeStart(now time.Time) {
	var maxWorst time.Duration
	for _, ps := range c.peers {
		worst, _ := ps.estimator.WorstCaseRTT()
		if worst > maxWorst {
			maxWorst = worst
		}
	}

	at := now.Add(startProposalMultiple * maxWorst)
	c.adoptOrigin(at, now)
	c.log.Info("proposing session start", slog.Time("at", at))
}

// adoptOrigin moves the session's agreed start to at, never earlier than
// any origin already accepted, and re-arms the unacked-peer agreement round.
func (c *Clock) adoptOrigin(at time.Time, now time.Time) {
	if c.st == started && !at.After(c.at) {
		return
	}

	c.st = started
	c.at = at

	for _, ps := range c.peers {
		ps.acked = false
	}
	c.fastMode = true
	c.syncTimer = signedtime.NewInterval(unackedSyncInterval)
}

func (c *Clock) startAgreementMessages(now time.Time) []Outbound {
	anyUnacked := false
	for _, ps := range c.peers {
		if !ps.acked {
			anyUnacked = true
			break
		}
	}

	wantFast := anyUnacked
	if wantFast != c.fastMode {
		c.fastMode = wantFast
		interval := heartbeatInterval
		if wantFast {
			interval = unackedSyncInterval
		}
		c.syncTimer = signedtime.NewInterval(interval)
	}

	if !c.syncTimer.IsTime() {
		return nil
	}

	ourElapsed := signedtime.FromDuration(now.Sub(c.at)).Add(c.currentDrift())

	var out []Outbound
	for peer, ps := range c.peers {
		if anyUnacked && ps.acked {
			continue
		}
		out = append(out, Outbound{To: peer, Message: Message{Elapsed: &ElapsedMsg{Elapsed: ourElapsed}}})
	}
	return out
}

func (c *Clock) currentDrift() signedtime.Signed {
	c.driftMu.RLock()
	defer c.driftMu.RUnlock()
	return c.drift
}

// ReceiveMessage dispatches an inbound clock message from peer.
func (c *Clock) ReceiveMessage(peer coretypes.PlayerId, msg Message, now time.Time) []Outbound {
	ps, ok := c.peers[peer]
	if !ok {
		c.log.Warn("clock message from unknown peer", slog.Any("peer", peer))
		return nil
	}

	switch {
	case msg.Analysis != nil:
		c.receiveAnalysis(ps, *msg.Analysis, now)
		return nil
	case msg.Elapsed != nil:
		return c.receiveElapsed(peer, ps, *msg.Elapsed, now)
	default:
		return nil
	}
}

func (c *Clock) receiveAnalysis(ps *peerState, msg netquality.Message, now time.Time) {
	switch {
	case msg.Ping != nil:
		ps.estimator.OnPing(*msg.Ping, now)
	case msg.Pong != nil:
		ps.estimator.OnPong(*msg.Pong, now)
	}
}

func (c *Clock) receiveElapsed(peer coretypes.PlayerId, ps *peerState, msg ElapsedMsg, now time.Time) []Outbound {
	ps.storedElapsed = msg.Elapsed
	ps.storedAt = now
	ps.haveStored = true

	rtt, haveRTT := ps.estimator.AverageRTT()
	var halfRTT signedtime.Signed
	if haveRTT {
		halfRTT = signedtime.FromDuration(rtt / 2)
	}
	trueElapsed := msg.Elapsed.Sub(halfRTT)
	deducedOrigin := trueElapsed.SubFrom(now)

	if c.st != started {
		c.adoptOrigin(deducedOrigin, now)
		return nil
	}

	delta := deducedOrigin.Sub(c.at)
	if delta.Abs() >= adoptionThreshold {
		if deducedOrigin.After(c.at) {
			c.adoptOrigin(deducedOrigin, now)
			c.log.Info("deferring to later peer start", slog.Any("peer", peer), slog.Time("at", deducedOrigin))
		}
		// Materially earlier proposals are stale; the invariant that an
		// accepted origin never moves earlier means they're discarded.
		return nil
	}

	ps.acked = true
	if rand.IntN(2) == 0 {
		ourElapsed := signedtime.FromDuration(now.Sub(c.at)).Add(c.currentDrift())
		return []Outbound{{To: peer, Message: Message{Elapsed: &ElapsedMsg{Elapsed: ourElapsed}}}}
	}
	return nil
}

func (c *Clock) runDriftControl(now time.Time) {
	if !c.lastDriftControl.IsZero() && now.Sub(c.lastDriftControl) < driftControlInterval {
		return
	}
	c.lastDriftControl = now

	localElapsed := signedtime.FromDuration(now.Sub(c.at)).Add(c.currentDrift())

	var deltas []signedtime.Signed
	for _, ps := range c.peers {
		if !ps.haveStored {
			continue
		}
		rtt, ok := ps.estimator.AverageRTT()
		if !ok {
			continue
		}
		sinceStored := now.Sub(ps.storedAt)
		remoteElapsed := ps.storedElapsed.Add(signedtime.FromDuration(sinceStored)).Add(signedtime.FromDuration(rtt / 2))
		deltas = append(deltas, localElapsed.Sub(remoteElapsed))
	}
	if len(deltas) == 0 {
		return
	}

	mean := signedtime.Sum(deltas).DivScalar(int64(len(deltas)))

	bias := signedtime.FromDuration(driftBias)
	c.driftMu.Lock()
	if c.drift.Sign() == signedtime.Neg {
		mean = mean.Add(bias)
	} else {
		mean = mean.Sub(bias)
	}
	if mean.Abs() > maxDriftStep {
		clamped := signedtime.FromDuration(maxDriftStep)
		if mean.Sign() == signedtime.Neg {
			clamped = clamped.Neg()
		}
		mean = clamped
	}
	c.drift = c.drift.Add(mean)
	c.driftMu.Unlock()
}
