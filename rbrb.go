// Package rbrb implements peer-to-peer rollback networking for deterministic
// step-based simulations. Given a pure transition function advance(prev,
// inputs_per_player), a Session keeps multiple remote peers' simulations in
// lockstep at a fixed step interval over an unreliable, reordering, lossy
// datagram transport: it speculates forward using locally captured input
// plus the most recently known remote inputs, and rolls back and
// re-executes as soon as authoritative remote input arrives.
//
// The host drives a Session by repeatedly calling NextRequest, which hands
// back a Request (SaveTo, LoadFrom, CaptureLocalInput or Advance) for the
// host to act on, and reports whether anything more is actionable this
// tick. All state and input serialization is opaque to the session: it
// never inspects the bytes the host hands it, beyond byte-equality (input
// compaction) and hashing (the checksum plugin).
package rbrb

import (
	"net/netip"
	"time"

	"github.com/lockstepnet/rbrb/internal/coretypes"
	"github.com/lockstepnet/rbrb/internal/engine"
	"github.com/lockstepnet/rbrb/internal/netio"
	"github.com/lockstepnet/rbrb/internal/plugin"
)

// Frame is a nonnegative logical step ordinal. Frame(0) is the common
// origin every peer agrees on before any simulation state exists.
type Frame = coretypes.Frame

// PlayerId identifies a participant within a session. Exactly one PlayerId
// is local to a given session; the rest are remote peers.
type PlayerId = coretypes.PlayerId

// Confirmation pairs an arbitrary payload with whether it's still subject
// to change (Unconfirmed) or final (Confirmed).
type Confirmation[T any] = coretypes.Confirmation[T]

// AdvanceConfirmation distinguishes the three ways an Advance request can
// relate to the confirmation horizon.
type AdvanceConfirmation = coretypes.AdvanceConfirmation

const (
	AdvanceUnconfirmed       = coretypes.AdvanceUnconfirmed
	AdvanceFirstConfirm      = coretypes.AdvanceFirstConfirm
	AdvanceSubsequentConfirm = coretypes.AdvanceSubsequentConfirm
)

// Kind discriminates the populated fields of a Request.
type Kind = engine.Kind

const (
	KindSaveTo            = engine.KindSaveTo
	KindLoadFrom          = engine.KindLoadFrom
	KindCaptureLocalInput = engine.KindCaptureLocalInput
	KindAdvance           = engine.KindAdvance
)

// Request is the non-exhaustive request enum the host handler receives.
// Handlers must have a default branch: future versions may add kinds.
type Request = engine.Request

// Datagram is the non-blocking send/recv capability a Session requires of
// its transport. A default UDP implementation is used when a builder isn't
// given one explicitly; see netio.BindUDP, netio.NewBadNetwork and
// netio.NewBandwidthRecording for wrapping it with loss/latency simulation
// or throughput accounting.
type Datagram = netio.Datagram

// Stats reports a transport's aggregate throughput, as returned by
// Datagram.Stats.
type Stats = netio.Stats

// Plugin observes confirmed frames and may exchange side-channel messages
// with peers. ChecksumWarner, constructible via NewChecksumWarner, is the
// plugin this package ships: it panics when two peers confirm the same
// frame with different serialized state, the one hard assertion this
// library makes about host determinism.
type Plugin = plugin.Plugin

// NewChecksumWarner builds the mismatched-checksum plugin, addressed to
// peers by the same addresses passed to SessionBuilder.RemotePlayers.
var NewChecksumWarner = plugin.NewChecksumWarner

// Session drives the confirmation horizon and speculative execution for
// one local player against a fixed set of remote peers. Construct one with
// NewSessionBuilder. A Session is not safe for concurrent use: NextRequest
// is meant to be called from a single loop on the host's own goroutine, per
// the library's no-internal-background-work design.
type Session struct {
	eng *engine.Engine
}

// NextRequest drives the session until handle returns true ("stop, this is
// the value I wanted") or no further progress is possible this tick (ok is
// false, meaning the caller should idle until the next real-time tick
// rather than busy-loop). handle is invoked once per request; returning
// false resumes the loop and serves the next request immediately.
func NextRequest[B any](s *Session, now time.Time, handle func(Request) (B, bool)) (B, bool) {
	return engine.NextRequest(s.eng, now, handle)
}

// Unconfirmed reports the current confirmation horizon: the smallest frame
// whose inputs are not yet known across every peer.
func (s *Session) Unconfirmed() Frame { return s.eng.Unconfirmed() }

// HostFrame reports the number of frames the host has completed so far,
// including speculative ones not yet confirmed.
func (s *Session) HostFrame() Frame { return s.eng.HostFrame() }

// PeerRTTs reports the most recent average round-trip estimate to every
// remote peer with at least one sample, for diagnostics.
func (s *Session) PeerRTTs() map[PlayerId]time.Duration { return s.eng.PeerRTTs() }

// RemoteAddrs reports the address every remote peer id was configured
// with, for diagnostics that need to label metrics by address.
func (s *Session) RemoteAddrs() map[PlayerId]netip.AddrPort { return s.eng.RemoteAddrs() }
