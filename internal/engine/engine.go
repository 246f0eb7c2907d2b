package engine

import (
	"log/slog"
	"net/netip"
	"time"

	"github.com/lockstepnet/rbrb/internal/coretypes"
	"github.com/lockstepnet/rbrb/internal/frameclock"
	"github.com/lockstepnet/rbrb/internal/inputstore"
	"github.com/lockstepnet/rbrb/internal/netio"
	"github.com/lockstepnet/rbrb/internal/plugin"
	"github.com/lockstepnet/rbrb/internal/signedtime"
	"github.com/lockstepnet/rbrb/internal/snapshot"
	"github.com/lockstepnet/rbrb/internal/wire"
)

const (
	retransmitInterval = 50 * time.Millisecond
	largeRollbackWarn  = 300 * time.Millisecond
)

// Config wires up one session's worth of subordinate components. Peer id
// assignment (position-in-list, shifted past the local id) is the root
// package's concern, not the engine's: callers hand the engine an
// already-resolved id-to-address map.
type Config struct {
	LocalID       coretypes.PlayerId
	Remotes       map[coretypes.PlayerId]netip.AddrPort
	StepSize      time.Duration
	DefaultInputs []byte
	Transport     netio.Datagram
	Plugins       []plugin.Plugin
	Log           *slog.Logger
}

type navState struct {
	target           coretypes.Frame
	firstConfirmDone bool
	saved            bool
	savedBytes       []byte
}

type pendingSave struct {
	frame coretypes.Frame
	after func(bytes []byte)
}

// Engine is the C7 session driver: it owns the clock, input store,
// snapshot ring and transport, and decides — one request at a time — what
// the host handler needs to do next.
type Engine struct {
	log *slog.Logger
	cfg Config

	transport netio.Datagram
	clock     *frameclock.Clock
	inputs    *inputstore.Store
	snapshots *snapshot.Ring
	plugins   []plugin.Plugin

	localID   coretypes.PlayerId
	remoteIDs []coretypes.PlayerId
	addrByID  map[coretypes.PlayerId]netip.AddrPort
	idByAddr  map[netip.AddrPort]coretypes.PlayerId

	stepSize time.Duration

	hostAt            time.Duration
	unconfirmed       coretypes.Frame
	remoteUnconfirmed map[coretypes.PlayerId]coretypes.Frame

	sendTimer *signedtime.Interval

	navigating *navState
	pending    *pendingSave
}

// New builds an Engine ready to drive next_request calls. unconfirmed
// starts at Frame(1): the origin frame is never itself "unconfirmed".
func New(cfg Config) *Engine {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "engine"))

	remoteIDs := make([]coretypes.PlayerId, 0, len(cfg.Remotes))
	addrByID := make(map[coretypes.PlayerId]netip.AddrPort, len(cfg.Remotes))
	idByAddr := make(map[netip.AddrPort]coretypes.PlayerId, len(cfg.Remotes))
	for id, addr := range cfg.Remotes {
		remoteIDs = append(remoteIDs, id)
		addrByID[id] = addr
		idByAddr[addr] = id
	}

	return &Engine{
		log:               log,
		cfg:               cfg,
		transport:         cfg.Transport,
		clock:             frameclock.New(log, remoteIDs),
		inputs:            inputstore.New(cfg.DefaultInputs),
		snapshots:         snapshot.New(),
		plugins:           cfg.Plugins,
		localID:           cfg.LocalID,
		remoteIDs:         remoteIDs,
		addrByID:          addrByID,
		idByAddr:          idByAddr,
		stepSize:          cfg.StepSize,
		unconfirmed:       1,
		remoteUnconfirmed: make(map[coretypes.PlayerId]coretypes.Frame),
		sendTimer:         signedtime.NewInterval(retransmitInterval),
	}
}

// Unconfirmed reports the current confirmation horizon, for diagnostics.
func (e *Engine) Unconfirmed() coretypes.Frame { return e.unconfirmed }

// HostFrame reports the number of frames the host has completed so far.
func (e *Engine) HostFrame() coretypes.Frame { return e.hostFrame() }

// PeerRTTs reports the most recent average round-trip estimate to every
// remote peer that has at least one sample, for diagnostics.
func (e *Engine) PeerRTTs() map[coretypes.PlayerId]time.Duration {
	out := make(map[coretypes.PlayerId]time.Duration, len(e.remoteIDs))
	for _, id := range e.remoteIDs {
		if rtt, ok := e.clock.PeerRTT(id); ok {
			out[id] = rtt
		}
	}
	return out
}

// RemoteAddrs reports the address every remote peer id was configured
// with, for diagnostics that need to label metrics by address.
func (e *Engine) RemoteAddrs() map[coretypes.PlayerId]netip.AddrPort {
	out := make(map[coretypes.PlayerId]netip.AddrPort, len(e.addrByID))
	for id, addr := range e.addrByID {
		out[id] = addr
	}
	return out
}

func (e *Engine) hostFrame() coretypes.Frame {
	return coretypes.Frame(uint32(e.hostAt / e.stepSize))
}

// currentRealtimeFrame reports the frame index the clock says is "now",
// or false if the shared clock hasn't converged on a start yet.
func (e *Engine) currentRealtimeFrame(now time.Time) (coretypes.Frame, bool) {
	elapsed, ok := e.clock.Elapsed()
	if !ok {
		return 0, false
	}
	q, _ := signedtime.DivDuration(elapsed, e.stepSize)
	return coretypes.Frame(q), true
}

// drainIncoming implements step 1: demultiplex every waiting datagram.
func (e *Engine) drainIncoming(now time.Time) {
	for {
		addr, bytes, ok := e.transport.Recv()
		if !ok {
			return
		}

		id, known := e.idByAddr[addr]
		if !known {
			e.log.Warn("datagram from unknown peer", slog.String("addr", addr.String()))
			continue
		}

		env, err := wire.Decode(bytes)
		if err != nil {
			e.log.Warn("malformed datagram", slog.Any("peer", id), slog.Any("err", err))
			continue
		}

		switch env.Kind {
		case wire.KindInputs:
			e.inputs.MergeRemote(id, env.Inputs)

		case wire.KindUnconfirmed:
			if env.Unconfirmed != nil {
				if cur, ok := e.remoteUnconfirmed[id]; !ok || *env.Unconfirmed > cur {
					e.remoteUnconfirmed[id] = *env.Unconfirmed
				}
			}

		case wire.KindClock:
			if env.Clock != nil {
				e.sendClockOutbound(e.clock.ReceiveMessage(id, *env.Clock, now))
			}

		case wire.KindPlugin:
			if env.Plugin != nil {
				for _, p := range e.plugins {
					if p.ID() == env.Plugin.ID {
						p.Receive(addr, env.Plugin.Bytes)
					}
				}
			}

		default:
			e.log.Warn("envelope with unknown kind", slog.Any("peer", id))
		}
	}
}

// sendPending implements step 2: clock traffic every tick, plus bulk
// retransmission and plugin broadcasts on the 50ms cadence.
func (e *Engine) sendPending(now time.Time) {
	e.sendClockOutbound(e.clock.Tick(now))

	if !e.sendTimer.IsTime() {
		return
	}

	for id, addr := range e.addrByID {
		since := e.remoteUnconfirmed[id] // zero value Frame(0) until we hear otherwise
		if batch := e.inputs.PlayerSinceFrame(e.localID, since); len(batch) > 0 {
			e.sendEnvelope(addr, wire.InputsEnvelope(batch))
		}
		e.sendEnvelope(addr, wire.UnconfirmedEnvelope(e.unconfirmed-1))
	}

	for _, p := range e.plugins {
		for _, m := range p.Messages() {
			e.sendEnvelope(m.To, wire.PluginEnvelope(p.ID(), m.Bytes))
		}
	}
}

func (e *Engine) sendClockOutbound(out []frameclock.Outbound) {
	for _, o := range out {
		addr, ok := e.addrByID[o.To]
		if !ok {
			continue
		}
		e.sendEnvelope(addr, wire.ClockEnvelope(o.Message))
	}
}

func (e *Engine) sendEnvelope(addr netip.AddrPort, env wire.Envelope) {
	b, err := wire.Encode(env)
	if err != nil {
		e.log.Warn("encode envelope failed", slog.Any("err", err))
		return
	}
	e.transport.Send(b, addr)
}

// nextActionableRequest walks the decision chain for a single tick: a
// still-pending save from a previous request takes priority, then
// capture, frame-0 save, confirmation-horizon advance, realtime step.
func (e *Engine) nextActionableRequest(now time.Time) (Request, func(), bool) {
	if e.pending != nil {
		p := e.pending
		req := Request{Kind: KindSaveTo, CurrentFrame: p.frame, Commit: func(b []byte) { p.after(b) }}
		return req, func() { e.pending = nil }, true
	}
	if req, apply, ok := e.captureLocalInput(now); ok {
		return req, apply, ok
	}
	if req, apply, ok := e.ensureFrameZeroSaved(); ok {
		return req, apply, ok
	}
	if req, apply, ok := e.horizonAdvanceStep(now); ok {
		return req, apply, ok
	}
	if req, apply, ok := e.realtimeStep(now); ok {
		return req, apply, ok
	}
	return Request{}, nil, false
}

// captureLocalInput implements step 3.
func (e *Engine) captureLocalInput(now time.Time) (Request, func(), bool) {
	realtimeFrame, ok := e.currentRealtimeFrame(now)
	if !ok {
		return Request{}, nil, false
	}
	if e.inputs.HasExact(e.localID, realtimeFrame) {
		return Request{}, nil, false
	}
	if !e.inputs.CaptureInto(realtimeFrame, e.localID) {
		return Request{}, nil, false
	}

	frame := realtimeFrame
	req := Request{
		Kind:         KindCaptureLocalInput,
		CurrentFrame: frame,
		Commit:       func(b []byte) { e.inputs.SetCaptured(frame, e.localID, b) },
	}
	return req, func() {}, true
}

// ensureFrameZeroSaved implements step 4.
func (e *Engine) ensureFrameZeroSaved() (Request, func(), bool) {
	if !e.snapshots.IsEmpty() {
		return Request{}, nil, false
	}
	if e.hostAt != 0 {
		panic("engine: snapshot ring empty but host_at != 0")
	}

	req := Request{
		Kind:         KindSaveTo,
		CurrentFrame: 0,
		Commit: func(b []byte) {
			e.snapshots.Save(0, b)
			e.snapshots.Purge(e.unconfirmed)
		},
	}
	return req, func() {}, true
}

// horizonAdvanceStep implements step 5: at most one confirmation-horizon
// advance (possibly spanning several calls via navState) per invocation.
func (e *Engine) horizonAdvanceStep(now time.Time) (Request, func(), bool) {
	if e.navigating != nil {
		return e.continueNavigate()
	}

	last := e.unconfirmed - 1

	realtimeFrame, ok := e.currentRealtimeFrame(now)
	if !ok {
		return Request{}, nil, false
	}
	if e.hostFrame() >= realtimeFrame {
		return Request{}, nil, false
	}

	inputsAt, ok := e.inputs.AtFrame(last)
	if !ok || !inputsAt.IsFullyConfirmed(len(e.remoteIDs)) {
		return Request{}, nil, false
	}

	e.navigating = &navState{target: last}
	return e.continueNavigate()
}

// continueNavigate drives navigate_to(target) plus the FirstConfirm
// advance and guaranteed post-confirm save, one request at a time.
func (e *Engine) continueNavigate() (Request, func(), bool) {
	nav := e.navigating

	if !nav.firstConfirmDone {
		current := e.hostFrame()

		switch {
		case current > nav.target:
			frame, bytes, ok := e.snapshots.GreatestAtOrBefore(nav.target)
			if !ok {
				panic("engine: no snapshot at or before rollback target; frame 0 should always be saved")
			}
			if delta := current - frame; time.Duration(delta)*e.stepSize > largeRollbackWarn {
				e.log.Info("large rollback", slog.Any("from", current), slog.Any("to", frame))
			}
			req := Request{Kind: KindLoadFrom, State: bytes, CurrentFrame: frame}
			return req, func() { e.hostAt = time.Duration(frame) * e.stepSize }, true

		case current < nav.target:
			inputsAt, _ := e.inputs.AtFrame(current)
			req := Request{
				Kind:         KindAdvance,
				Amount:       e.stepSize,
				Inputs:       inputsAt,
				Confirmed:    coretypes.AdvanceSubsequentConfirm,
				CurrentFrame: current,
			}
			simulated := current
			return req, func() {
				e.hostAt += e.stepSize
				if e.snapshots.ShouldSave(simulated, e.unconfirmed) {
					frame := simulated
					e.pending = &pendingSave{frame: frame, after: func(b []byte) {
						e.snapshots.Save(frame, b)
						e.snapshots.Purge(e.unconfirmed)
					}}
				}
			}, true

		default: // current == nav.target
			inputsAt, _ := e.inputs.AtFrame(nav.target)
			req := Request{
				Kind:         KindAdvance,
				Amount:       e.stepSize,
				Inputs:       inputsAt,
				Confirmed:    coretypes.AdvanceFirstConfirm,
				CurrentFrame: nav.target,
			}
			return req, func() {
				e.hostAt += e.stepSize
				nav.firstConfirmDone = true
			}, true
		}
	}

	if !nav.saved {
		target := nav.target
		req := Request{
			Kind:         KindSaveTo,
			CurrentFrame: target,
			Commit: func(b []byte) {
				e.snapshots.Save(target, b)
				e.snapshots.Purge(target + 1)
				nav.savedBytes = append([]byte(nil), b...)
			},
		}
		return req, func() { nav.saved = true }, true
	}

	for _, p := range e.plugins {
		p.OnConfirmedFrame(nav.target, nav.savedBytes)
	}
	e.unconfirmed++
	e.navigating = nil
	return Request{}, nil, false
}

// realtimeStep implements step 6: speculative advance toward the clock's
// current realtime frame.
func (e *Engine) realtimeStep(now time.Time) (Request, func(), bool) {
	realtimeFrame, ok := e.currentRealtimeFrame(now)
	if !ok {
		return Request{}, nil, false
	}
	hf := e.hostFrame()
	if hf >= realtimeFrame {
		return Request{}, nil, false
	}

	inputsAt, ok := e.inputs.AtFrame(hf)
	if !ok {
		// No known inputs for this frame yet; skip until some arrive.
		return Request{}, nil, false
	}

	confirmed := coretypes.AdvanceUnconfirmed
	if inputsAt.IsFullyConfirmed(len(e.remoteIDs)) {
		confirmed = coretypes.AdvanceSubsequentConfirm
	}

	req := Request{
		Kind:         KindAdvance,
		Amount:       e.stepSize,
		Inputs:       inputsAt,
		Confirmed:    confirmed,
		CurrentFrame: hf,
	}
	return req, func() {
		e.hostAt += e.stepSize
		if e.snapshots.ShouldSave(hf, e.unconfirmed) {
			frame := hf
			e.pending = &pendingSave{frame: frame, after: func(b []byte) {
				e.snapshots.Save(frame, b)
				e.snapshots.Purge(e.unconfirmed)
			}}
		}
	}, true
}
