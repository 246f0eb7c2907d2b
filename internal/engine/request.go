// Package engine implements the request-driven session driver (C7): the
// inverted-control loop that asks a host handler to save, load, capture
// input and advance, coordinating the clock, input store, snapshot ring,
// transport and plugins on the caller's own goroutine.
package engine

import (
	"time"

	"github.com/lockstepnet/rbrb/internal/coretypes"
)

// Kind discriminates the populated fields of a Request.
type Kind int

const (
	// KindSaveTo asks the host to fill Commit with a fresh serialized
	// snapshot of its own state at CurrentFrame.
	KindSaveTo Kind = iota
	// KindLoadFrom asks the host to restore its state from State, which
	// corresponds to CurrentFrame.
	KindLoadFrom
	// KindCaptureLocalInput asks the host to fill Commit with the local
	// player's serialized input for CurrentFrame.
	KindCaptureLocalInput
	// KindAdvance asks the host to step its own simulation forward by
	// Amount using Inputs, tagged Confirmed for how final this step is.
	KindAdvance
)

func (k Kind) String() string {
	switch k {
	case KindSaveTo:
		return "SaveTo"
	case KindLoadFrom:
		return "LoadFrom"
	case KindCaptureLocalInput:
		return "CaptureLocalInput"
	case KindAdvance:
		return "Advance"
	default:
		return "Unknown"
	}
}

// Request is the non-exhaustive host-facing request enum from spec §4.7.
// Handlers must tolerate Kind values they don't recognize (a switch with a
// default branch), since future kinds may be added.
type Request struct {
	Kind         Kind
	CurrentFrame coretypes.Frame

	// Commit is set for KindSaveTo and KindCaptureLocalInput. The host
	// must call it exactly once, synchronously, with the serialized
	// bytes before returning from the handler — no partial request is
	// ever re-issued.
	Commit func(bytes []byte)

	// State is set for KindLoadFrom: the bytes the host should restore
	// from. A malformed blob is the host's own problem to detect; the
	// driver has no opinion about it.
	State []byte

	// Amount, Inputs and Confirmed are set for KindAdvance.
	Amount    time.Duration
	Inputs    coretypes.PlayerInputs
	Confirmed coretypes.AdvanceConfirmation
}

// NextRequest runs the driver until the handler breaks out with a value
// (ok=true) or no further work is possible this tick (ok=false, meaning
// the caller should idle until the next real-time tick). If handle returns
// false ("keep going"), NextRequest loops internally and serves the next
// request immediately rather than returning to the caller — the common
// usage is a handler that always returns true, consuming one request per
// external call and looping outside.
func NextRequest[B any](e *Engine, now time.Time, handle func(Request) (B, bool)) (B, bool) {
	var zero B
	for {
		e.drainIncoming(now)
		e.sendPending(now)

		req, apply, ok := e.nextActionableRequest(now)
		if !ok {
			return zero, false
		}

		v, brk := handle(req)
		if apply != nil {
			apply()
		}
		if brk {
			return v, true
		}
	}
}
