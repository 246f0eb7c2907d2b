// Package wire encodes and decodes the four-way envelope peers exchange
// over the datagram transport. Encoding follows the tagged-union-over-JSON
// pattern used elsewhere in the retrieval pack for UDP gossip transports:
// a Kind discriminant field plus one populated payload field per message,
// with opaque []byte payloads marshaling as base64 for free.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/lockstepnet/rbrb/internal/coretypes"
	"github.com/lockstepnet/rbrb/internal/frameclock"
)

// Kind discriminates the envelope's populated payload field.
type Kind string

const (
	KindInputs      Kind = "inputs"
	KindUnconfirmed Kind = "unconfirmed"
	KindClock       Kind = "clock"
	KindPlugin      Kind = "plugin"
)

// Envelope is the tagged union every datagram on the wire carries. Exactly
// one of the payload fields is populated, selected by Kind.
type Envelope struct {
	Kind Kind `json:"kind"`

	Inputs      map[coretypes.Frame][]byte `json:"inputs,omitempty"`
	Unconfirmed *coretypes.Frame           `json:"unconfirmed,omitempty"`
	Clock       *frameclock.Message        `json:"clock,omitempty"`
	Plugin      *PluginPayload             `json:"plugin,omitempty"`
}

// PluginPayload is an opaque per-plugin message, addressed by the plugin's
// own id string so the receiving side can route it without the wire layer
// understanding its contents.
type PluginPayload struct {
	ID    string `json:"id"`
	Bytes []byte `json:"bytes"`
}

// InputsEnvelope builds an envelope retransmitting the sender's own inputs.
func InputsEnvelope(inputs map[coretypes.Frame][]byte) Envelope {
	return Envelope{Kind: KindInputs, Inputs: inputs}
}

// UnconfirmedEnvelope builds an envelope announcing the sender's
// unconfirmed-minus-one horizon.
func UnconfirmedEnvelope(frame coretypes.Frame) Envelope {
	return Envelope{Kind: KindUnconfirmed, Unconfirmed: &frame}
}

// ClockEnvelope wraps a clock-subsystem message, opaque to everything but
// the clock itself.
func ClockEnvelope(msg frameclock.Message) Envelope {
	return Envelope{Kind: KindClock, Clock: &msg}
}

// PluginEnvelope wraps a named plugin's opaque payload.
func PluginEnvelope(id string, bytes []byte) Envelope {
	return Envelope{Kind: KindPlugin, Plugin: &PluginPayload{ID: id, Bytes: bytes}}
}

// Encode serializes an envelope to bytes for transmission.
func Encode(e Envelope) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("wire: encode envelope: %w", err)
	}
	return b, nil
}

// Decode parses bytes received off the wire into an envelope.
func Decode(b []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, fmt.Errorf("wire: decode envelope: %w", err)
	}
	return e, nil
}
