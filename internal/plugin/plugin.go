// Package plugin defines the per-confirmed-frame observer interface the
// session driver notifies, and the one plugin the design specifies: a
// mismatched-checksum warner that cross-checks determinism between peers
// over a side channel.
package plugin

import (
	"net/netip"

	"github.com/lockstepnet/rbrb/internal/coretypes"
)

// OutboundMessage addresses an opaque plugin payload to a peer.
type OutboundMessage struct {
	To    netip.AddrPort
	Bytes []byte
}

// Plugin observes confirmed frames and may exchange its own side-channel
// messages with peers, opaque to the driver beyond routing by ID.
type Plugin interface {
	ID() string
	OnConfirmedFrame(frame coretypes.Frame, serialized []byte)
	Messages() []OutboundMessage
	Receive(from netip.AddrPort, message []byte)
}
