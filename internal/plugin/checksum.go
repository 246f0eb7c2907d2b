package plugin

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/lockstepnet/rbrb/internal/coretypes"
	"github.com/lockstepnet/rbrb/internal/signedtime"
)

const (
	checksumCacheSize = 1024
	broadcastEvery    = 500 * time.Millisecond
)

// checksumMessage is the plugin's own opaque-to-the-driver wire message,
// announcing a (frame, hash) pair.
type checksumMessage struct {
	Frame    coretypes.Frame `json:"frame"`
	Checksum uint64          `json:"checksum"`
}

// ChecksumWarner cross-checks every peer's confirmed-frame state hash
// against its own, hard-asserting on any disagreement: a real determinism
// violation is not a recoverable condition.
type ChecksumWarner struct {
	log *slog.Logger

	addrs []netip.AddrPort

	checksums       *lru.Cache[coretypes.Frame, uint64]
	remoteChecksums map[netip.AddrPort]*lru.Cache[coretypes.Frame, uint64]

	haveNewest  bool
	newestFrame coretypes.Frame
	newestHash  uint64

	sendEvery *signedtime.Interval

	onMismatch func(remote netip.AddrPort)
}

// NewChecksumWarner builds a warner broadcasting to each of addrs.
func NewChecksumWarner(log *slog.Logger, addrs []netip.AddrPort) *ChecksumWarner {
	if log == nil {
		log = slog.Default()
	}
	checksums, err := lru.New[coretypes.Frame, uint64](checksumCacheSize)
	if err != nil {
		// Only returns an error for a non-positive size, which is a
		// programmer error here, not a runtime condition to recover from.
		panic(fmt.Sprintf("plugin: building checksum cache: %v", err))
	}

	return &ChecksumWarner{
		log:             log.With(slog.String("component", "plugin.checksum")),
		addrs:           append([]netip.AddrPort(nil), addrs...),
		checksums:       checksums,
		remoteChecksums: make(map[netip.AddrPort]*lru.Cache[coretypes.Frame, uint64]),
		sendEvery:       signedtime.NewInterval(broadcastEvery),
	}
}

// OnMismatch registers fn to be called with the offending peer's address
// immediately before a determinism mismatch panics. Intended for recording
// the event (a metrics counter, a last-gasp log line) before the process
// goes down; fn must not block.
func (c *ChecksumWarner) OnMismatch(fn func(remote netip.AddrPort)) {
	c.onMismatch = fn
}

// ID implements Plugin.
func (c *ChecksumWarner) ID() string { return "warn_remote_mismatched_checksum" }

// OnConfirmedFrame implements Plugin: hashes the confirmed state, stores
// it, and checks for a mismatch against any already-received remote hash
// for the same frame.
func (c *ChecksumWarner) OnConfirmedFrame(frame coretypes.Frame, serialized []byte) {
	checksum := xxhash.Sum64(serialized)
	c.checksums.Add(frame, checksum)

	c.newestFrame = frame
	c.newestHash = checksum
	c.haveNewest = true

	c.checkFrameMatch(frame)
}

func (c *ChecksumWarner) checkFrameMatch(frame coretypes.Frame) {
	ours, ok := c.checksums.Peek(frame)
	if !ok {
		return
	}

	for remote, cache := range c.remoteChecksums {
		theirs, ok := cache.Get(frame)
		if !ok {
			continue
		}
		cache.Remove(frame)

		if ours != theirs {
			if c.onMismatch != nil {
				c.onMismatch(remote)
			}
			panic(fmt.Sprintf("plugin: checksum mismatch for frame %v with remote %s: ours=%x theirs=%x",
				frame, remote, ours, theirs))
		}
	}
}

// Messages implements Plugin: every 500ms, broadcast the newest known
// (frame, hash) pair to every peer.
func (c *ChecksumWarner) Messages() []OutboundMessage {
	if !c.sendEvery.IsTime() {
		return nil
	}
	if !c.haveNewest {
		return nil
	}

	payload, err := json.Marshal(checksumMessage{Frame: c.newestFrame, Checksum: c.newestHash})
	if err != nil {
		c.log.Warn("marshal checksum message failed", slog.Any("err", err))
		return nil
	}

	out := make([]OutboundMessage, 0, len(c.addrs))
	for _, addr := range c.addrs {
		out = append(out, OutboundMessage{To: addr, Bytes: payload})
	}
	return out
}

// Receive implements Plugin.
func (c *ChecksumWarner) Receive(from netip.AddrPort, message []byte) {
	var msg checksumMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.log.Warn("malformed checksum message", slog.String("from", from.String()), slog.Any("err", err))
		return
	}

	cache, ok := c.remoteChecksums[from]
	if !ok {
		var err error
		cache, err = lru.New[coretypes.Frame, uint64](checksumCacheSize)
		if err != nil {
			panic(fmt.Sprintf("plugin: building remote checksum cache: %v", err))
		}
		c.remoteChecksums[from] = cache
	}
	cache.Add(msg.Frame, msg.Checksum)

	c.checkFrameMatch(msg.Frame)
}
