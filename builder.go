package rbrb

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/lockstepnet/rbrb/internal/coretypes"
	"github.com/lockstepnet/rbrb/internal/engine"
	"github.com/lockstepnet/rbrb/internal/netio"
	"github.com/lockstepnet/rbrb/internal/plugin"
)

// Sentinel errors SessionBuilder.Start returns when a required option is
// missing. A session is never produced on configuration error.
var (
	ErrMissingLocalPlayer = errors.New("rbrb: must call LocalPlayer before Start")
	ErrMissingStepSize    = errors.New("rbrb: must call StepSize before Start")
)

// SessionBuilder assembles a Session's required and optional configuration.
// The zero value, via NewSessionBuilder, is ready to configure.
type SessionBuilder struct {
	remotePlayers []netip.AddrPort

	haveLocal bool
	localID   coretypes.PlayerId
	localPort uint16

	haveStepSize bool
	stepSize     time.Duration

	defaultInputs []byte
	transport     netio.Datagram
	plugins       []plugin.Plugin
	log           *slog.Logger
}

// NewSessionBuilder returns an unconfigured builder.
func NewSessionBuilder() *SessionBuilder {
	return &SessionBuilder{}
}

// RemotePlayers sets the full set of remote peer endpoints. Each remote's
// PlayerId is derived from its position in this list, shifted past the
// local player's id (see LocalPlayer) so every participant, given the same
// ordered list and their own local index, derives the same id assignment.
func (b *SessionBuilder) RemotePlayers(addrs []netip.AddrPort) *SessionBuilder {
	b.remotePlayers = append([]netip.AddrPort(nil), addrs...)
	return b
}

// LocalPlayer sets this session's own PlayerId and the UDP port its default
// transport should bind, if no transport is supplied via WithTransport.
func (b *SessionBuilder) LocalPlayer(id PlayerId, port uint16) *SessionBuilder {
	b.localID = id
	b.localPort = port
	b.haveLocal = true
	return b
}

// StepSize sets the fixed logical step every Advance request covers.
func (b *SessionBuilder) StepSize(d time.Duration) *SessionBuilder {
	b.stepSize = d
	b.haveStepSize = true
	return b
}

// DefaultInputs sets the serialized input value assumed at Frame(0) for
// every player, before anyone has captured or sent anything.
func (b *SessionBuilder) DefaultInputs(bytes []byte) *SessionBuilder {
	b.defaultInputs = append([]byte(nil), bytes...)
	return b
}

// WithTransport supplies a non-default Datagram implementation: a bad
// network simulator, a bandwidth-recording wrapper, or a test fake. Without
// this call, Start binds a default UDP transport on LocalPlayer's port.
func (b *SessionBuilder) WithTransport(t netio.Datagram) *SessionBuilder {
	b.transport = t
	return b
}

// WithPlugin registers a confirmed-frame observer, e.g. NewChecksumWarner.
func (b *SessionBuilder) WithPlugin(p Plugin) *SessionBuilder {
	b.plugins = append(b.plugins, p)
	return b
}

// WithLogger overrides the structured logger used for both the default
// transport (if bound) and the session's own diagnostics. Defaults to
// slog.Default().
func (b *SessionBuilder) WithLogger(log *slog.Logger) *SessionBuilder {
	b.log = log
	return b
}

// Start validates the builder's configuration and produces a Session,
// binding a default UDP transport if none was supplied.
func (b *SessionBuilder) Start() (*Session, error) {
	if !b.haveLocal {
		return nil, ErrMissingLocalPlayer
	}
	if !b.haveStepSize {
		return nil, ErrMissingStepSize
	}

	remotes := make(map[coretypes.PlayerId]netip.AddrPort, len(b.remotePlayers))
	for i, addr := range b.remotePlayers {
		id := coretypes.PlayerId(i)
		if id >= b.localID {
			id++
		}
		remotes[id] = addr
	}

	transport := b.transport
	if transport == nil {
		t, err := netio.BindUDP(b.localPort, b.log)
		if err != nil {
			return nil, fmt.Errorf("rbrb: bind default transport on port %d: %w", b.localPort, err)
		}
		transport = t
	}

	eng := engine.New(engine.Config{
		LocalID:       b.localID,
		Remotes:       remotes,
		StepSize:      b.stepSize,
		DefaultInputs: b.defaultInputs,
		Transport:     transport,
		Plugins:       b.plugins,
		Log:           b.log,
	})

	return &Session{eng: eng}, nil
}
