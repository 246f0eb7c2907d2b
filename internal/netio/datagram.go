// Package netio provides the non-blocking datagram transport the session
// driver sends and receives envelopes over, plus two decorators specified
// as required behaviors on that interface: a bad-network simulator and a
// bandwidth-recording wrapper.
package netio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Stats reports aggregate throughput, mirroring what Datagram.Stats
// exposes for the bandwidth-recording wrapper.
type Stats struct {
	OutBytesPerSec uint64
	InBytesPerSec  uint64
}

// Datagram is the non-blocking send/recv capability the driver requires of
// its transport. Implementations must never block and must never return a
// partial datagram.
type Datagram interface {
	Send(msg []byte, addr netip.AddrPort)
	Recv() (netip.AddrPort, []byte, bool)
	Stats() (Stats, bool)
}

const initialBufferSize = 1024

// UDPTransport is the default Datagram implementation: a single
// non-blocking UDP socket. Non-blocking reads are implemented with a
// past read deadline, the idiomatic Go substitute for the POSIX
// O_NONBLOCK + EWOULDBLOCK pattern.
type UDPTransport struct {
	conn   *net.UDPConn
	buffer []byte
	log    *slog.Logger
}

// BindUDP opens a non-blocking UDP socket on port, with SO_REUSEADDR set
// so a restarted session can rebind promptly.
func BindUDP(port uint16, log *slog.Logger) (*UDPTransport, error) {
	if log == nil {
		log = slog.Default()
	}

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return fmt.Errorf("raw conn control: %w", err)
			}
			return sockErr
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("netio: bind udp port %d: %w", port, err)
	}

	conn, ok := pc.(*net.UDPConn)
	if !ok {
		_ = pc.Close()
		return nil, fmt.Errorf("netio: bind udp port %d: unexpected conn type %T", port, pc)
	}

	return &UDPTransport{
		conn:   conn,
		buffer: make([]byte, initialBufferSize),
		log:    log.With(slog.String("component", "netio.udp")),
	}, nil
}

// Send fires a datagram at addr. Transport errors are logged and treated
// as transient: the design permits this for a best-effort UDP sender.
func (t *UDPTransport) Send(msg []byte, addr netip.AddrPort) {
	if _, err := t.conn.WriteToUDPAddrPort(msg, addr); err != nil {
		t.log.Warn("send failed", slog.String("to", addr.String()), slog.Any("err", err))
	}
}

// Recv performs one non-blocking read. It doubles the receive buffer and
// logs when the last read fully filled it, since a full read may mean a
// datagram was truncated.
func (t *UDPTransport) Recv() (netip.AddrPort, []byte, bool) {
	if err := t.conn.SetReadDeadline(time.Now()); err != nil {
		t.log.Warn("set read deadline failed", slog.Any("err", err))
		return netip.AddrPort{}, nil, false
	}

	n, addr, err := t.conn.ReadFromUDPAddrPort(t.buffer)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return netip.AddrPort{}, nil, false
		}
		t.log.Warn("recv failed", slog.Any("err", err))
		return netip.AddrPort{}, nil, false
	}

	if n == len(t.buffer) {
		t.log.Info("doubling receive buffer", slog.Int("new_size", len(t.buffer)*2))
		t.buffer = make([]byte, len(t.buffer)*2)
	}

	out := make([]byte, n)
	copy(out, t.buffer[:n])
	return addr, out, true
}

// Stats reports nothing for the bare UDP transport; bandwidth accounting
// lives in BandwidthRecording.
func (t *UDPTransport) Stats() (Stats, bool) {
	return Stats{}, false
}

// Close releases the underlying socket.
func (t *UDPTransport) Close() error {
	return t.conn.Close()
}
