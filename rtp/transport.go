package rtp

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// DefaultReadTimeout bounds a single Receive call so the read loop can poll
// its shutdown signal between packets.
const DefaultReadTimeout = 200 * time.Millisecond

// TransportConfig configures a UDP transport for one RTP stream.
type TransportConfig struct {
	// LocalAddr is the address to bind, e.g. "0.0.0.0:5004". A port of 0
	// picks an ephemeral port.
	LocalAddr string

	// RemoteAddr is the peer address outgoing packets are sent to. May be
	// empty when the peer is set later via SetRemote.
	RemoteAddr string

	// ReadTimeout bounds each Receive call. Defaults to DefaultReadTimeout;
	// values above it are clamped so shutdown stays responsive.
	ReadTimeout time.Duration
}

// UDPTransport sends and receives RTP packets over a single UDP socket.
type UDPTransport struct {
	conn        *net.UDPConn
	readTimeout time.Duration

	mu     sync.Mutex
	remote *net.UDPAddr
	closed bool
}

// NewUDPTransport binds the local address and resolves the remote peer.
func NewUDPTransport(cfg TransportConfig) (*UDPTransport, error) {
	local, err := net.ResolveUDPAddr("udp", cfg.LocalAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve local address %q: %w", cfg.LocalAddr, err)
	}
	var remote *net.UDPAddr
	if cfg.RemoteAddr != "" {
		remote, err = net.ResolveUDPAddr("udp", cfg.RemoteAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve remote address %q: %w", cfg.RemoteAddr, err)
		}
	}

	conn, err := net.ListenUDP("udp", local)
	if err != nil {
		return nil, fmt.Errorf("failed to bind %q: %w", cfg.LocalAddr, err)
	}

	timeout := cfg.ReadTimeout
	if timeout <= 0 || timeout > DefaultReadTimeout {
		timeout = DefaultReadTimeout
	}

	return &UDPTransport{
		conn:        conn,
		remote:      remote,
		readTimeout: timeout,
	}, nil
}

// SetRemote retargets outgoing packets, e.g. once the peer's actual port
// is learned.
func (t *UDPTransport) SetRemote(addr *net.UDPAddr) {
	t.mu.Lock()
	t.remote = addr
	t.mu.Unlock()
}

// Send writes one packet to the remote peer.
func (t *UDPTransport) Send(packet []byte) error {
	t.mu.Lock()
	remote := t.remote
	t.mu.Unlock()

	if remote == nil {
		return errors.New("no remote peer")
	}
	if _, err := t.conn.WriteToUDP(packet, remote); err != nil {
		return fmt.Errorf("failed to send RTP packet: %w", err)
	}
	return nil
}

// Receive reads one packet into buf, waiting at most the configured read
// timeout. A timeout is reported as a net.Error with Timeout() true; use
// IsTimeout to distinguish it from a real failure. When no remote peer is
// configured yet, the first packet's source becomes the peer.
func (t *UDPTransport) Receive(buf []byte) (int, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(t.readTimeout)); err != nil {
		return 0, fmt.Errorf("failed to set read deadline: %w", err)
	}
	n, src, err := t.conn.ReadFromUDP(buf)
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	if t.remote == nil {
		t.remote = src
	}
	t.mu.Unlock()

	return n, nil
}

// IsTimeout reports whether err is a read deadline expiry rather than a
// transport failure.
func IsTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// LocalAddr returns the bound local address, useful when an ephemeral port
// was requested.
func (t *UDPTransport) LocalAddr() *net.UDPAddr {
	return t.conn.LocalAddr().(*net.UDPAddr)
}

// Close shuts the socket down. Safe to call more than once.
func (t *UDPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}
