package probe

import (
	"errors"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"sync"
	"time"

	"golang.org/x/net/icmp"
)

// SocketConfig selects how the ICMP endpoint is opened.
type SocketConfig struct {
	// Privileged opens a raw "ip4:icmp" socket. Otherwise an unprivileged
	// datagram ICMP socket is used and the kernel owns the identifier.
	Privileged bool
	// ID is the echo identifier placed in every request.
	ID uint16
	// PayloadSize is the number of data bytes after the ICMP header.
	PayloadSize int
}

// Reply is a validated echo reply.
type Reply struct {
	Src        netip.Addr
	ID         uint16
	Seq        uint16
	ReceivedAt time.Time
}

// Socket sends echo requests and receives echo replies. Sends may be issued
// from several goroutines; Receive must only be called from one.
type Socket struct {
	conn       net.PacketConn
	id         uint16
	privileged bool
	payload    []byte

	writeMu sync.Mutex
	buf     []byte
}

// OpenSocket opens an IPv4 ICMP endpoint. Errors wrap ErrPermission or
// ErrUnsupported when the cause is known.
func OpenSocket(cfg SocketConfig) (*Socket, error) {
	network := "udp4"
	if cfg.Privileged {
		network = "ip4:icmp"
	}

	c, err := icmp.ListenPacket(network, "0.0.0.0")
	if err != nil {
		return nil, classifyOpenError(err)
	}
	slog.Debug("Opened ICMP socket", "network", network, "id", cfg.ID)

	if cfg.Privileged {
		if err := setBPFFilter(c, cfg.ID); err != nil {
			slog.Debug("Kernel echo reply filter unavailable, filtering in userspace", "error", err)
		}
	}

	return newSocket(c, cfg), nil
}

func newSocket(conn net.PacketConn, cfg SocketConfig) *Socket {
	return &Socket{
		conn:       conn,
		id:         cfg.ID,
		privileged: cfg.Privileged,
		payload:    newPayload(cfg.PayloadSize),
		buf:        make([]byte, 1500+icmpHeaderLen+cfg.PayloadSize),
	}
}

// marshal builds the echo request for seq.
func (s *Socket) marshal(seq uint16) ([]byte, error) {
	return marshalEchoRequest(s.id, seq, s.payload)
}

// write transmits an already marshalled echo request to dst.
func (s *Socket) write(dst netip.Addr, seq uint16, pkt []byte) error {
	var addr net.Addr = &net.IPAddr{IP: dst.AsSlice()}
	if !s.privileged {
		addr = &net.UDPAddr{IP: dst.AsSlice()}
	}

	s.writeMu.Lock()
	_, err := s.conn.WriteTo(pkt, addr)
	s.writeMu.Unlock()
	if err != nil {
		return &SendError{Addr: dst, Seq: seq, Err: err}
	}
	return nil
}

// SendEcho transmits one echo request with the socket identifier and seq.
func (s *Socket) SendEcho(dst netip.Addr, seq uint16) error {
	pkt, err := s.marshal(seq)
	if err != nil {
		return &SendError{Addr: dst, Seq: seq, Err: err}
	}
	return s.write(dst, seq, pkt)
}

// Receive waits up to timeout for the next echo reply. Malformed packets,
// non-reply messages and, on raw sockets, replies with a foreign identifier
// are discarded while the wait continues. ErrNoReply is returned when the
// timeout elapses.
func (s *Socket) Receive(timeout time.Duration) (Reply, error) {
	deadline := time.Now().Add(timeout)
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return Reply{}, err
	}

	for {
		n, peer, err := s.conn.ReadFrom(s.buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return Reply{}, ErrNoReply
			}
			return Reply{}, err
		}
		receivedAt := time.Now()

		e, err := parseEchoReply(s.buf[:n])
		if err != nil {
			slog.Debug("Discarding ICMP packet", "from", peer, "error", err)
			continue
		}
		if s.privileged && e.ID != s.id {
			continue
		}
		src := addrFromNet(peer)
		if !src.IsValid() {
			continue
		}

		return Reply{Src: src, ID: e.ID, Seq: e.Seq, ReceivedAt: receivedAt}, nil
	}
}

// Close releases the socket and unblocks a pending Receive.
func (s *Socket) Close() error {
	return s.conn.Close()
}

func addrFromNet(a net.Addr) netip.Addr {
	var ip net.IP
	switch a := a.(type) {
	case *net.IPAddr:
		ip = a.IP
	case *net.UDPAddr:
		ip = a.IP
	default:
		return netip.Addr{}
	}
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}
	}
	return addr.Unmap()
}
