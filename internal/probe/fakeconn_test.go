package probe

import (
	"net"
	"net/netip"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

type fakePacket struct {
	data []byte
	src  netip.Addr
}

type fakeWrite struct {
	data []byte
	addr net.Addr
	dst  netip.Addr
	id   uint16
	seq  uint16
}

// fakeConn is an in-memory net.PacketConn. Echo requests written to it are
// answered with echo replies built by the real codec, after a delay chosen
// by respond.
type fakeConn struct {
	respond  func(dst netip.Addr, seq uint16) (time.Duration, bool)
	writeErr func(dst netip.Addr, seq uint16) error
	onWrite  func()
	datagram bool

	mu        sync.Mutex
	deadline  time.Time
	writes    []fakeWrite
	delivered map[netip.Addr]int

	inbox     chan fakePacket
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn(respond func(dst netip.Addr, seq uint16) (time.Duration, bool)) *fakeConn {
	if respond == nil {
		respond = func(netip.Addr, uint16) (time.Duration, bool) { return 0, false }
	}
	return &fakeConn{
		respond:   respond,
		delivered: make(map[netip.Addr]int),
		inbox:     make(chan fakePacket, 4096),
		closed:    make(chan struct{}),
	}
}

// replyAfter answers every request after d.
func replyAfter(d time.Duration) func(netip.Addr, uint16) (time.Duration, bool) {
	return func(netip.Addr, uint16) (time.Duration, bool) { return d, true }
}

func (c *fakeConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	select {
	case <-c.closed:
		return 0, net.ErrClosed
	default:
	}

	var req layers.ICMPv4
	if err := req.DecodeFromBytes(b, gopacket.NilDecodeFeedback); err != nil {
		return 0, err
	}
	dst := addrFromNet(addr)

	if c.onWrite != nil {
		c.onWrite()
	}
	if c.writeErr != nil {
		if err := c.writeErr(dst, req.Seq); err != nil {
			return 0, err
		}
	}

	c.mu.Lock()
	c.writes = append(c.writes, fakeWrite{
		data: append([]byte(nil), b...),
		addr: addr,
		dst:  dst,
		id:   req.Id,
		seq:  req.Seq,
	})
	c.mu.Unlock()

	delay, ok := c.respond(dst, req.Seq)
	if !ok {
		return len(b), nil
	}
	reply, err := marshalICMP(layers.ICMPv4TypeEchoReply, req.Id, req.Seq, req.Payload)
	if err != nil {
		return 0, err
	}
	time.AfterFunc(delay, func() { c.inject(fakePacket{data: reply, src: dst}) })
	return len(b), nil
}

// inject queues a raw packet as if it arrived from src.
func (c *fakeConn) inject(p fakePacket) {
	select {
	case c.inbox <- p:
	case <-c.closed:
	}
}

func (c *fakeConn) ReadFrom(b []byte) (int, net.Addr, error) {
	c.mu.Lock()
	deadline := c.deadline
	c.mu.Unlock()

	var expired <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case p := <-c.inbox:
		c.mu.Lock()
		c.delivered[p.src]++
		c.mu.Unlock()
		var from net.Addr = &net.IPAddr{IP: p.src.AsSlice()}
		if c.datagram {
			from = &net.UDPAddr{IP: p.src.AsSlice()}
		}
		return copy(b, p.data), from, nil
	case <-expired:
		return 0, nil, os.ErrDeadlineExceeded
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) LocalAddr() net.Addr {
	return &net.IPAddr{IP: net.IPv4zero}
}

func (c *fakeConn) SetDeadline(t time.Time) error {
	return c.SetReadDeadline(t)
}

func (c *fakeConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	c.deadline = t
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error {
	return nil
}

func (c *fakeConn) sent() []fakeWrite {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]fakeWrite(nil), c.writes...)
}

func (c *fakeConn) sentTo(dst netip.Addr) int {
	n := 0
	for _, w := range c.sent() {
		if w.dst == dst {
			n++
		}
	}
	return n
}

func (c *fakeConn) deliveredFrom(src netip.Addr) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delivered[src]
}
