package probe

import (
	"errors"

	"golang.org/x/net/bpf"
	"golang.org/x/net/icmp"
)

// echoReplyFilter matches ICMP echo replies carrying identifier id. Raw
// sockets hand the filter the full IPv4 packet, so the ICMP header is
// addressed relative to the IP header length.
func echoReplyFilter(id uint16) []bpf.Instruction {
	return []bpf.Instruction{
		// X = IP header length
		bpf.LoadMemShift{Off: 0},
		// ICMP type
		bpf.LoadIndirect{Off: 0, Size: 1},
		bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: 0, SkipTrue: 3},
		// ICMP identifier
		bpf.LoadIndirect{Off: 4, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: uint32(id), SkipTrue: 1},
		bpf.RetConstant{Val: 0xffff},
		bpf.RetConstant{Val: 0},
	}
}

// setBPFFilter attaches echoReplyFilter to a privileged ICMP socket so the
// kernel drops traffic belonging to other processes.
func setBPFFilter(c *icmp.PacketConn, id uint16) error {
	prog, err := bpf.Assemble(echoReplyFilter(id))
	if err != nil {
		return err
	}
	p := c.IPv4PacketConn()
	if p == nil {
		return errors.New("not an IPv4 ICMP socket")
	}
	return p.SetBPF(prog)
}
