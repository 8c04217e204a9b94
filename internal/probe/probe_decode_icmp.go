package probe

import (
	"errors"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"golang.org/x/net/ipv4"
)

const (
	// icmpHeaderLen is the fixed echo header: type, code, checksum, id, seq.
	icmpHeaderLen = 8
	// DefaultPayloadSize matches the classic ping payload.
	DefaultPayloadSize = 56
	// MaxPayloadSize keeps the datagram inside a single IPv4 packet.
	MaxPayloadSize = 65507 - icmpHeaderLen
)

var (
	errShortPacket  = errors.New("packet shorter than ICMP header")
	errBadChecksum  = errors.New("ICMP checksum mismatch")
	errNotEchoReply = errors.New("not an echo reply")
)

// echo is the decoded identity of an echo request or reply.
type echo struct {
	Type uint8
	ID   uint16
	Seq  uint16
}

// marshalICMP serializes an ICMPv4 echo message of the given type with a
// valid checksum over header and payload.
func marshalICMP(typ uint8, id, seq uint16, payload []byte) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		FixLengths:       true,
		ComputeChecksums: true,
	}
	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(typ, 0),
		Id:       id,
		Seq:      seq,
	}
	if err := gopacket.SerializeLayers(buf, opts, icmp, gopacket.Payload(payload)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// marshalEchoRequest builds the probe packet sent to a target.
func marshalEchoRequest(id, seq uint16, payload []byte) ([]byte, error) {
	return marshalICMP(layers.ICMPv4TypeEchoRequest, id, seq, payload)
}

// parseEchoReply validates b as an ICMPv4 echo reply. A leading IPv4 header,
// as delivered by some raw socket implementations, is skipped.
func parseEchoReply(b []byte) (echo, error) {
	b = stripIPv4Header(b)
	if len(b) < icmpHeaderLen {
		return echo{}, errShortPacket
	}
	if checksum(b) != 0 {
		return echo{}, errBadChecksum
	}

	var icmp layers.ICMPv4
	if err := icmp.DecodeFromBytes(b, gopacket.NilDecodeFeedback); err != nil {
		return echo{}, err
	}
	if icmp.TypeCode.Type() != layers.ICMPv4TypeEchoReply || icmp.TypeCode.Code() != 0 {
		return echo{}, errNotEchoReply
	}
	return echo{Type: icmp.TypeCode.Type(), ID: icmp.Id, Seq: icmp.Seq}, nil
}

// stripIPv4Header returns the IPv4 payload when b starts with an IPv4 header.
// ICMP type values never have 4 in the upper nibble for echo traffic, so the
// version field is unambiguous.
func stripIPv4Header(b []byte) []byte {
	if len(b) < ipv4.HeaderLen || b[0]>>4 != ipv4.Version {
		return b
	}
	h, err := ipv4.ParseHeader(b)
	if err != nil || h.Len > len(b) {
		return b
	}
	return b[h.Len:]
}

// checksum computes the RFC 1071 Internet checksum. Run over a message that
// already carries its checksum, it returns 0 when the message is intact.
func checksum(b []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(b); i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if len(b)%2 == 1 {
		sum += uint32(b[len(b)-1]) << 8
	}
	for sum>>16 != 0 {
		sum = sum&0xffff + sum>>16
	}
	return ^uint16(sum)
}

// newPayload returns size bytes of a repeating pattern.
func newPayload(size int) []byte {
	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte(i)
	}
	return payload
}
