// Package tcppkt encodes and decodes the bare TCP SYN segment used by the
// knock engine. No example repo implements raw TCP; the checksum uses the
// same RFC 1071 accumulate-and-fold as internal/wire/icmppkt and
// internal/wire/udppkt, extended with the standard TCP pseudo-header.
package tcppkt

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/kentik/synthetics-agent/internal/ipversion"
)

// HeaderLen is the length of a TCP header with no options.
const HeaderLen = 20

// Flag bits used by the knock engine.
const (
	FlagSYN = 1 << 1
	FlagACK = 1 << 4
)

// Header is a minimal TCP header: no options, fixed 20-byte data offset.
type Header struct {
	SrcPort    uint16
	DstPort    uint16
	Seq        uint32
	Ack        uint32
	Flags      uint8
	Window     uint16
	Checksum   uint16
	UrgentPtr  uint16
}

// Marshal encodes the header (with a zero-length payload, as used for a bare
// SYN) and computes the checksum over the IPv4/IPv6 pseudo-header.
func Marshal(h *Header, v ipversion.Version, src, dst net.IP) []byte {
	buf := make([]byte, HeaderLen)
	encode(buf, h, 0)
	h.Checksum = checksum(buf, v, src, dst)
	encode(buf, h, h.Checksum)
	return buf
}

func encode(buf []byte, h *Header, cksum uint16) {
	binary.BigEndian.PutUint16(buf[0:2], h.SrcPort)
	binary.BigEndian.PutUint16(buf[2:4], h.DstPort)
	binary.BigEndian.PutUint32(buf[4:8], h.Seq)
	binary.BigEndian.PutUint32(buf[8:12], h.Ack)
	buf[12] = 5 << 4 // data offset: 5 32-bit words, no options
	buf[13] = h.Flags
	binary.BigEndian.PutUint16(buf[14:16], h.Window)
	binary.BigEndian.PutUint16(buf[16:18], cksum)
	binary.BigEndian.PutUint16(buf[18:20], h.UrgentPtr)
}

func checksum(tcpSeg []byte, v ipversion.Version, src, dst net.IP) uint16 {
	var sum uint32
	add := func(b []byte) {
		for i := 0; i+1 < len(b); i += 2 {
			sum += uint32(b[i])<<8 | uint32(b[i+1])
		}
		if len(b)%2 == 1 {
			sum += uint32(b[len(b)-1]) << 8
		}
	}
	if v == ipversion.V6 {
		add(src.To16())
		add(dst.To16())
	} else {
		add(src.To4())
		add(dst.To4())
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(tcpSeg)))
	add(lenBuf[:])
	var protoBuf [4]byte
	protoBuf[3] = 6 // TCP protocol number
	add(protoBuf[:])
	add(tcpSeg)
	for sum>>16 > 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}

// Parse decodes a TCP header.
func Parse(b []byte) (*Header, error) {
	if len(b) < HeaderLen {
		return nil, fmt.Errorf("tcppkt: short header (%d bytes)", len(b))
	}
	return &Header{
		SrcPort:   binary.BigEndian.Uint16(b[0:2]),
		DstPort:   binary.BigEndian.Uint16(b[2:4]),
		Seq:       binary.BigEndian.Uint32(b[4:8]),
		Ack:       binary.BigEndian.Uint32(b[8:12]),
		Flags:     b[13],
		Window:    binary.BigEndian.Uint16(b[14:16]),
		Checksum:  binary.BigEndian.Uint16(b[16:18]),
		UrgentPtr: binary.BigEndian.Uint16(b[18:20]),
	}, nil
}

// IsSynAck reports whether the flags field has both SYN and ACK set.
func (h *Header) IsSynAck() bool {
	return h.Flags&(FlagSYN|FlagACK) == FlagSYN|FlagACK
}
