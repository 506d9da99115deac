// Package udppkt encodes and decodes the UDP header used by the traceroute
// engine's IPv4/IPv6 probes, including the pseudo-header checksum.
//
// The wire layout matches the teacher's internal/util/udppkt package (the
// same SrcPort/DstPort/TotalLen/Checksum fields over an IPv4 or IPv6
// pseudo-header), but the checksum itself is computed the way
// internal/wire/icmppkt.Checksum is: build the pseudo-header-plus-header
// byte sequence once, then fold it with the same RFC 1071 accumulate-and-
// carry loop, rather than the teacher's incremental AddBytes/AddUint16/
// AddUint32 accumulator type.
package udppkt

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// HeaderLen is the length of a UDP header.
const HeaderLen = 8

// Header is a UDP header.
type Header struct {
	SrcPort  uint16
	DstPort  uint16
	TotalLen uint16
	Checksum uint16
}

// Marshal encodes a UDP header. psh is the IP header (ipv4.Header or
// ipv6.Header, by value or pointer) used to compute the pseudo-header
// checksum.
func (h *Header) Marshal(psh any) ([]byte, error) {
	var pseudo []byte
	switch v := psh.(type) {
	case *ipv4.Header:
		pseudo = pseudoHeaderV4(v)
	case ipv4.Header:
		pseudo = pseudoHeaderV4(&v)
	case *ipv6.Header:
		pseudo = pseudoHeaderV6(v)
	case ipv6.Header:
		pseudo = pseudoHeaderV6(&v)
	default:
		return nil, fmt.Errorf("udppkt: unsupported pseudo-header type %T", psh)
	}

	b := make([]byte, HeaderLen)
	binary.BigEndian.PutUint16(b[0:2], h.SrcPort)
	binary.BigEndian.PutUint16(b[2:4], h.DstPort)
	binary.BigEndian.PutUint16(b[4:6], h.TotalLen)
	// b[6:8] (the checksum field) is still zero here, contributing nothing
	// to the sum below — exactly as RFC 1071 requires.
	h.Checksum = internetChecksum(append(pseudo, b...))
	binary.BigEndian.PutUint16(b[6:8], h.Checksum)
	return b, nil
}

// pseudoHeaderV4 builds the IPv4 pseudo-header bytes: src(4) dst(4)
// zero(1) protocol(1) length(2).
func pseudoHeaderV4(ipHdr *ipv4.Header) []byte {
	buf := make([]byte, 0, 12)
	buf = append(buf, ipHdr.Src.To4()...)
	buf = append(buf, ipHdr.Dst.To4()...)
	buf = append(buf, 0, byte(ipHdr.Protocol))
	var lenField [2]byte
	binary.BigEndian.PutUint16(lenField[:], uint16(ipHdr.Len))
	return append(buf, lenField[:]...)
}

// pseudoHeaderV6 builds the IPv6 pseudo-header bytes: src(16) dst(16)
// payload length(4).
func pseudoHeaderV6(ipHdr *ipv6.Header) []byte {
	buf := make([]byte, 0, 36)
	buf = append(buf, ipHdr.Src.To16()...)
	buf = append(buf, ipHdr.Dst.To16()...)
	var lenField [4]byte
	binary.BigEndian.PutUint32(lenField[:], uint32(ipHdr.PayloadLen))
	return append(buf, lenField[:]...)
}

// internetChecksum computes the Internet checksum (RFC 1071) over b: the
// 16-bit one's complement of the one's-complement sum of all 16-bit words,
// with the buffer treated as zero-padded to an even length.
func internetChecksum(b []byte) uint16 {
	var sum uint32
	n := len(b)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if n%2 == 1 {
		sum += uint32(b[n-1]) << 8
	}
	for sum>>16 > 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}

// Parse decodes a UDP header. A UDP header is always HeaderLen bytes long.
func Parse(b []byte) (*Header, error) {
	if len(b) < HeaderLen {
		return nil, fmt.Errorf("udppkt: short header (%d bytes)", len(b))
	}
	return &Header{
		SrcPort:  binary.BigEndian.Uint16(b[0:2]),
		DstPort:  binary.BigEndian.Uint16(b[2:4]),
		TotalLen: binary.BigEndian.Uint16(b[4:6]),
		Checksum: binary.BigEndian.Uint16(b[6:8]),
	}, nil
}
