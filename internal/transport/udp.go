package transport

import (
	"errors"
	"fmt"
	"log"
	"net"
	"sync"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/kentik/synthetics-agent/internal/ipversion"
	"github.com/kentik/synthetics-agent/internal/wire/udppkt"
)

const (
	udpProtoNum = 17

	icmpV4CodePortUnreachable = 3
	icmpV6CodePortUnreachable = 4

	ipv6FragmentType   = 44
	ipv6FragmentExtLen = 8
)

// UDPReplyKind describes what came back for an outstanding traceroute probe: a
// TIME_EXCEEDED from an intermediate hop, a destination/port unreachable
// signalling arrival, or any other ICMP error the destination returned.
type UDPReplyKind int

const (
	UDPReplyUnknown UDPReplyKind = iota
	UDPReplyTimeExceeded
	UDPReplyPortUnreachable
	UDPReplyOtherUnreachable
)

// UDPReply is a parsed ICMP response to a traceroute probe, demultiplexed by
// the quoted inner IP/UDP header to the source and destination ports the
// probe was sent with.
type UDPReply struct {
	Kind    UDPReplyKind
	SrcPort int
	DstPort int
	Payload []byte
}

// UDPConn sends UDP traceroute probes from a local port the caller chose
// (normally leased from correlate.PortLease) to a destination port the
// caller chooses per probe, so the (source, destination) port pair doubles
// as the probe's correlation key. The ICMP errors the probes provoke are
// read on the companion ICMPConn and decoded with DecodeICMP.
//
// Adapted from the teacher's internal/backend/udp.Conn: same per-connection
// TTL/hop-limit toggling and ICMP-to-packet demultiplexing, generalized to
// hand parsed replies back by value instead of through a backend.Packet.
type UDPConn struct {
	ver ipversion.Version

	mu     sync.Mutex
	connV4 *ipv4.PacketConn
	connV6 *ipv6.PacketConn
}

// NewUDP opens a UDP socket for sending traceroute probes in the given
// address family, bound to localPort so the kernel-assigned source port
// matches the caller's correlate.PortLease reservation (0 lets the kernel
// pick, which is only useful for tests that don't need to match a lease).
func NewUDP(ver ipversion.Version, localPort int) (*UDPConn, error) {
	c := &UDPConn{ver: ver}
	switch ver {
	case ipversion.V4:
		conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: localPort})
		if err != nil {
			return nil, fmt.Errorf("transport: opening v4 UDP socket: %w", err)
		}
		c.connV4 = ipv4.NewPacketConn(conn)
	case ipversion.V6:
		conn, err := net.ListenUDP("udp6", &net.UDPAddr{Port: localPort})
		if err != nil {
			return nil, fmt.Errorf("transport: opening v6 UDP socket: %w", err)
		}
		c.connV6 = ipv6.NewPacketConn(conn)
	default:
		return nil, fmt.Errorf("transport: unknown ip version %v", ver)
	}
	return c, nil
}

// Close closes the socket.
func (c *UDPConn) Close() error {
	if c.ver == ipversion.V6 {
		return c.connV6.Close()
	}
	return c.connV4.Close()
}

// Send transmits payload to dest:dstPort at the given TTL/hop-limit,
// restoring the previous value afterward.
func (c *UDPConn) Send(payload []byte, dest net.IP, dstPort int, ttl int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	orig, err := c.ttl()
	if err != nil {
		return fmt.Errorf("transport: reading current ttl: %w", err)
	}
	if err := c.setTTL(ttl); err != nil {
		return fmt.Errorf("transport: setting ttl %d: %w", ttl, err)
	}
	defer func() {
		if err := c.setTTL(orig); err != nil {
			log.Printf("transport: restoring ttl %d: %v", orig, err)
		}
	}()

	addr := &net.UDPAddr{IP: dest, Port: dstPort}
	switch c.ver {
	case ipversion.V4:
		_, err := c.connV4.WriteTo(payload, nil, addr)
		return err
	default:
		_, err := c.connV6.WriteTo(payload, nil, addr)
		return err
	}
}

func (c *UDPConn) ttl() (int, error) {
	if c.ver == ipversion.V6 {
		return c.connV6.HopLimit()
	}
	return c.connV4.TTL()
}

func (c *UDPConn) setTTL(ttl int) error {
	if c.ver == ipversion.V6 {
		return c.connV6.SetHopLimit(ttl)
	}
	return c.connV4.SetTTL(ttl)
}

// LocalPort returns the ephemeral port the kernel assigned this socket.
func (c *UDPConn) LocalPort() int {
	if c.ver == ipversion.V6 {
		return c.connV6.LocalAddr().(*net.UDPAddr).Port
	}
	return c.connV4.LocalAddr().(*net.UDPAddr).Port
}

// DecodeICMP classifies a raw ICMP datagram received on the companion
// ICMPConn and extracts the quoted inner UDP header, so the traceroute
// engine can match it back to the probe it sent via its source and
// destination ports.
func DecodeICMP(ver ipversion.Version, buf []byte) (*UDPReply, error) {
	protoNum := ver.ICMPProtoNum()
	msg, err := icmp.ParseMessage(protoNum, buf)
	if err != nil {
		return nil, fmt.Errorf("transport: parsing icmp message: %w", err)
	}

	var kind UDPReplyKind
	var quoted []byte
	switch body := msg.Body.(type) {
	case *icmp.TimeExceeded:
		kind = UDPReplyTimeExceeded
		quoted = body.Data
	case *icmp.DstUnreach:
		switch msg.Code {
		case icmpV4CodePortUnreachable, icmpV6CodePortUnreachable:
			kind = UDPReplyPortUnreachable
		default:
			kind = UDPReplyOtherUnreachable
		}
		quoted = body.Data
	default:
		return nil, nil
	}

	srcPort, dstPort, payload, err := parseQuotedUDP(ver, quoted)
	if err != nil {
		return nil, err
	}
	return &UDPReply{Kind: kind, SrcPort: srcPort, DstPort: dstPort, Payload: payload}, nil
}

// parseQuotedUDP strips the quoted inner IP header (and, for IPv6, any
// fragment extension header) from data to reach the inner UDP header, and
// returns the source and destination ports the original probe used.
func parseQuotedUDP(ver ipversion.Version, data []byte) (srcPort, dstPort int, payload []byte, err error) {
	switch ver {
	case ipversion.V4:
		ipHdr, err := ipv4.ParseHeader(data)
		if err != nil {
			return -1, -1, nil, fmt.Errorf("transport: parsing quoted ipv4 header: %w", err)
		}
		data = data[ipHdr.Len:]
	case ipversion.V6:
		ipHdr, err := ipv6.ParseHeader(data)
		if err != nil {
			return -1, -1, nil, fmt.Errorf("transport: parsing quoted ipv6 header: %w", err)
		}
		data = data[ipv6.HeaderLen:]
		if ipHdr.NextHeader == ipv6FragmentType {
			if len(data) < ipv6FragmentExtLen {
				return -1, -1, nil, errors.New("transport: quoted packet too short after fragmentation")
			}
			if data[0] != udpProtoNum {
				return -1, -1, nil, fmt.Errorf("transport: unrecognized next header %d", data[0])
			}
			data = data[ipv6FragmentExtLen:]
		}
	}

	udpHdr, err := udppkt.Parse(data)
	if err != nil {
		return -1, -1, nil, fmt.Errorf("transport: parsing quoted udp header: %w", err)
	}
	if len(data) > udppkt.HeaderLen {
		payload = data[udppkt.HeaderLen:]
	}
	return int(udpHdr.SrcPort), int(udpHdr.DstPort), payload, nil
}
