package transport

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"

	"github.com/kentik/synthetics-agent/internal/ipversion"
	"github.com/kentik/synthetics-agent/internal/wire/tcppkt"
)

// TCPConn is a raw IP socket used to forge TCP SYN segments for the knock
// engine and to receive whatever TCP segments the kernel hands back
// (SYN-ACK, RST) on the way to matching them against outstanding probes.
//
// Opened the way the teacher opens its raw ICMP socket
// (internal/backend/icmpbase/icmpbase_raw.go: unix.Socket + SetNonblock +
// net.FilePacketConn), substituting IPPROTO_TCP for IPPROTO_ICMP. Like the
// ICMP and UDP transports, sending is left to the kernel's own IP framing
// (no IP_HDRINCL): the knock engine needs control over the TCP header, not
// the IP header, so the socket supplies only the TCP segment on write.
type TCPConn struct {
	ver  ipversion.Version
	conn net.PacketConn
	file *os.File
}

// NewTCP opens a raw TCP socket for the given address family. The caller
// must be able to open raw sockets (CAP_NET_RAW or root).
func NewTCP(ver ipversion.Version) (*TCPConn, error) {
	fd, err := unix.Socket(ver.AddressFamily(), unix.SOCK_RAW, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("transport: opening raw tcp socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: setting nonblocking: %w", err)
	}

	f := os.NewFile(uintptr(fd), fmt.Sprintf("tcp:%v", ver))
	conn, err := net.FilePacketConn(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("transport: wrapping raw tcp socket: %w", err)
	}

	return &TCPConn{ver: ver, conn: conn, file: f}, nil
}

// Close closes the socket.
func (c *TCPConn) Close() error {
	return c.conn.Close()
}

// SendSYN forges and sends a TCP SYN segment from src to dest:dstPort with
// the given sequence number, using srcPort as the knock's correlation key.
func (c *TCPConn) SendSYN(src, dest net.IP, srcPort, dstPort int, seq uint32) error {
	h := &tcppkt.Header{
		SrcPort: uint16(srcPort),
		DstPort: uint16(dstPort),
		Seq:     seq,
		Flags:   tcppkt.FlagSYN,
		Window:  65535,
	}
	seg := tcppkt.Marshal(h, c.ver, src, dest)

	addr := destAddr(c.ver, dest)
	_, err := c.conn.WriteTo(seg, addr)
	return err
}

// Recv blocks for the next raw TCP segment until ctx is done. The returned
// buffer still carries the IP header the kernel prepends to raw reads; use
// StripIPHeader to reach the TCP segment.
func (c *TCPConn) Recv(ctx context.Context) (buf []byte, peer net.Addr, recvAt time.Time, err error) {
	if dl, ok := ctx.Deadline(); ok {
		if err := c.conn.SetReadDeadline(dl); err != nil {
			return nil, nil, time.Time{}, err
		}
	} else if err := c.conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, nil, time.Time{}, err
	}
	b := make([]byte, maxMTU)
	n, peer, err := c.conn.ReadFrom(b)
	recvAt = time.Now()
	if err != nil {
		return nil, peer, recvAt, err
	}
	return b[:n], peer, recvAt, nil
}

// StripIPHeader removes the IP header Linux prepends to a raw IPPROTO_TCP
// read, returning the bare TCP segment. IPv6 raw sockets never include the
// fixed header in the first place.
func StripIPHeader(ver ipversion.Version, buf []byte) ([]byte, error) {
	if ver == ipversion.V6 {
		return buf, nil
	}
	hdr, err := ipv4.ParseHeader(buf)
	if err != nil {
		return nil, fmt.Errorf("transport: parsing ipv4 header on raw read: %w", err)
	}
	if len(buf) < hdr.Len {
		return nil, fmt.Errorf("transport: raw read shorter than its own ip header")
	}
	return buf[hdr.Len:], nil
}

func destAddr(ver ipversion.Version, dest net.IP) net.Addr {
	if ver == ipversion.V6 {
		return &net.IPAddr{IP: dest}
	}
	return &net.IPAddr{IP: dest.To4()}
}

// discoveryPort is the arbitrary destination port used to learn our own
// outbound address; nothing is ever sent to it since UDP connect() performs
// no handshake.
const discoveryPort = 1234

// SourceAddr picks the local address the kernel would route packets to dest
// from, without sending anything: the standard trick of connecting a
// throwaway UDP socket and reading back its bound local address.
//
// Grounded in the teacher's pack neighbor malbeclabs-doublezero
// (telemetry/global-monitor/internal/netutil.DefaultInterface), which uses
// the same dial-UDP-then-inspect idiom to find the outbound interface.
func SourceAddr(ver ipversion.Version, dest net.IP) (net.IP, error) {
	network := ipversion.Choose(ver, "udp4", "udp6")
	conn, err := net.Dial(network, net.JoinHostPort(dest.String(), fmt.Sprint(discoveryPort)))
	if err != nil {
		return nil, fmt.Errorf("transport: resolving source address via %s: %w", network, err)
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP, nil
}
