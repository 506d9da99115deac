// Package transport holds the raw-socket and datagram connections shared by
// the probe engines: one ICMP connection per address family, one UDP sender
// for traceroute probes, and one raw IP connection for TCP SYN knocks.
//
// Adapted from the teacher's internal/backend/icmp.PingConn and
// internal/backend/icmpbase.Conn: a rate-limited, mutex-guarded sender plus a
// blocking Recv that each probe engine's background receiver calls in a
// loop, handing the parsed packets to a correlate.Table.
package transport

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/time/rate"

	"github.com/kentik/synthetics-agent/internal/ipversion"
)

const maxMTU = 1500

// minSendInterval matches the teacher's per-connection default; callers
// needing a faster cadence (e.g. the CLI's own rate limiting) still go
// through this limiter, which only protects the local socket from
// self-inflicted floods.
const minSendInterval = 10 * time.Millisecond

// ICMPConn is a raw ICMP socket for one address family.
type ICMPConn struct {
	ver     ipversion.Version
	conn    *icmp.PacketConn
	limiter *rate.Limiter

	ttlMu sync.RWMutex
}

// icmpv6ChecksumOffset is the byte offset of the checksum field the kernel
// is told to fill in on outgoing ICMPv6 datagrams, per SPEC_FULL.md §6: the
// checksum itself is never computed in software for ICMPv6, it is offloaded
// via IPV6_CHECKSUM.
const icmpv6ChecksumOffset = 6

// NewICMP opens a raw ICMP socket for the given address family.
func NewICMP(ver ipversion.Version) (*ICMPConn, error) {
	network := ipversion.Choose(ver, "ip4:icmp", "ip6:icmp-ipv6")
	addr := ipversion.Choose(ver, "0.0.0.0", "::")
	conn, err := icmp.ListenPacket(network, addr)
	if err != nil {
		return nil, fmt.Errorf("transport: opening %v ICMP socket: %w", ver, err)
	}
	if ver == ipversion.V6 {
		if err := conn.SetChecksum(true, icmpv6ChecksumOffset); err != nil {
			conn.Close()
			return nil, fmt.Errorf("transport: enabling icmpv6 checksum offload: %w", err)
		}
	}
	return &ICMPConn{
		ver:     ver,
		conn:    conn,
		limiter: rate.NewLimiter(rate.Every(minSendInterval), 20),
	}, nil
}

// Close closes the socket; any blocked Recv returns an error.
func (c *ICMPConn) Close() error {
	return c.conn.Close()
}

// Send transmits a raw ICMP message. If ttl is non-zero the packet is sent
// with that TTL/hop-limit, restored to its previous value afterward; sends
// with a custom TTL exclude other sends for the duration (write lock),
// mirroring the teacher's ttlMu discipline.
func (c *ICMPConn) Send(buf []byte, dest net.Addr, ttl int) error {
	if !c.limiter.Allow() {
		return fmt.Errorf("transport: send rate limit exceeded")
	}
	if ttl == 0 {
		c.ttlMu.RLock()
		defer c.ttlMu.RUnlock()
		_, err := c.conn.WriteTo(buf, dest)
		return err
	}

	c.ttlMu.Lock()
	defer c.ttlMu.Unlock()
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
	_, err = c.conn.WriteTo(buf, dest)
	return err
}

func (c *ICMPConn) ttl() (int, error) {
	if c.ver == ipversion.V6 {
		return c.conn.IPv6PacketConn().HopLimit()
	}
	return c.conn.IPv4PacketConn().TTL()
}

func (c *ICMPConn) setTTL(ttl int) error {
	if c.ver == ipversion.V6 {
		return c.conn.IPv6PacketConn().SetHopLimit(ttl)
	}
	return c.conn.IPv4PacketConn().SetTTL(ttl)
}

// Recv blocks for the next datagram until ctx is done.
func (c *ICMPConn) Recv(ctx context.Context) (buf []byte, peer net.Addr, recvAt time.Time, err error) {
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

// ParseType returns the numeric ICMP type/code of a raw datagram without
// fully parsing it, using the x/net/icmp message parser as the teacher does.
func ParseType(ver ipversion.Version, buf []byte) (typ icmp.Type, code int, body []byte, err error) {
	protoNum := ver.ICMPProtoNum()
	msg, err := icmp.ParseMessage(protoNum, buf)
	if err != nil {
		return nil, 0, nil, err
	}
	switch b := msg.Body.(type) {
	case *icmp.Echo:
		raw, merr := b.Marshal(protoNum)
		if merr != nil {
			return msg.Type, msg.Code, nil, merr
		}
		return msg.Type, msg.Code, raw, nil
	case *icmp.TimeExceeded:
		return msg.Type, msg.Code, b.Data, nil
	case *icmp.DstUnreach:
		return msg.Type, msg.Code, b.Data, nil
	default:
		return msg.Type, msg.Code, nil, nil
	}
}
