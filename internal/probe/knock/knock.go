// Package knock implements the TCP SYN "knock" engine: forge a bare SYN
// segment from a leased source port, and accept a reply iff it is a
// SYN+ACK whose acknowledgment number is the sent sequence plus one.
//
// New code: no teacher file implements TCP probing. Built on
// internal/wire/tcppkt (the bit-exact SYN segment + pseudo-header
// checksum) and internal/transport's raw-IP sender, following the same
// transport/correlator idiom the teacher uses for its ICMP engines.
package knock

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"

	"github.com/kentik/synthetics-agent/internal/correlate"
	"github.com/kentik/synthetics-agent/internal/ipversion"
	"github.com/kentik/synthetics-agent/internal/transport"
	"github.com/kentik/synthetics-agent/internal/wire/tcppkt"
)

// retries is the number of additional attempts made for a probe that
// receives no reply before it is recorded as a loss. Carried over unchanged
// from upstream behavior; whether 1 is intentional or a legacy constant is
// an open question this module does not resolve.
const retries = 1

type knockKey struct {
	srcPort int
	dstPort int
}

type knockReply struct {
	recvAt time.Time
	ack    uint32
}

// Engine owns the raw TCP sockets (one per address family) used to send
// forged SYNs and receive the kernel's raw view of whatever comes back, and
// the correlator keyed by (srcPort, dstPort) for one knock session.
type Engine struct {
	tcpV4 *transport.TCPConn
	tcpV6 *transport.TCPConn
	table *correlate.Table[knockKey, knockReply]
	ports *correlate.PortLease
}

// NewEngine opens the raw TCP sockets for both address families and starts
// their background receivers.
func NewEngine(ctx context.Context) (*Engine, error) {
	tcpV4, err := transport.NewTCP(ipversion.V4)
	if err != nil {
		return nil, err
	}
	tcpV6, err := transport.NewTCP(ipversion.V6)
	if err != nil {
		tcpV4.Close()
		return nil, err
	}

	e := &Engine{
		tcpV4: tcpV4,
		tcpV6: tcpV6,
		table: correlate.NewTable[knockKey, knockReply](),
		ports: correlate.NewPortLease(),
	}
	go e.receiveLoop(ctx, ipversion.V4, tcpV4)
	go e.receiveLoop(ctx, ipversion.V6, tcpV6)
	return e, nil
}

// Close closes both raw sockets, unblocking the receivers.
func (e *Engine) Close() error {
	if err := e.tcpV4.Close(); err != nil {
		return err
	}
	return e.tcpV6.Close()
}

func (e *Engine) receiveLoop(ctx context.Context, ver ipversion.Version, conn *transport.TCPConn) {
	for {
		buf, _, recvAt, err := conn.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		seg, err := transport.StripIPHeader(ver, buf)
		if err != nil {
			continue
		}
		h, err := tcppkt.Parse(seg)
		if err != nil {
			continue
		}
		if !h.IsSynAck() {
			continue
		}
		e.table.Deliver(knockKey{srcPort: int(h.DstPort), dstPort: int(h.SrcPort)}, knockReply{recvAt: recvAt, ack: h.Ack})
	}
}

// Knock sends count SYN probes to addr:port and returns one RTT per
// attempt (nil for no reply). The source IP and port are fixed for the
// whole call, as the teacher's transport layer fixes them for one ping
// session's identifier.
func Knock(ctx context.Context, e *Engine, addr net.IP, port int, count int, expiry time.Duration) ([]*time.Duration, error) {
	ver := ipversion.Of(addr)
	conn := e.tcpV4
	if ver == ipversion.V6 {
		conn = e.tcpV6
	}

	src, err := transport.SourceAddr(ver, addr)
	if err != nil {
		return nil, err
	}
	srcPort, release := e.ports.Reserve()
	defer release()

	results := make([]*time.Duration, count)
	for i := 0; i < count; i++ {
		rtt, err := e.knockOnce(ctx, conn, src, addr, srcPort, port, expiry)
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		results[i] = rtt
	}
	return results, nil
}

// knockOnce tries the probe up to 1+retries times, accepting the first
// attempt that yields a valid SYN+ACK; an attempt with no reply, or a
// reply whose acknowledgment number doesn't match, counts as a loss and
// consumes a retry rather than failing the whole call.
func (e *Engine) knockOnce(ctx context.Context, conn *transport.TCPConn, src, dest net.IP, srcPort, dstPort int, expiry time.Duration) (*time.Duration, error) {
	for attempt := 0; attempt <= retries; attempt++ {
		rtt, ok, err := e.attempt(ctx, conn, src, dest, srcPort, dstPort, expiry)
		if err != nil {
			return nil, err
		}
		if ok {
			return rtt, nil
		}
	}
	return nil, nil
}

func (e *Engine) attempt(ctx context.Context, conn *transport.TCPConn, src, dest net.IP, srcPort, dstPort int, expiry time.Duration) (rtt *time.Duration, accepted bool, err error) {
	key := knockKey{srcPort: srcPort, dstPort: dstPort}
	ch, cleanup := e.table.Insert(key)
	defer cleanup()

	seq := rand.Uint32()
	sendAt := time.Now()
	if err := conn.SendSYN(src, dest, srcPort, dstPort, seq); err != nil {
		return nil, false, err
	}

	probeCtx, cancel := context.WithTimeout(ctx, expiry)
	defer cancel()

	select {
	case r := <-ch:
		if r.ack != seq+1 {
			return nil, false, nil
		}
		d := r.recvAt.Sub(sendAt)
		if d < 0 {
			d = 0
		}
		return &d, true, nil
	case <-probeCtx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, false, ctx.Err()
		}
		return nil, false, nil
	}
}
