// Package trace implements the UDP-probe/ICMP-error traceroute engine: one
// or more probes per TTL, incrementing the destination port so each probe's
// quoted inner UDP header is unique, stopping at the target or an
// unreachable/limit boundary.
//
// Generalized from the teacher's internal/tracer.Tracer (a perpetual,
// channel-driven hop stream) and internal/backend/udp.Conn (the
// port-walking send/demux pair); here both collapse into a single bounded
// Trace call returning the hop list the task loop publishes.
package trace

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/kentik/synthetics-agent/internal/correlate"
	"github.com/kentik/synthetics-agent/internal/ipversion"
	"github.com/kentik/synthetics-agent/internal/transport"
)

// Node is one reply observed for a single probe: either a hop's address and
// RTT, or a loss (Addr == nil) when the per-probe expiry fired.
type Node struct {
	TTL  int
	Addr net.IP
	RTT  time.Duration
}

type traceKey struct {
	srcPort int
	dstPort int
}

type traceReply struct {
	recvAt time.Time
	peer   net.IP
	isEnd  bool // destination/port unreachable: the probe reached its target
}

// Engine owns the shared ICMP receivers (TIME_EXCEEDED/UNREACHABLE demux),
// the trace correlator, and the source-port lease pool; each Trace call
// opens its own UDP sender bound to a leased port, as the teacher's
// trace/state.rs's per-session Lease implies (released on scope exit).
type Engine struct {
	icmpV4 *transport.ICMPConn
	icmpV6 *transport.ICMPConn
	table  *correlate.Table[traceKey, traceReply]
	ports  *correlate.PortLease
}

// NewEngine opens the ICMP sockets for both address families and starts
// their background receivers.
func NewEngine(ctx context.Context) (*Engine, error) {
	icmpV4, err := transport.NewICMP(ipversion.V4)
	if err != nil {
		return nil, err
	}
	icmpV6, err := transport.NewICMP(ipversion.V6)
	if err != nil {
		icmpV4.Close()
		return nil, err
	}

	e := &Engine{
		icmpV4: icmpV4,
		icmpV6: icmpV6,
		table:  correlate.NewTable[traceKey, traceReply](),
		ports:  correlate.NewPortLease(),
	}
	go e.receiveLoop(ctx, ipversion.V4, icmpV4)
	go e.receiveLoop(ctx, ipversion.V6, icmpV6)
	return e, nil
}

// Close closes both ICMP sockets, unblocking the receivers.
func (e *Engine) Close() error {
	if err := e.icmpV4.Close(); err != nil {
		return err
	}
	return e.icmpV6.Close()
}

func (e *Engine) receiveLoop(ctx context.Context, ver ipversion.Version, conn *transport.ICMPConn) {
	for {
		buf, peer, recvAt, err := conn.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		reply, err := transport.DecodeICMP(ver, buf)
		if err != nil || reply == nil {
			continue
		}
		peerIP := addrIP(peer)
		if peerIP == nil {
			continue
		}
		key := traceKey{srcPort: reply.SrcPort, dstPort: reply.DstPort}
		e.table.Deliver(key, traceReply{
			recvAt: recvAt,
			peer:   peerIP,
			isEnd:  reply.Kind != transport.UDPReplyTimeExceeded,
		})
	}
}

func addrIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.IPAddr:
		return a.IP
	case *net.UDPAddr:
		return a.IP
	default:
		return nil
	}
}

// Trace runs `probes` attempts at each TTL from 1 up to limit, stopping
// early when a probe's reply address equals addr or signals the
// destination/port was reached.
func (e *Engine) Trace(ctx context.Context, addr net.IP, probes, limit int, expiry time.Duration) ([][]Node, error) {
	ver := ipversion.Of(addr)

	srcPort, release := e.ports.Reserve()
	defer release()

	udpConn, err := transport.NewUDP(ver, srcPort)
	if err != nil {
		return nil, err
	}
	defer udpConn.Close()

	dstPort := correlate.PortMin
	var hops [][]Node
	for ttl := 1; ttl <= limit; ttl++ {
		var nodes []Node
		reachedTarget := false
		reachedUnreachable := false

		for i := 0; i < probes; i++ {
			node, reached, unreachable, err := e.probeOnce(ctx, udpConn, addr, ttl, srcPort, dstPort, expiry)
			dstPort++
			if dstPort >= correlate.PortMax {
				dstPort = correlate.PortMin
			}
			if err != nil && !errors.Is(err, context.DeadlineExceeded) {
				return hops, err
			}
			nodes = append(nodes, node)
			if reached {
				reachedTarget = true
			}
			if unreachable {
				reachedUnreachable = true
			}
		}

		hops = append(hops, nodes)
		if reachedTarget || reachedUnreachable {
			break
		}
	}
	return hops, nil
}

func (e *Engine) probeOnce(ctx context.Context, udpConn *transport.UDPConn, addr net.IP, ttl, srcPort, dstPort int, expiry time.Duration) (Node, bool, bool, error) {
	key := traceKey{srcPort: srcPort, dstPort: dstPort}
	ch, cleanup := e.table.Insert(key)
	defer cleanup()

	sendAt := time.Now()
	if err := udpConn.Send(nil, addr, dstPort, ttl); err != nil {
		return Node{TTL: ttl}, false, false, err
	}

	ctx, cancel := context.WithTimeout(ctx, expiry)
	defer cancel()

	select {
	case r := <-ch:
		rtt := r.recvAt.Sub(sendAt)
		if rtt < 0 {
			rtt = 0
		}
		reached := r.peer.Equal(addr) || r.isEnd
		return Node{TTL: ttl, Addr: r.peer, RTT: rtt}, reached, r.isEnd, nil
	case <-ctx.Done():
		return Node{TTL: ttl}, false, false, ctx.Err()
	}
}
