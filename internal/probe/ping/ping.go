// Package ping implements the ICMP echo/RTT engine: a fixed-length sequence
// of echo requests per call, each correlated to its reply by (id, seq) and
// timed from send to receive.
//
// Generalized from the teacher's internal/pinger.Pinger, which runs a
// perpetual ring-buffered TUI session; this engine instead runs exactly
// `count` iterations per call and returns the slice of round-trip times
// (nil entries are losses), matching the bounded task-loop API the control
// plane expects rather than a long-lived interactive session.
package ping

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"time"

	"golang.org/x/net/icmp"

	"github.com/kentik/synthetics-agent/internal/correlate"
	"github.com/kentik/synthetics-agent/internal/ipversion"
	"github.com/kentik/synthetics-agent/internal/stats"
	"github.com/kentik/synthetics-agent/internal/transport"
	"github.com/kentik/synthetics-agent/internal/wire/icmppkt"
)

type token struct {
	id, seq uint16
}

type reply struct {
	recvAt time.Time
}

// Engine owns one ICMP socket per address family and the correlator
// mapping (id, seq) to an in-flight probe's reply channel.
type Engine struct {
	connV4 *transport.ICMPConn
	connV6 *transport.ICMPConn
	table  *correlate.Table[token, reply]
}

// NewEngine opens the ICMP sockets for both address families and starts
// their background receivers. Closing ctx stops both receivers.
func NewEngine(ctx context.Context) (*Engine, error) {
	v4, err := transport.NewICMP(ipversion.V4)
	if err != nil {
		return nil, err
	}
	v6, err := transport.NewICMP(ipversion.V6)
	if err != nil {
		v4.Close()
		return nil, err
	}
	e := &Engine{
		connV4: v4,
		connV6: v6,
		table:  correlate.NewTable[token, reply](),
	}
	go e.receiveLoop(ctx, ipversion.V4, v4)
	go e.receiveLoop(ctx, ipversion.V6, v6)
	return e, nil
}

// Close closes both ICMP sockets, unblocking their receivers.
func (e *Engine) Close() error {
	err4 := e.connV4.Close()
	err6 := e.connV6.Close()
	if err4 != nil {
		return err4
	}
	return err6
}

func (e *Engine) receiveLoop(ctx context.Context, ver ipversion.Version, conn *transport.ICMPConn) {
	for {
		buf, _, recvAt, err := conn.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		id, seq, ok := decodeEchoReply(ver, buf)
		if !ok {
			continue
		}
		e.table.Deliver(token{id: id, seq: seq}, reply{recvAt: recvAt})
	}
}

// decodeEchoReply extracts the (id, seq) pair from a raw ICMP datagram if
// it is an echo reply for ver; ok is false for any other message type.
func decodeEchoReply(ver ipversion.Version, buf []byte) (id, seq uint16, ok bool) {
	msg, err := icmp.ParseMessage(ver.ICMPProtoNum(), buf)
	if err != nil {
		return 0, 0, false
	}
	body, isEcho := msg.Body.(*icmp.Echo)
	if !isEcho {
		return 0, 0, false
	}
	return uint16(body.ID), uint16(body.Seq), true
}

// Ping sends count ICMP echo requests to addr one after another, each sent
// as soon as the previous one's reply arrived or its per-probe expiry fired,
// and returns one RTT per attempt (nil for a dropped probe). The
// identifier is chosen once per call and held stable across the session, as
// the teacher's pinger does with its own session ID.
func Ping(ctx context.Context, e *Engine, addr net.IP, count int, expiry time.Duration) ([]*time.Duration, error) {
	ver := ipversion.Of(addr)
	conn := e.connV4
	if ver == ipversion.V6 {
		conn = e.connV6
	}

	id := uint16(rand.Intn(1 << 16))
	dest := &net.IPAddr{IP: addr}
	results := make([]*time.Duration, count)

	for seq := 0; seq < count; seq++ {
		rtt, err := e.pingOnce(ctx, conn, ver, id, uint16(seq), dest, expiry)
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		results[seq] = rtt
	}
	return results, nil
}

func (e *Engine) pingOnce(ctx context.Context, conn *transport.ICMPConn, ver ipversion.Version, id, seq uint16, dest net.Addr, expiry time.Duration) (*time.Duration, error) {
	tok := token{id: id, seq: seq}
	ch, cleanup := e.table.Insert(tok)
	defer cleanup()

	reqType := ipversion.Choose(ver, byte(icmppkt.TypeEchoRequestV4), byte(icmppkt.TypeEchoRequestV6))
	echo := &icmppkt.Echo{Type: reqType, ID: id, Seq: seq}

	sendAt := time.Now()
	if err := conn.Send(echo.Marshal(), dest, 0); err != nil {
		return nil, fmt.Errorf("ping: sending echo request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, expiry)
	defer cancel()

	select {
	case r := <-ch:
		rtt := r.recvAt.Sub(sendAt)
		if rtt < 0 {
			rtt = 0
		}
		return &rtt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Summary computes the RTT statistical summary over a Ping result set,
// ignoring losses. See internal/stats for the formulas.
func Summary(rtts []*time.Duration) (stats.Summary, bool) {
	var samples []time.Duration
	for _, r := range rtts {
		if r != nil {
			samples = append(samples, *r)
		}
	}
	return stats.Summarize(samples)
}
