// Package query implements a single-shot DNS lookup probe.
//
// Grounded in original_source/src/task/query.rs: issue one query, report
// the response code and what came back, and return everything else (timeout,
// transport failure) as an error for the task loop to classify, as the other
// probe drivers do.
package query

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// Result is what one DNS query observed.
type Result struct {
	RCode   int
	Answers []string
	Elapsed time.Duration
}

// Query issues one DNS query of qtype for name against server (host:port,
// port defaults to 53 if omitted), bounded by expiry.
func Query(ctx context.Context, name string, qtype uint16, server string, expiry time.Duration) (*Result, error) {
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.RecursionDesired = true

	client := &dns.Client{Timeout: expiry}
	start := time.Now()
	resp, _, err := client.ExchangeContext(ctx, msg, server)
	elapsed := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("query: exchanging dns message: %w", err)
	}

	answers := make([]string, 0, len(resp.Answer))
	for _, rr := range resp.Answer {
		answers = append(answers, rr.String())
	}
	return &Result{
		RCode:   resp.Rcode,
		Answers: answers,
		Elapsed: elapsed,
	}, nil
}
