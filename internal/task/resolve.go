package task

import (
	"context"
	"fmt"
	"math/rand"
	"net"

	"github.com/kentik/synthetics-agent/internal/ipversion"
)

// Resolver resolves a hostname to one address per iteration, honoring a
// Network address-family preference. Grounded in
// original_source/src/task/resolve.rs: look up all addresses, keep only
// those matching the preferred family/families, and pick one at random —
// generalized here from the original's IPv4-only resolve() to also serve
// IPv6 and Dual tasks.
type Resolver struct {
	r *net.Resolver
}

// NewResolver returns a Resolver using the process's default net.Resolver.
func NewResolver() *Resolver {
	return &Resolver{r: net.DefaultResolver}
}

// Resolve looks up host and returns one address whose family is permitted
// by network, chosen uniformly at random among the matches. If host is
// already a literal IP address, it is returned directly (subject to the
// same family check) without a lookup.
func (r *Resolver) Resolve(ctx context.Context, host string, network Network) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		if !network.Includes(ipversion.Of(ip)) {
			return nil, fmt.Errorf("task: literal address %s does not match network %v", host, network)
		}
		return ip, nil
	}

	addrs, err := r.r.LookupIP(ctx, lookupNetwork(network), host)
	if err != nil {
		return nil, fmt.Errorf("task: resolving %s: %w", host, err)
	}

	var matches []net.IP
	for _, a := range addrs {
		if network.Includes(ipversion.Of(a)) {
			matches = append(matches, a)
		}
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("task: no address for %s matching network %v", host, network)
	}
	return matches[rand.Intn(len(matches))], nil
}

func lookupNetwork(n Network) string {
	switch n {
	case NetworkIPv4:
		return "ip4"
	case NetworkIPv6:
		return "ip6"
	default:
		return "ip"
	}
}
