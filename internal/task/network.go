// Package task implements the per-task periodic loop: resolve target,
// issue a probe, publish exactly one record, sleep, repeat — plus the
// address-family selector and target resolver every task kind shares.
//
// Grounded in original_source/src/net/network.rs (Network enum) and
// src/task/{task,resolve,expiry}.rs; generalizes the teacher's internal/
// pinger.Pinger loop (send → await → sleep) from a perpetual TUI session to
// a cancellable, kind-polymorphic task.
package task

import "github.com/kentik/synthetics-agent/internal/ipversion"

// Network is a task's configured address-family preference.
type Network byte

// Values for Network, decoded from the control-plane's numeric field per
// SPEC_FULL.md §6: 0 → IPv4, 1 → IPv6, 2 → Dual.
const (
	NetworkIPv4 Network = iota
	NetworkIPv6
	NetworkDual
)

// DecodeNetwork maps the control plane's numeric address-family field to a
// Network value.
func DecodeNetwork(n uint64) Network {
	switch n {
	case 1:
		return NetworkIPv6
	case 2:
		return NetworkDual
	default:
		return NetworkIPv4
	}
}

// Includes reports whether v participates in this Network preference, the
// direct port of network.rs's Network::includes.
func (n Network) Includes(v ipversion.Version) bool {
	if n == NetworkDual {
		return true
	}
	if v == ipversion.V4 {
		return n == NetworkIPv4
	}
	return n == NetworkIPv6
}

func (n Network) String() string {
	switch n {
	case NetworkIPv4:
		return "IPv4"
	case NetworkIPv6:
		return "IPv6"
	default:
		return "Dual"
	}
}
