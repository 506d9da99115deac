// Package ipversion holds the shared IPv4/IPv6 selector used across the
// transport, wire, and probe packages.
package ipversion

import (
	"fmt"
	"log"
	"net"
	"syscall"
)

// Version selects an IP address family.
type Version byte

// Values for Version.
const (
	V4 Version = 4
	V6 Version = 6
)

func (v Version) String() string {
	switch v {
	case V4:
		return "IPv4"
	case V6:
		return "IPv6"
	default:
		return fmt.Sprintf("(unknown:%d)", v)
	}
}

// AddressFamily returns the socket domain for this IP version.
func (v Version) AddressFamily() int {
	switch v {
	case V4:
		return syscall.AF_INET
	case V6:
		return syscall.AF_INET6
	default:
		log.Panicf("invalid IP version: %v", v)
		return -1
	}
}

// ICMPProtoNum returns the IP protocol number for ICMPv4 or ICMPv6.
func (v Version) ICMPProtoNum() int {
	switch v {
	case V4:
		return syscall.IPPROTO_ICMP
	case V6:
		return syscall.IPPROTO_ICMPV6
	default:
		log.Panicf("invalid IP version: %v", v)
		return -1
	}
}

// Of returns the Version of the given address, defaulting to V4 when the
// address has a 4-in-6 mapped form.
func Of(ip net.IP) Version {
	if ip.To4() == nil {
		return V6
	}
	return V4
}

// Choose returns v4val or v6val depending on v.
func Choose[T any](v Version, v4val, v6val T) T {
	switch v {
	case V4:
		return v4val
	case V6:
		return v6val
	default:
		log.Panicf("invalid IP version: %v", v)
		var zero T
		return zero
	}
}
