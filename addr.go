package coxnet

import "net"

// StackMode selects the IPv4/IPv6 policy for a listening socket.
type StackMode int

const (
	// IPv4Only accepts an IPv4 literal and creates an AF_INET socket.
	IPv4Only StackMode = iota
	// IPv6Only accepts an IPv6 literal and creates an AF_INET6 socket
	// with IPV6_V6ONLY set.
	IPv6Only
	// DualStack accepts an IPv6 literal, creates an AF_INET6 socket,
	// and clears IPV6_V6ONLY so v4-mapped clients are accepted on the
	// same socket.
	DualStack
)

type ipFamily int

const (
	familyInvalid ipFamily = iota
	familyV4
	familyV6
)

// classifyAddress mirrors _examples/original_source/coxnet/io_def.h's
// ip_address_version, but uses net.ParseIP instead of hand-rolled
// regexes: no third-party or pack library parses IP literals, and
// net.ParseIP is the canonical idiomatic-Go way to do it, so this is the
// one deliberate standard-library choice in address handling (see
// DESIGN.md).
func classifyAddress(addr string) ipFamily {
	ip := net.ParseIP(addr)
	if ip == nil {
		return familyInvalid
	}
	if ip.To4() != nil {
		return familyV4
	}
	return familyV6
}

// resolveListenFamily validates addr against stack and returns the
// socket family to create, or ErrInvalidAddress/ErrStackMismatch.
func resolveListenFamily(addr string, stack StackMode) (ipFamily, error) {
	fam := classifyAddress(addr)
	if fam == familyInvalid {
		return familyInvalid, ErrInvalidAddress
	}
	switch stack {
	case IPv4Only:
		if fam != familyV4 {
			return familyInvalid, ErrStackMismatch
		}
		return familyV4, nil
	case IPv6Only, DualStack:
		if fam != familyV6 {
			return familyInvalid, ErrStackMismatch
		}
		return familyV6, nil
	default:
		return familyInvalid, ErrStackMismatch
	}
}

// resolveConnectFamily validates a connect target literal.
func resolveConnectFamily(addr string) (ipFamily, error) {
	fam := classifyAddress(addr)
	if fam == familyInvalid {
		return familyInvalid, ErrInvalidAddress
	}
	return fam, nil
}
