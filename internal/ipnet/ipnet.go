// Package ipnet implements GorgZorg's local-network-only IP policy
// (spec.md §6): every address the tool dials or binds must be a
// dotted-quad IPv4 address inside one of the private/loopback ranges the
// original tool recognized, and the receiver can auto-pick one of its
// own addresses when none is given.
package ipnet

import (
	"fmt"
	"net"
)

// allowedPrefixes mirrors original_source/gorgzorg.cpp's startsWith
// checks: the only address families GorgZorg is allowed to talk to.
var allowedPrefixes = []string{"10.0", "127.0.0", "172.16", "192.168"}

// disallowedExact are addresses rejected outright, before the prefix
// check, because they are never valid unicast hosts.
var disallowedExact = map[string]bool{
	"0.0.0.0":         true,
	"255.255.255.255": true,
}

// ValidatePrivate checks that ip is a dotted-quad IPv4 address within the
// local-network ranges GorgZorg is restricted to. It returns a
// descriptive error otherwise — callers wrap it with the specific
// ErrInvalidAddress sentinel.
func ValidatePrivate(ip string) error {
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.To4() == nil {
		return fmt.Errorf("%q is not a valid IPv4 dotted-quad address", ip)
	}
	if disallowedExact[ip] {
		return fmt.Errorf("%q is not a usable host address", ip)
	}
	if !hasAllowedPrefix(ip) {
		return fmt.Errorf("%q is not on a local network (must start with one of %v)", ip, allowedPrefixes)
	}
	return nil
}

func hasAllowedPrefix(ip string) bool {
	for _, prefix := range allowedPrefixes {
		if len(ip) >= len(prefix) && ip[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

// FirstPrivateAddress enumerates the host's own IPv4 addresses and
// returns the first one matching the local-network policy, for the
// receiver's "auto-pick a bind address" behavior (spec.md §4.3 step 1).
func FirstPrivateAddress() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", fmt.Errorf("enumerate local interfaces: %w", err)
	}

	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		v4 := ipNet.IP.To4()
		if v4 == nil {
			continue
		}
		candidate := v4.String()
		if ValidatePrivate(candidate) == nil {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("no valid local-network IPv4 address could be found")
}
