package ratelimit

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/beacon-api/beacon/internal/shared"
)

const (
	// maxHeaderLength bounds how much of a forwarding header is parsed.
	maxHeaderLength = 1024
	// maxForwardedEntries caps the X-Forwarded-For chain length.
	maxForwardedEntries = 10
)

// trustedProxyNets holds the networks whose forwarded-address claims are
// honored: the RFC1918 private ranges plus loopback.
var trustedProxyNets = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("127.0.0.0/8"),
}

// ResolveClientIP determines the originating client address from the immediate
// connection peer and the X-Forwarded-For / X-Real-IP header values.
//
// The forwarded chain is only honored when the connecting peer and every
// intermediate hop are trusted proxies; any break falls back to the peer
// address, so an untrusted origin cannot spoof its identity through forged
// headers. remoteIP must be a valid address: the transport guarantees it, and
// an unparsable value is a protocol anomaly, not spoofing.
func ResolveClientIP(remoteIP, forwardedFor, realIP string) (string, error) {
	if !isValidIP(remoteIP) {
		return "", fmt.Errorf("%w: invalid client IP", shared.ErrBadRequest)
	}

	forwardedFor = sanitizeHeaderValue(forwardedFor)
	if forwardedFor != "" {
		entries := strings.Split(forwardedFor, ",")
		if len(entries) > maxForwardedEntries {
			entries = entries[:maxForwardedEntries]
		}
		for i := range entries {
			entries[i] = strings.TrimSpace(entries[i])
		}

		switch {
		case len(entries) > 1:
			if !isTrustedProxy(remoteIP) {
				return remoteIP, nil
			}
			for _, hop := range entries[1:] {
				if !isTrustedProxy(hop) {
					// Broken chain of trust.
					return remoteIP, nil
				}
			}
			if isValidIP(entries[0]) {
				return entries[0], nil
			}
		case len(entries) == 1:
			if isValidIP(entries[0]) {
				return entries[0], nil
			}
		}
	}

	if realIP := sanitizeHeaderValue(realIP); realIP != "" && isValidIP(realIP) {
		return realIP, nil
	}

	return remoteIP, nil
}

// sanitizeHeaderValue trims and truncates a header value so pathological input
// cannot inflate parsing cost. Malformed values are treated as absent, never
// as errors.
func sanitizeHeaderValue(value string) string {
	if len(value) > maxHeaderLength {
		value = value[:maxHeaderLength]
	}
	return strings.TrimSpace(value)
}

func isValidIP(ip string) bool {
	_, err := netip.ParseAddr(ip)
	return err == nil
}

func isTrustedProxy(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, network := range trustedProxyNets {
		if network.Contains(addr) {
			return true
		}
	}
	return false
}
