// Package discovery supplements the relay rendezvous (spec.md §4.3)
// with an mDNS fast path: a sender on the same LAN as the receiver can
// be found without a round trip through the relay.
package discovery

import (
	"crypto/sha256"
	"fmt"
)

// ServiceType is the mDNS service type nudge advertises and browses.
const ServiceType = "_nudge._udp"

// hashPassphrase returns the SHA-256 hex digest of a passphrase. The
// TXT record carries this, not the passphrase itself, so a passive
// network listener can confirm a match without learning the
// passphrase from the advertisement alone.
func hashPassphrase(passphrase string) string {
	sum := sha256.Sum256([]byte(passphrase))
	return fmt.Sprintf("%x", sum)
}
