// Package transfer wires the relay client, the hole-punch
// synchronizer and the reliable datagram transport into the two
// end-to-end operations spec.md §4.6 describes: the sender driver and
// the receiver driver.
package transfer

import (
	"errors"
	"time"
)

// DefaultChunkSize and DefaultDelay match the original implementation's
// CLI defaults (4096 bytes, 500µs pacing between chunks).
const (
	DefaultChunkSize = 4096
	DefaultDelay     = 500 * time.Microsecond
)

// lanDiscoveryTimeout bounds how long the receiver browses the LAN
// before falling back to the relay (SPEC_FULL.md "LAN discovery").
const lanDiscoveryTimeout = 2 * time.Second

// ErrCancelled is returned when the user declines an interactive
// prompt without --no-prompt. Per spec.md §6.3 this is a clean exit,
// distinct from nudgeerr.ErrNoPromptExit which is a failure.
var ErrCancelled = errors.New("cancelled by user")

// StatusFunc reports a human-readable status line as a transfer
// progresses (connecting, hashing, passphrase minted, and so on).
type StatusFunc func(string)

// ProgressFunc reports bytes moved so far against the known total.
type ProgressFunc func(sent, total int64)

func noopStatus(string)              {}
func noopProgress(sent, total int64) {}
