// Package nudgeerr defines the sentinel error values shared by every
// nudge component, so callers can use errors.Is/errors.As instead of
// matching on string content.
package nudgeerr

import (
	"errors"
	"fmt"
)

var (
	// ErrPassphraseGeneration is returned when the minter exhausts its retry budget.
	ErrPassphraseGeneration = errors.New("failed to generate passphrase")

	// ErrPassphraseNotFound is returned when the relay has no live offer for a passphrase.
	ErrPassphraseNotFound = errors.New("passphrase not found")

	// ErrHostname is returned when the OS fails to report a hostname that was requested.
	ErrHostname = errors.New("cannot get hostname")

	// ErrNoPromptExit is returned when an interactive prompt is required but --no-prompt forbids it.
	ErrNoPromptExit = errors.New("exited because --no-prompt was passed")

	// ErrUnknownCommand is returned by the relay for an unrecognised control-message tag.
	ErrUnknownCommand = errors.New("unknown command")
)

// BufferSizeLimitExceeded signals that a caller of rdt.Receiver.Read passed
// a buffer larger than the 65532-byte datagram payload cap.
type BufferSizeLimitExceeded struct {
	Size int
}

func (e *BufferSizeLimitExceeded) Error() string {
	return fmt.Sprintf("buffer size exceeds the maximum allowed limit of 65532 bytes: received %d bytes", e.Size)
}

// DataPacketLimitExceeded signals that a caller of rdt.Sender.WriteAndFlush
// passed a chunk larger than the 65532-byte datagram payload cap.
type DataPacketLimitExceeded struct {
	Size int
}

func (e *DataPacketLimitExceeded) Error() string {
	return fmt.Sprintf("data packet exceeds the maximum allowed limit of 65532 bytes: received %d bytes", e.Size)
}

// ServerError wraps the free-form text carried by an ERROR control message.
type ServerError struct {
	Reason string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server returned error: %s", e.Reason)
}

// ReceiveExpectationNotMet signals a control-path tag mismatch (§4.2).
type ReceiveExpectationNotMet struct {
	Expected string
	Got      string
}

func (e *ReceiveExpectationNotMet) Error() string {
	return fmt.Sprintf("expected %s, but received %s", e.Expected, e.Got)
}

// HashMismatch signals that a post-transfer hash recheck disagreed with the
// hash the sender advertised.
type HashMismatch struct {
	Expected string
	Actual   string
}

func (e *HashMismatch) Error() string {
	return fmt.Sprintf("hash mismatch! expected: %s, received: %s", e.Expected, e.Actual)
}
