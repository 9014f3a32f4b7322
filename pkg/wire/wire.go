// Package wire implements the nudge relay control-path framing and
// codec described in spec.md §4.2 and §6.1: a single ASCII tag, a
// space, and a single-line JSON body, carried one message per UDP
// datagram.
package wire

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/nudgexfer/nudge/internal/nudgeerr"
)

// MaxControlMessageSize is the largest control datagram this codec will
// read. Larger datagrams are out of spec per §6.1.
const MaxControlMessageSize = 1024

// Tag identifies the kind of a control message (§6.1).
type Tag string

const (
	TagRequestPassphrase      Tag = "S2X_RP"
	TagPassphraseMinted       Tag = "X2S_PPM"
	TagRequestFileInfo        Tag = "R2X_RFI"
	TagFileInfo               Tag = "X2R_AFI"
	TagRequestSenderConn      Tag = "R2X_RSC"
	TagSenderConnectToReceive Tag = "X2S_SCON"
	TagError                  Tag = "ERROR"
)

// AnonymousString models spec.md §3's "anonymous string": a field whose
// absence is meaningful. It serialises as JSON null when unset and
// displays as "<anonymous>".
type AnonymousString struct {
	value string
	set   bool
}

// Anon wraps a string as a present AnonymousString. An empty string is
// treated as absent, matching the teacher's hide-hostname convention.
func Anon(s string) AnonymousString {
	return AnonymousString{value: s, set: s != ""}
}

// Hidden returns the absent AnonymousString.
func Hidden() AnonymousString {
	return AnonymousString{}
}

// Value returns the underlying string and whether it was present.
func (a AnonymousString) Value() (string, bool) {
	return a.value, a.set
}

func (a AnonymousString) String() string {
	if !a.set {
		return "<anonymous>"
	}
	return a.value
}

func (a AnonymousString) MarshalJSON() ([]byte, error) {
	if !a.set {
		return []byte("null"), nil
	}
	return json.Marshal(a.value)
}

func (a *AnonymousString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*a = AnonymousString{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*a = AnonymousString{value: s, set: true}
	return nil
}

// Equal reports whether two AnonymousString values carry the same
// presence/value, used for the hash-gate comparison in §4.3 (both
// absent also matches).
func (a AnonymousString) Equal(b AnonymousString) bool {
	return a.set == b.set && a.value == b.value
}

// RequestPassphrase is S2X_RP: sender asks the relay to mint a passphrase.
type RequestPassphrase struct {
	FileSize   uint64          `json:"file_size"`
	FileName   string          `json:"file_name"`
	FileHash   AnonymousString `json:"file_hash"`
	SenderHost AnonymousString `json:"sender_host"`
}

// PassphraseMinted is X2S_PPM: the relay's reply carrying the minted passphrase.
type PassphraseMinted struct {
	Passphrase string `json:"passphrase"`
}

// RequestFileInfo is R2X_RFI: receiver asks the relay about a passphrase.
type RequestFileInfo struct {
	Passphrase string `json:"passphrase"`
}

// FileInfo is X2R_AFI: the relay's projection of a FileOffer for a receiver (§3).
type FileInfo struct {
	FileSize   uint64          `json:"file_size"`
	FileName   string          `json:"file_name"`
	FileHash   AnonymousString `json:"file_hash"`
	SenderHost AnonymousString `json:"sender_host"`
	CreatedAt  uint64          `json:"created_at"`
	SenderAddr string          `json:"sender_addr"`
}

// RequestSenderConnection is R2X_RSC: receiver claims an offer.
type RequestSenderConnection struct {
	Passphrase   string          `json:"passphrase"`
	FileHash     AnonymousString `json:"file_hash"`
	ReceiverHost AnonymousString `json:"receiver_host"`
}

// SenderConnectToReceiver is X2S_SCON: the relay tells the sender where to dial.
type SenderConnectToReceiver struct {
	ReceiverAddr string          `json:"receiver_addr"`
	ReceiverHost AnonymousString `json:"receiver_host"`
}

// Encode renders tag+body as "TAG {json}\n", the exact bytes of one
// control datagram. Used directly by callers (like the relay) that
// address each datagram individually rather than writing to a fixed
// peer via io.Writer.
func Encode(tag Tag, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("%s %s\n", tag, data)), nil
}

// Send encodes tag+body as "TAG {json}\n" and writes it as a single
// datagram.
func Send(w io.Writer, tag Tag, body any) error {
	msg, err := Encode(tag, body)
	if err != nil {
		return err
	}
	_, err = w.Write(msg)
	return err
}

// EncodeError renders an ERROR control message with a free-form reason (§6.1).
func EncodeError(reason string) []byte {
	return []byte(fmt.Sprintf("%s %s\n", TagError, reason))
}

// SendError writes an ERROR control message with a free-form reason (§6.1).
func SendError(w io.Writer, reason string) error {
	_, err := w.Write(EncodeError(reason))
	return err
}

// Receive reads one datagram, decoding it into out if its tag matches
// want. An ERROR tag is surfaced as *nudgeerr.ServerError regardless of
// what was expected; any other tag mismatch is
// *nudgeerr.ReceiveExpectationNotMet (§4.2, T7).
func Receive(r io.Reader, want Tag, out any) error {
	buf := make([]byte, MaxControlMessageSize)
	n, err := r.Read(buf)
	if err != nil {
		return err
	}

	tag, body := splitFrame(buf[:n])

	if Tag(tag) == TagError {
		return &nudgeerr.ServerError{Reason: body}
	}
	if Tag(tag) != want {
		return &nudgeerr.ReceiveExpectationNotMet{Expected: string(want), Got: tag}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal([]byte(body), out)
}

// Decode splits a raw datagram into its tag and JSON body without
// requiring a specific expected tag, for callers (the relay) that
// dispatch on the tag themselves instead of asking Receive to check it.
func Decode(raw []byte) (tag Tag, body string) {
	t, b := splitFrame(raw)
	return Tag(t), b
}

// splitFrame implements the decode policy of §4.2: strip trailing NULs
// and whitespace, then split at the first whitespace run into tag and body.
func splitFrame(raw []byte) (tag string, body string) {
	s := strings.TrimRight(string(raw), "\x00")
	s = strings.TrimSpace(s)

	idx := strings.IndexFunc(s, unicode.IsSpace)
	if idx < 0 {
		return s, ""
	}
	return s[:idx], strings.TrimSpace(s[idx:])
}
