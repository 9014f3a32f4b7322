// Package rdt implements the reliable datagram transport of spec.md
// §4.5: a stop-and-wait protocol with explicit resend requests, layered
// on a connect()-ed datagram socket so payload methods take no peer
// address (§9 "connect() on UDP").
package rdt

import "encoding/binary"

const (
	// headerSize is the 3-byte [seq_hi, seq_lo, kind] prefix on every
	// data-path datagram (§3 "Framed datagram").
	headerSize = 3

	// MaxPayload is the largest body a single WRITE/read buffer may
	// carry, keeping the whole datagram, header included, at most
	// 65535 bytes (§3, T6).
	MaxPayload = 65532
)

// Packet kinds (§3, §6.2).
const (
	kindWrite  uint8 = 0
	kindAck    uint8 = 1
	kindResend uint8 = 2
	kindEnd    uint8 = 3
)

func buildPacket(seq uint16, kind uint8, data []byte) []byte {
	packet := make([]byte, headerSize+len(data))
	binary.BigEndian.PutUint16(packet[0:2], seq)
	packet[2] = kind
	copy(packet[headerSize:], data)
	return packet
}

func ackPacket(seq uint16) []byte {
	return buildPacket(seq, kindAck, nil)
}

func resendPacket(seq uint16) []byte {
	return buildPacket(seq, kindResend, nil)
}
