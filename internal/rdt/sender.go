package rdt

import (
	"encoding/binary"
	"net"
	"time"

	"github.com/nudgexfer/nudge/internal/nudgeerr"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Timeouts driving waitForAck (§4.5.3). Overridable in tests so the
// resend-probe path doesn't need a real 10-second wait; production
// code never touches these.
var (
	ackReadTimeout   = time.Second
	exitOnLostAfter  = 5 * time.Second
	resendProbeAfter = 10 * time.Second
)

// Sender is the write side of the transport (§4.5.1). It wraps a
// connect()-ed socket: all payload methods address the one peer the
// socket was connected to, so no address is passed per call.
type Sender struct {
	conn    net.Conn
	sendSeq uint16
	unacked map[uint16][]byte
	log     zerolog.Logger
}

// NewSender wraps a connected socket (typically a *net.UDPConn that has
// already been through the hole-punch handshake) as an RDT sender.
func NewSender(conn net.Conn) *Sender {
	return &Sender{
		conn:    conn,
		unacked: make(map[uint16][]byte),
		log:     log.With().Str("component", "rdt.sender").Logger(),
	}
}

// WriteAndFlush sends data as one WRITE datagram. delay paces the
// sender (a thread::sleep equivalent) between the write completing and
// the datagram being recorded as unacknowledged. A flush is forced,
// entering the ack-wait loop, whenever flush is true or the sequence
// number is about to wrap past its 0xFFFF boundary (§4.5.3).
func (s *Sender) WriteAndFlush(data []byte, flush bool, delay time.Duration) error {
	if len(data) > MaxPayload {
		return &nudgeerr.DataPacketLimitExceeded{Size: len(data)}
	}

	seq := s.sendSeq
	packet := buildPacket(seq, kindWrite, data)
	if err := s.sendFull(packet); err != nil {
		return err
	}
	time.Sleep(delay)

	s.unacked[seq] = packet
	s.sendSeq++

	if flush || seq == 0xFFFF {
		return s.waitForAck(seq, false)
	}
	return nil
}

// End sends a zero-length END datagram and waits for it to be
// acknowledged, tolerating the ack never arriving (the peer may have
// already torn its socket down once it sees the END). It returns the
// underlying connection so callers can reuse or close it.
func (s *Sender) End() (net.Conn, error) {
	seq := s.sendSeq
	packet := buildPacket(seq, kindEnd, nil)
	if err := s.sendFull(packet); err != nil {
		return s.conn, err
	}
	time.Sleep(3 * time.Millisecond)

	s.unacked[seq] = packet
	s.sendSeq++

	if err := s.waitForAck(seq, true); err != nil {
		return s.conn, err
	}
	return s.conn, nil
}

// sendFull retries Write until the whole packet is accepted by the
// socket, treating every error as transient (a dropped UDP send is
// expected on a lossy NAT path, not a reason to give up).
func (s *Sender) sendFull(packet []byte) error {
	for {
		n, err := s.conn.Write(packet)
		if err != nil {
			continue
		}
		if n == len(packet) {
			return nil
		}
	}
}

// resend retries like sendFull but backs off 4ms between partial
// attempts, matching the lighter-touch retry used for unsolicited
// resends so a persistently partial socket doesn't spin hot.
func (s *Sender) resend(packet []byte) error {
	for {
		n, err := s.conn.Write(packet)
		if err != nil {
			continue
		}
		if n == len(packet) {
			return nil
		}
		time.Sleep(4 * time.Millisecond)
	}
}

// waitForAck blocks on 3-byte ACK/RESEND datagrams for the packet at
// seq. It honors the three watermarks from §4.5.3: a 1s read timeout
// per attempt, a 5s give-up when exitOnLost is set (used by End, where
// a missing ack shouldn't block the caller forever), and a 10s
// resend-probe that re-transmits the unacked packet and resets the
// clock.
func (s *Sender) waitForAck(seq uint16, exitOnLost bool) error {
	start := time.Now()
	buf := make([]byte, headerSize)

	for {
		if err := s.conn.SetReadDeadline(time.Now().Add(ackReadTimeout)); err != nil {
			return err
		}

		n, err := s.conn.Read(buf)
		if err != nil {
			if !isTimeout(err) {
				return err
			}

			elapsed := time.Since(start)
			if exitOnLost && elapsed > exitOnLostAfter {
				s.log.Warn().Uint16("seq", seq).Msg("no acknowledgment received within 5 seconds, giving up")
				return nil
			}
			if elapsed > resendProbeAfter {
				s.log.Warn().Uint16("seq", seq).Msg("connection may be disrupted, attempting to resend")
				packet, ok := s.unacked[seq]
				if !ok {
					return nil
				}
				if err := s.resend(packet); err != nil {
					return err
				}
				start = time.Now()
			}
			continue
		}
		if n != headerSize {
			continue
		}

		gotSeq := binary.BigEndian.Uint16(buf[0:2])
		switch buf[2] {
		case kindAck:
			delete(s.unacked, gotSeq)
			if gotSeq == seq {
				s.unacked = make(map[uint16][]byte)
				return nil
			}
		case kindResend:
			if packet, ok := s.unacked[gotSeq]; ok {
				if err := s.resend(packet); err != nil {
					return err
				}
			}
		}
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
