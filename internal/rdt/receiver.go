package rdt

import (
	"encoding/binary"
	"net"

	"github.com/nudgexfer/nudge/internal/nudgeerr"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Receiver is the read side of the transport (§4.5.2). It tracks the
// next expected sequence number and a catching-up flag so a burst of
// out-of-order datagrams is logged once; every such datagram still
// sends its own RESEND.
type Receiver struct {
	conn       net.Conn
	recvSeq    uint16
	catchingUp bool
	log        zerolog.Logger
}

// NewReceiver wraps a connected socket as an RDT receiver.
func NewReceiver(conn net.Conn) *Receiver {
	return &Receiver{
		conn: conn,
		log:  log.With().Str("component", "rdt.receiver").Logger(),
	}
}

// Read blocks for the next in-order WRITE datagram and copies its body
// into buf. It returns (0, nil) once the END datagram arrives in
// order, which the caller treats as a clean end of stream; an END that
// arrives while an earlier sequence is still missing requests a resend
// of the missing one like any other datagram ahead of recvSeq.
//
// Every datagram at or before recvSeq is acknowledged, whether or not
// it is new, so a sender that never sees its ACK keeps getting one on
// retransmit. A datagram ahead of recvSeq requests a resend of the
// missing one instead of being buffered (this transport never
// reorders).
func (r *Receiver) Read(buf []byte) (int, error) {
	if len(buf) > MaxPayload {
		return 0, &nudgeerr.BufferSizeLimitExceeded{Size: len(buf)}
	}

	scratch := make([]byte, headerSize+len(buf))

	for {
		n, err := r.conn.Read(scratch)
		if err != nil {
			return 0, err
		}
		if n < headerSize {
			continue
		}

		seq := binary.BigEndian.Uint16(scratch[0:2])
		kind := scratch[2]

		if seq <= r.recvSeq {
			if _, err := r.conn.Write(ackPacket(seq)); err != nil {
				return 0, err
			}
		}

		delivered := false
		delivLen := 0
		switch {
		case seq == r.recvSeq:
			r.recvSeq++
			r.catchingUp = false
			delivered = true
			delivLen = n - headerSize
		case seq > r.recvSeq:
			if !r.catchingUp {
				r.log.Warn().Uint16("seq", seq).Uint16("expected", r.recvSeq).Msg("packet dropped, requesting resend")
				r.catchingUp = true
			}
			if _, err := r.conn.Write(resendPacket(r.recvSeq)); err != nil {
				return 0, err
			}
		}

		if kind == kindEnd && delivered {
			return 0, nil
		}
		if delivered {
			copy(buf, scratch[headerSize:n])
			return delivLen, nil
		}
	}
}
