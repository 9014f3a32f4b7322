// Package holepunch implements the deadline-aligned burst handshake of
// spec.md §4.4 that opens matching NAT mappings on both peers before
// any reliable-transport byte crosses.
package holepunch

import (
	"net"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// burstIterations and burstInterval size the mutual burst: 40
	// iterations of 50ms is a 2s wall-clock window, long enough to
	// open a typical home-NAT UDP mapping.
	burstIterations = 40
	burstInterval   = 50 * time.Millisecond

	// boundaryInterval is the wall-clock grid both peers align their
	// burst start to, so they begin within a small window of each other
	// without exchanging a start signal.
	boundaryInterval = 500 * time.Millisecond

	socketTimeout = time.Second
)

// Synchronize runs the symmetric handshake over conn, which must
// already be connect()-ed to the peer's endpoint. It returns once both
// sides are confident their outbound NAT mapping is open and the peer
// is responsive. Any error from a required send terminates the
// handshake; errors on the drain phases are treated the same as the
// peer falling silent (§4.4 step 4/6/7), since a 1s read timeout is the
// ordinary way a phase boundary is detected.
func Synchronize(conn net.Conn) error {
	logger := log.With().Str("component", "holepunch").Logger()

	sleepToNextBoundary(boundaryInterval)

	burst(conn)

	// Drain 1-byte datagrams until the peer's burst audibly ends
	// (a different-length datagram, or the read simply times out).
	drainWhile(conn, func(n int) bool { return n == 1 })

	if err := sendDeadline(conn, []byte{0, 0}); err != nil {
		return err
	}
	if err := sendDeadline(conn, []byte{0, 0}); err != nil {
		return err
	}

	drainWhile(conn, func(n int) bool { return n != 2 })
	drainWhile(conn, func(n int) bool { return n == 2 })

	logger.Debug().Msg("hole-punch handshake complete")
	return nil
}

func sleepToNextBoundary(interval time.Duration) {
	ms := interval.Milliseconds()
	rem := time.Now().UnixMilli() % ms
	time.Sleep(time.Duration(ms-rem) * time.Millisecond)
}

// burst sends the 40x50ms probe train. Send errors are ignored, not
// propagated: the probes exist to open the NAT mapping, and a dropped
// probe is simply one fewer chance at that, not a fatal condition.
func burst(conn net.Conn) {
	probe := []byte{0}
	for i := 0; i < burstIterations; i++ {
		start := time.Now()
		if err := conn.SetWriteDeadline(start.Add(socketTimeout)); err == nil {
			_, _ = conn.Write(probe)
		}
		if sleep := burstInterval - time.Since(start); sleep > 0 {
			time.Sleep(sleep)
		}
	}
}

// drainWhile reads datagrams for as long as cond(n) holds for the
// observed length, and also exits the moment Read errors (a timeout is
// the expected way a peer that has stopped sending is detected).
func drainWhile(conn net.Conn, cond func(n int) bool) {
	buf := make([]byte, 2)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(socketTimeout)); err != nil {
			return
		}
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		if !cond(n) {
			return
		}
	}
}

func sendDeadline(conn net.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(socketTimeout)); err != nil {
		return err
	}
	_, err := conn.Write(data)
	return err
}
